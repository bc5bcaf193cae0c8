package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/settings"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func monitoringOn() *settings.Settings {
	st := settings.Defaults()
	st.Monitoring = true
	return st
}

func putPage(t *testing.T, database *sql.DB, page models.CapturedPage) {
	t.Helper()
	if err := db.Set(context.Background(), database, models.PageKey(page.Timestamp), page); err != nil {
		t.Fatalf("Set page failed: %v", err)
	}
}

// fakeGenerator answers prompts from a function and records what it was asked.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.reply == nil {
		return "Tweet: " + firstLine(prompt), nil
	}
	return f.reply(prompt)
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// replyByURL returns a reply naming the URL found in the prompt snippet.
func replyByURL(prompt string) (string, error) {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "URL: ") {
			return "Tweet: about " + strings.TrimPrefix(line, "URL: "), nil
		}
	}
	return "", fmt.Errorf("no url in prompt")
}
