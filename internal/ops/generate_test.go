package ops

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/settings"
)

func TestGenerateIdeas_EmptyStore(t *testing.T) {
	database := newTestDB(t)
	gen := &fakeGenerator{}

	out, err := GenerateIdeas(context.Background(), database, settings.Defaults(), gen, GenerateInput{})
	if err != nil {
		t.Fatalf("GenerateIdeas failed: %v", err)
	}
	if len(out.Ideas) != 0 || out.Pages != 0 {
		t.Errorf("output = %+v, want no ideas", out)
	}
	if gen.calls() != 0 {
		t.Errorf("assistant called %d times, want 0", gen.calls())
	}

	list, err := ListIdeas(context.Background(), database, ListIdeasInput{})
	if err != nil {
		t.Fatalf("ListIdeas failed: %v", err)
	}
	if list.Total != 0 {
		t.Errorf("ideas stored = %d, want 0", list.Total)
	}
}

func TestGenerateIdeas_UsesFiveMostRecentPagesInOrder(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		putPage(t, database, models.CapturedPage{
			URL:       fmt.Sprintf("https://example.com/%d", i),
			Title:     fmt.Sprintf("Page %d", i),
			Content:   "content",
			Timestamp: int64(i * 1000),
		})
	}
	existing, err := AddIdea(ctx, database, AddIdeaInput{Content: "older idea"})
	if err != nil {
		t.Fatalf("AddIdea failed: %v", err)
	}

	gen := &fakeGenerator{reply: replyByURL}
	out, err := GenerateIdeas(ctx, database, settings.Defaults(), gen, GenerateInput{})
	if err != nil {
		t.Fatalf("GenerateIdeas failed: %v", err)
	}
	if gen.calls() != 5 || out.Pages != 5 {
		t.Fatalf("calls=%d pages=%d, want 5", gen.calls(), out.Pages)
	}

	wantOrder := []string{"7", "6", "5", "4", "3"}
	for i, n := range wantOrder {
		want := "about https://example.com/" + n
		if out.Ideas[i].Content != want {
			t.Errorf("idea %d = %q, want %q", i, out.Ideas[i].Content, want)
		}
	}

	list, err := ListIdeas(ctx, database, ListIdeasInput{})
	if err != nil {
		t.Fatalf("ListIdeas failed: %v", err)
	}
	if list.Total != 6 {
		t.Fatalf("ideas stored = %d, want 6", list.Total)
	}
	if list.Ideas[0].Content != out.Ideas[0].Content || list.Ideas[5].ID != existing.ID {
		t.Errorf("new ideas should be prepended in page order, got %+v", list.Ideas)
	}
}

func TestGenerateIdeas_PromptRendering(t *testing.T) {
	database := newTestDB(t)
	putPage(t, database, models.CapturedPage{
		URL:       "https://example.com",
		Title:     "Example",
		Content:   strings.Repeat("é", 600),
		Timestamp: 1000,
	})

	st := settings.Defaults()
	st.PromptVersions = append(st.PromptVersions, models.PromptVersion{ID: "2", Name: "Terse", Prompt: "[snippet_description]|[snippet]"})
	st.SelectedVersion = "2"
	st.SetDescription(models.SnippetWebsite, "SITE")

	gen := &fakeGenerator{}
	out, err := GenerateIdeas(context.Background(), database, st, gen, GenerateInput{})
	if err != nil {
		t.Fatalf("GenerateIdeas failed: %v", err)
	}
	if out.PromptVersion != "2" || out.Fallback {
		t.Errorf("PromptVersion=%q Fallback=%v, want 2 false", out.PromptVersion, out.Fallback)
	}

	want := "SITE|Title: Example\nURL: https://example.com\nContent: " + strings.Repeat("é", 500) + "..."
	if gen.prompts[0] != want {
		t.Errorf("prompt = %q, want %q", gen.prompts[0], want)
	}
}

func TestGenerateIdeas_FallbackPrompt(t *testing.T) {
	database := newTestDB(t)
	putPage(t, database, models.CapturedPage{URL: "https://example.com", Timestamp: 1000})

	st := settings.Defaults()
	st.SelectedVersion = "missing"

	out, err := GenerateIdeas(context.Background(), database, st, &fakeGenerator{}, GenerateInput{})
	if err != nil {
		t.Fatalf("GenerateIdeas failed: %v", err)
	}
	if !out.Fallback || out.PromptVersion != settings.DefaultVersionID {
		t.Errorf("Fallback=%v PromptVersion=%q, want fallback to %q", out.Fallback, out.PromptVersion, settings.DefaultVersionID)
	}
}

func TestGenerateIdeas_ThreadReply(t *testing.T) {
	database := newTestDB(t)
	putPage(t, database, models.CapturedPage{URL: "https://example.com", Timestamp: 1000})

	gen := &fakeGenerator{reply: func(string) (string, error) {
		return "Thread: Big news\n\n1/ first\n2/ second\n", nil
	}}
	out, err := GenerateIdeas(context.Background(), database, settings.Defaults(), gen, GenerateInput{})
	if err != nil {
		t.Fatalf("GenerateIdeas failed: %v", err)
	}
	idea := out.Ideas[0]
	if !idea.IsThread || idea.Content != "Big news" || len(idea.Thread) != 2 {
		t.Errorf("idea = %+v, want a two-entry thread", idea)
	}
}

func TestGenerateIdeas_FailFastStoresNothing(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		putPage(t, database, models.CapturedPage{URL: fmt.Sprintf("https://example.com/%d", i), Timestamp: int64(i)})
	}

	var n atomic.Int32
	gen := &fakeGenerator{reply: func(p string) (string, error) {
		if n.Add(1) == 2 {
			return "", errors.NewAssistantFailed("failed", "server_error")
		}
		return "Tweet: ok", nil
	}}

	_, err := GenerateIdeas(ctx, database, settings.Defaults(), gen, GenerateInput{})
	if !errors.Is(err, errors.ErrAssistantFailed) {
		t.Fatalf("expected ErrAssistantFailed, got: %v", err)
	}

	list, err := ListIdeas(ctx, database, ListIdeasInput{})
	if err != nil {
		t.Fatalf("ListIdeas failed: %v", err)
	}
	if list.Total != 0 {
		t.Errorf("ideas stored = %d, want 0 after a failed generation", list.Total)
	}
}

func TestGenerateIdeas_PlainErrorIsWrapped(t *testing.T) {
	database := newTestDB(t)
	putPage(t, database, models.CapturedPage{URL: "https://example.com", Timestamp: 1})

	gen := &fakeGenerator{reply: func(string) (string, error) { return "", fmt.Errorf("socket closed") }}
	_, err := GenerateIdeas(context.Background(), database, settings.Defaults(), gen, GenerateInput{})
	if !errors.Is(err, errors.ErrAssistantFailed) {
		t.Errorf("expected ErrAssistantFailed, got: %v", err)
	}
}

func TestGenerateIdeas_CountOverride(t *testing.T) {
	database := newTestDB(t)
	for i := 1; i <= 4; i++ {
		putPage(t, database, models.CapturedPage{URL: fmt.Sprintf("https://example.com/%d", i), Timestamp: int64(i)})
	}

	gen := &fakeGenerator{}
	out, err := GenerateIdeas(context.Background(), database, settings.Defaults(), gen, GenerateInput{Count: 2})
	if err != nil {
		t.Fatalf("GenerateIdeas failed: %v", err)
	}
	if len(out.Ideas) != 2 || gen.calls() != 2 {
		t.Errorf("ideas=%d calls=%d, want 2", len(out.Ideas), gen.calls())
	}
}

func TestGenerateIdeas_NoGenerator(t *testing.T) {
	database := newTestDB(t)

	_, err := GenerateIdeas(context.Background(), database, settings.Defaults(), nil, GenerateInput{})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}
