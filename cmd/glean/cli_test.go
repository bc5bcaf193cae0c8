package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/ops"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	cleanup := func() {
		database.Close()
	}
	return database, cleanup
}

// testConfig returns a default config for testing.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	return cfg
}

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "Tweet: from the assistant", nil
}

// runCLI runs the app with args, feeding stdin when non-empty, and returns stdout.
func runCLI(t *testing.T, app *cli.App, stdin string, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	if stdin != "" {
		oldStdin := os.Stdin
		stdinR, stdinW, _ := os.Pipe()
		os.Stdin = stdinR
		go func() {
			_, _ = stdinW.WriteString(stdin)
			stdinW.Close()
		}()
		defer func() { os.Stdin = oldStdin }()
	}

	err := app.Run(append([]string{"glean"}, args...))

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	return buf.String(), err
}

func decodeOutput[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	return v
}

// TestCLICapture tests capture with monitoring off and on.
func TestCLICapture(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig(), nil)

	out, err := runCLI(t, app, "Page body", "capture", "--url=https://example.com", "--timestamp=1700000000000")
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if got := decodeOutput[ops.CaptureOutput](t, out); got.Captured {
		t.Fatal("expected capture to be skipped while monitoring is off")
	}

	if _, err := runCLI(t, app, "", "settings", "set", "--monitoring"); err != nil {
		t.Fatalf("settings set failed: %v", err)
	}

	out, err = runCLI(t, app, "<html><body><p>Hello</p><script>x()</script></body></html>",
		"capture", "--url=https://example.com", "--title=Example", "--html", "--timestamp=1700000000000")
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	captured := decodeOutput[ops.CaptureOutput](t, out)
	if !captured.Captured {
		t.Fatalf("expected capture, got reason %q", captured.Reason)
	}
	if captured.Page == nil || captured.Page.Content != "Hello" {
		t.Errorf("expected extracted content Hello, got %+v", captured.Page)
	}

	out, err = runCLI(t, app, "", "pages", "--limit=5")
	if err != nil {
		t.Fatalf("pages failed: %v", err)
	}
	pages := decodeOutput[ops.ListPagesOutput](t, out)
	if pages.Total != 1 || pages.Pages[0].Key != "page_1700000000000" {
		t.Errorf("unexpected pages output: %+v", pages)
	}
}

// TestCLISweep tests the sweep command.
func TestCLISweep(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Set(context.Background(), database, models.PageKey(1), models.CapturedPage{URL: "https://old.example", Timestamp: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	app := newCLIApp(database, testConfig(), nil)

	if _, err := runCLI(t, app, "", "sweep", "--retention-days=0"); err == nil {
		t.Error("expected error for zero retention days")
	}

	out, err := runCLI(t, app, "", "sweep")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if got := decodeOutput[ops.SweepOutput](t, out); got.Removed != 1 {
		t.Errorf("expected 1 removed, got %d", got.Removed)
	}
}

// TestCLIKnowledge tests kb add, list and delete.
func TestCLIKnowledge(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig(), nil)

	out, err := runCLI(t, app, "Things I care about", "kb", "add", "--title=Interests")
	if err != nil {
		t.Fatalf("kb add failed: %v", err)
	}
	note := decodeOutput[models.KnowledgeBaseEntry](t, out)
	if note.Type != models.EntryNote || note.Title != "Interests" {
		t.Errorf("unexpected note: %+v", note)
	}

	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte("Ten years of backend work"), 0600); err != nil {
		t.Fatal(err)
	}
	out, err = runCLI(t, app, "", "kb", "add", "--file="+path)
	if err != nil {
		t.Fatalf("kb add --file failed: %v", err)
	}
	file := decodeOutput[models.KnowledgeBaseEntry](t, out)
	if file.Type != models.EntryFile || file.Content != "Ten years of backend work" {
		t.Errorf("unexpected file entry: %+v", file)
	}

	out, err = runCLI(t, app, "", "kb", "list", "--type=file")
	if err != nil {
		t.Fatalf("kb list failed: %v", err)
	}
	if got := decodeOutput[ops.ListKnowledgeOutput](t, out); got.Total != 1 {
		t.Errorf("expected 1 file entry, got %d", got.Total)
	}

	if _, err := runCLI(t, app, "", "kb", "delete", note.ID); err != nil {
		t.Fatalf("kb delete failed: %v", err)
	}
	if _, err := runCLI(t, app, "", "kb", "delete", note.ID); err == nil {
		t.Error("expected error deleting a missing entry")
	}
	if _, err := runCLI(t, app, "", "kb", "delete"); err == nil {
		t.Error("expected error when id is missing")
	}
}

// TestCLIIdeas tests ideas add, star, edit, list and delete.
func TestCLIIdeas(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig(), nil)

	out, err := runCLI(t, app, "", "ideas", "add", "--thread=part two", "--thread=part three", "Ship", "small", "PRs")
	if err != nil {
		t.Fatalf("ideas add failed: %v", err)
	}
	idea := decodeOutput[models.TweetIdea](t, out)
	if idea.Content != "Ship small PRs" || !idea.IsThread || len(idea.Thread) != 2 {
		t.Fatalf("unexpected idea: %+v", idea)
	}

	out, err = runCLI(t, app, "", "ideas", "star", idea.ID)
	if err != nil {
		t.Fatalf("ideas star failed: %v", err)
	}
	if got := decodeOutput[models.TweetIdea](t, out); !got.IsStarred {
		t.Error("expected idea to be starred")
	}

	out, err = runCLI(t, app, "", "ideas", "edit", "--content=Ship tiny PRs", "--single", idea.ID)
	if err != nil {
		t.Fatalf("ideas edit failed: %v", err)
	}
	edited := decodeOutput[models.TweetIdea](t, out)
	if edited.Content != "Ship tiny PRs" || edited.IsThread || !edited.IsStarred {
		t.Errorf("unexpected edited idea: %+v", edited)
	}

	out, err = runCLI(t, app, "", "ideas", "list", "--starred")
	if err != nil {
		t.Fatalf("ideas list failed: %v", err)
	}
	if got := decodeOutput[ops.ListIdeasOutput](t, out); got.Total != 1 {
		t.Errorf("expected 1 starred idea, got %d", got.Total)
	}

	if _, err := runCLI(t, app, "", "ideas", "delete", idea.ID); err != nil {
		t.Fatalf("ideas delete failed: %v", err)
	}
	if _, err := runCLI(t, app, "", "ideas", "star", idea.ID); err == nil {
		t.Error("expected error starring a deleted idea")
	}
}

// TestCLIGenerate tests ideas generate with and without an assistant.
func TestCLIGenerate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Set(context.Background(), database, models.PageKey(10), models.CapturedPage{URL: "https://example.com", Title: "Example", Timestamp: 10}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := runCLI(t, newCLIApp(database, testConfig(), nil), "", "ideas", "generate"); err == nil {
		t.Error("expected error without an assistant")
	}

	out, err := runCLI(t, newCLIApp(database, testConfig(), echoGenerator{}), "", "ideas", "generate")
	if err != nil {
		t.Fatalf("ideas generate failed: %v", err)
	}
	got := decodeOutput[ops.GenerateOutput](t, out)
	if len(got.Ideas) != 1 || got.Ideas[0].Content != "from the assistant" {
		t.Errorf("unexpected generate output: %+v", got)
	}
}

// TestCLISettings tests settings show, set and clear.
func TestCLISettings(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig(), nil)

	out, err := runCLI(t, app, "Write a tweet about {{snippet}}", "settings", "set",
		"--retention-days=14", "--add-version=2", "--version-name=Short", "--select=2")
	if err != nil {
		t.Fatalf("settings set failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if got["retentionDays"] != float64(14) || got["selectedVersion"] != "2" {
		t.Errorf("unexpected settings: %v", got)
	}

	if _, err := runCLI(t, app, "", "settings", "set", "--select=missing"); err == nil {
		t.Error("expected error selecting an unknown version")
	}

	if _, err := runCLI(t, app, "", "settings", "clear"); err != nil {
		t.Fatalf("settings clear failed: %v", err)
	}

	out, err = runCLI(t, app, "", "settings", "show")
	if err != nil {
		t.Fatalf("settings show failed: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if got["retentionDays"] != float64(7) || got["monitoring"] != false {
		t.Errorf("expected defaults after clear, got %v", got)
	}
}

// TestCLIExportImport tests export then import into a fresh database.
func TestCLIExportImport(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig(), nil)
	if _, err := runCLI(t, app, "", "ideas", "add", "Portable idea"); err != nil {
		t.Fatalf("ideas add failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "backup.jsonl")
	out, err := runCLI(t, app, "", "export", "--path="+path)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if got := decodeOutput[ops.ExportOutput](t, out); got.Ideas != 1 {
		t.Errorf("expected 1 idea exported, got %d", got.Ideas)
	}

	other, cleanupOther := setupTestDB(t)
	defer cleanupOther()

	otherApp := newCLIApp(other, testConfig(), nil)
	out, err = runCLI(t, otherApp, "", "import", path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if got := decodeOutput[ops.ImportOutput](t, out); got.Imported != 1 {
		t.Errorf("expected 1 imported, got %d", got.Imported)
	}

	if _, err := runCLI(t, otherApp, "", "import", "--mode=merge", path); err == nil {
		t.Error("expected error for unknown import mode")
	}
	if _, err := runCLI(t, otherApp, "", "import"); err == nil {
		t.Error("expected error when path is missing")
	}
}

// TestOutputError tests that CLI errors carry the error code.
func TestOutputError(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig(), nil)
	_, err := runCLI(t, app, "", "ideas", "star", "nonexistent")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "[NOT_FOUND] ") {
		t.Errorf("expected [NOT_FOUND] prefix, got %q", err.Error())
	}
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"glean"}, expected: false},
		{name: "serve command", args: []string{"glean", "serve"}, expected: true},
		{name: "ideas command", args: []string{"glean", "ideas", "list"}, expected: true},
		{name: "debug flag", args: []string{"glean", "--debug", "pages"}, expected: true},
		{name: "help flag", args: []string{"glean", "--help"}, expected: true},
		{name: "version flag", args: []string{"glean", "--version"}, expected: true},
		{name: "short help flag", args: []string{"glean", "-h"}, expected: true},
		{name: "short version flag", args: []string{"glean", "-v"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"glean", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"glean"}, expected: false},
		{name: "help flag", args: []string{"glean", "--help"}, expected: true},
		{name: "short help flag", args: []string{"glean", "-h"}, expected: true},
		{name: "version flag", args: []string{"glean", "--version"}, expected: true},
		{name: "help subcommand", args: []string{"glean", "help"}, expected: true},
		{name: "pages command is not help", args: []string{"glean", "pages"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestReadStdinWithLimit tests the readStdin function respects size limits.
func TestReadStdinWithLimit(t *testing.T) {
	feed := func(t *testing.T, content string) {
		t.Helper()
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("Failed to create pipe: %v", err)
		}
		go func() {
			_, _ = w.WriteString(content)
			w.Close()
		}()
		oldStdin := os.Stdin
		os.Stdin = r
		t.Cleanup(func() { os.Stdin = oldStdin })
	}

	t.Run("within limit", func(t *testing.T) {
		feed(t, "  small content\n")
		result, err := readStdin(1000)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "small content" {
			t.Errorf("expected %q, got %q", "small content", result)
		}
	})

	t.Run("exceeds limit", func(t *testing.T) {
		feed(t, strings.Repeat("x", 100))
		if _, err := readStdin(50); err == nil {
			t.Error("expected error for content exceeding limit, got nil")
		}
	})
}
