package ops

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/extract"
	"github.com/hpungsan/glean/internal/models"
)

// MaxSourceBytes caps the size of a file added to the knowledge base.
const MaxSourceBytes = 8 << 20

// maxDerivedTitle is the rune length of titles derived from note content.
const maxDerivedTitle = 80

// ListKnowledgeInput contains parameters for the ListKnowledge operation.
type ListKnowledgeInput struct {
	Type string // "", "all", "website", "file" or "note"
}

// ListKnowledgeOutput contains the result of the ListKnowledge operation.
type ListKnowledgeOutput struct {
	Entries []models.KnowledgeBaseEntry `json:"entries"`
	Total   int                         `json:"total"`
}

// ListKnowledge returns knowledge-base entries in stored order (newest first),
// optionally filtered by type.
func ListKnowledge(ctx context.Context, database *sql.DB, input ListKnowledgeInput) (*ListKnowledgeOutput, error) {
	filter := strings.ToLower(strings.TrimSpace(input.Type))
	if filter == "all" {
		filter = ""
	}
	if filter != "" && !models.EntryType(filter).Valid() {
		return nil, errors.NewInvalidRequest("type must be one of: all, website, file, note")
	}

	var entries []models.KnowledgeBaseEntry
	if _, err := db.Get(ctx, database, models.KeyKnowledgeBase, &entries); err != nil {
		return nil, err
	}

	out := lo.Filter(entries, func(e models.KnowledgeBaseEntry, _ int) bool {
		return filter == "" || string(e.Type) == filter
	})
	return &ListKnowledgeOutput{Entries: out, Total: len(out)}, nil
}

// AddKnowledgeInput contains parameters for the AddKnowledge operation.
type AddKnowledgeInput struct {
	Type    string // "file" or "note", default: "file" when Path is set, else "note"
	Title   string // default: file name, or the first line of a note
	Content string // required unless Path is set
	Path    string // file to read (.txt, .md, .markdown, .html, .htm)
}

// AddKnowledge adds a file or note to the front of the knowledge base.
func AddKnowledge(ctx context.Context, database *sql.DB, cfg *config.Config, input AddKnowledgeInput) (*models.KnowledgeBaseEntry, error) {
	entryType := models.EntryType(strings.ToLower(strings.TrimSpace(input.Type)))
	path := strings.TrimSpace(input.Path)
	if entryType == "" {
		entryType = models.EntryNote
		if path != "" {
			entryType = models.EntryFile
		}
	}

	switch entryType {
	case models.EntryFile, models.EntryNote:
	case models.EntryWebsite:
		return nil, errors.NewInvalidRequest("website entries are created by page captures")
	default:
		return nil, errors.NewInvalidRequest("type must be one of: file, note")
	}
	if path != "" && entryType != models.EntryFile {
		return nil, errors.NewInvalidRequest("path is only valid for file entries")
	}

	title := strings.TrimSpace(input.Title)
	content := input.Content

	if path != "" {
		text, err := readSource(path, cfg)
		if err != nil {
			return nil, err
		}
		content = text
		if title == "" {
			title = filepath.Base(path)
		}
	}

	if strings.TrimSpace(content) == "" {
		return nil, errors.NewInvalidRequest("content is required")
	}
	if title == "" {
		title = deriveTitle(content)
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	entry := models.KnowledgeBaseEntry{
		ID:        id,
		Type:      entryType,
		Content:   content,
		Title:     title,
		Timestamp: nowMillis(),
	}
	err = db.WithTx(ctx, database, func(tx *sql.Tx) error {
		return prependKnowledge(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteKnowledgeOutput contains the result of the DeleteKnowledge operation.
type DeleteKnowledgeOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// DeleteKnowledge removes the entry with id, keeping the order of the rest.
func DeleteKnowledge(ctx context.Context, database *sql.DB, id string) (*DeleteKnowledgeOutput, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	err := db.UpdateJSON(ctx, database, models.KeyKnowledgeBase, func(entries *[]models.KnowledgeBaseEntry) error {
		for i, e := range *entries {
			if e.ID == id {
				*entries = append((*entries)[:i], (*entries)[i+1:]...)
				return nil
			}
		}
		return errors.NewNotFound("knowledge entry", id)
	})
	if err != nil {
		return nil, err
	}
	return &DeleteKnowledgeOutput{ID: id, Deleted: true}, nil
}

// prependKnowledge inserts entry at the front of the knowledge base.
func prependKnowledge(ctx context.Context, tx *sql.Tx, entry models.KnowledgeBaseEntry) error {
	return db.UpdateJSONTx(ctx, tx, models.KeyKnowledgeBase, func(entries *[]models.KnowledgeBaseEntry) error {
		*entries = append([]models.KnowledgeBaseEntry{entry}, *entries...)
		return nil
	})
}

// readSource validates and reads a knowledge file, converting markdown and HTML to text.
func readSource(path string, cfg *config.Config) (string, error) {
	if err := ValidatePath(path, PathCheckSource, cfg); err != nil {
		return "", err
	}

	file, err := openForRead(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return "", err
		}
		return "", errors.NewInvalidRequest(fmt.Sprintf("cannot read file: %v", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxSourceBytes+1))
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("cannot read file: %v", err))
	}
	if len(data) > MaxSourceBytes {
		return "", errors.NewInvalidRequest(fmt.Sprintf("file exceeds %d bytes", MaxSourceBytes))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		text, err := extract.MarkdownText(string(data))
		if err != nil {
			return "", errors.NewInvalidRequest(fmt.Sprintf("cannot convert markdown: %v", err))
		}
		return text, nil
	case ".html", ".htm":
		page, err := extract.VisibleText(string(data))
		if err != nil {
			return "", errors.NewInvalidRequest(fmt.Sprintf("cannot parse html: %v", err))
		}
		return page.Text, nil
	default:
		return models.CleanText(string(data)), nil
	}
}

// deriveTitle uses the first non-blank line of content, shortened.
func deriveTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if short, truncated := models.Truncate(line, maxDerivedTitle); truncated {
			return short + "..."
		}
		return line
	}
	return "Untitled"
}
