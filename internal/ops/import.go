package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeSkip    ImportMode = "skip"    // keep existing records on id/key collision
	ImportModeReplace ImportMode = "replace" // overwrite existing records on collision
)

// maxImportLine bounds one JSONL line; captured pages can be long.
const maxImportLine = 16 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: skip
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents a line that could not be imported.
type ImportError struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type parsedExport struct {
	entries []models.KnowledgeBaseEntry
	ideas   []models.TweetIdea
	pages   []PageItem // Key is empty when the record carried no valid key
}

// Import loads knowledge-base entries, ideas and pages from an export file.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeSkip
	}
	if input.Mode != ImportModeSkip && input.Mode != ImportModeReplace {
		return nil, errors.NewInvalidRequest("mode must be one of: skip, replace")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openForRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	parsed, parseErrors := parseExportFile(file)
	out := &ImportOutput{Skipped: len(parseErrors), Errors: parseErrors}
	replace := input.Mode == ImportModeReplace

	// All records land in one transaction; a storage failure imports nothing.
	err = db.WithTx(ctx, database, func(tx *sql.Tx) error {
		if err := importKnowledge(ctx, tx, parsed.entries, replace, out); err != nil {
			return err
		}
		if err := importIdeas(ctx, tx, parsed.ideas, replace, out); err != nil {
			return err
		}
		return importPages(ctx, tx, parsed.pages, replace, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func importKnowledge(ctx context.Context, tx *sql.Tx, entries []models.KnowledgeBaseEntry, replace bool, out *ImportOutput) error {
	if len(entries) == 0 {
		return nil
	}
	return db.UpdateJSONTx(ctx, tx, models.KeyKnowledgeBase, func(stored *[]models.KnowledgeBaseEntry) error {
		index := make(map[string]int, len(*stored))
		for i, e := range *stored {
			index[e.ID] = i
		}
		for _, e := range entries {
			if i, ok := index[e.ID]; ok {
				if !replace {
					out.Skipped++
					continue
				}
				(*stored)[i] = e
			} else {
				index[e.ID] = len(*stored)
				*stored = append(*stored, e)
			}
			out.Imported++
		}
		sort.SliceStable(*stored, func(i, j int) bool {
			return (*stored)[i].Timestamp > (*stored)[j].Timestamp
		})
		return nil
	})
}

func importIdeas(ctx context.Context, tx *sql.Tx, ideas []models.TweetIdea, replace bool, out *ImportOutput) error {
	if len(ideas) == 0 {
		return nil
	}
	return db.UpdateJSONTx(ctx, tx, models.KeyTweetIdeas, func(stored *[]models.TweetIdea) error {
		index := make(map[string]int, len(*stored))
		for i, idea := range *stored {
			index[idea.ID] = i
		}
		for _, idea := range ideas {
			if i, ok := index[idea.ID]; ok {
				if !replace {
					out.Skipped++
					continue
				}
				(*stored)[i] = idea
			} else {
				index[idea.ID] = len(*stored)
				*stored = append(*stored, idea)
			}
			out.Imported++
		}
		return nil
	})
}

// importPages restores each page under its exported key. Pages without a usable
// key are stored like a fresh capture, at the first free key from their timestamp.
func importPages(ctx context.Context, tx *sql.Tx, pages []PageItem, replace bool, out *ImportOutput) error {
	for _, item := range pages {
		if item.Key == "" {
			if _, err := storePage(ctx, tx, item.CapturedPage); err != nil {
				return err
			}
			out.Imported++
			continue
		}

		stored, err := db.SetIfAbsent(ctx, tx, item.Key, item.CapturedPage)
		if err != nil {
			return err
		}
		if !stored {
			if !replace {
				out.Skipped++
				continue
			}
			if err := db.Set(ctx, tx, item.Key, item.CapturedPage); err != nil {
				return err
			}
		}
		out.Imported++
	}
	return nil
}

// parseExportFile splits an export file into typed records.
func parseExportFile(r io.Reader) (parsedExport, []ImportError) {
	var (
		parsed      parsedExport
		parseErrors []ImportError
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec struct {
			GleanExport bool `json:"_glean_export"`
			ExportRecord
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if rec.GleanExport {
			continue
		}

		invalid := func(msg string) {
			parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "INVALID_RECORD", Message: msg})
		}

		switch rec.Kind {
		case KindKnowledge:
			if rec.Entry == nil || rec.Entry.ID == "" {
				invalid("kb record missing entry id")
				continue
			}
			if !rec.Entry.Type.Valid() {
				invalid(fmt.Sprintf("unknown entry type %q", rec.Entry.Type))
				continue
			}
			parsed.entries = append(parsed.entries, *rec.Entry)
		case KindIdea:
			if rec.Idea == nil || rec.Idea.ID == "" {
				invalid("idea record missing id")
				continue
			}
			parsed.ideas = append(parsed.ideas, *rec.Idea)
		case KindPage:
			if rec.Page == nil || rec.Page.Timestamp <= 0 {
				invalid("page record missing timestamp")
				continue
			}
			item := PageItem{CapturedPage: *rec.Page}
			if _, ok := models.ParsePageKey(rec.Key); ok {
				item.Key = rec.Key
			}
			parsed.pages = append(parsed.pages, item)
		default:
			invalid(fmt.Sprintf("unknown kind %q", rec.Kind))
		}
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return parsed, parseErrors
}
