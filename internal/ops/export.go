package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
)

// Export record kinds.
const (
	KindKnowledge = "kb"
	KindIdea      = "idea"
	KindPage      = "page"
)

// ExportSchemaVersion is written to the header line of every export.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path         string // optional, default: ~/.glean/exports/glean-<timestamp>.jsonl
	IncludePages bool   // also export captured pages still within retention
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Knowledge  int    `json:"knowledge"`
	Ideas      int    `json:"ideas"`
	Pages      int    `json:"pages"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader represents the header line in a JSONL export file.
type ExportHeader struct {
	GleanExport   bool   `json:"_glean_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportRecord is one line of an export file. Exactly one payload is set, matching Kind.
// Key is the store key of a page record, which can differ from page_<timestamp>
// when captures shared a millisecond.
type ExportRecord struct {
	Kind  string                     `json:"kind"`
	Key   string                     `json:"key,omitempty"`
	Entry *models.KnowledgeBaseEntry `json:"entry,omitempty"`
	Idea  *models.TweetIdea          `json:"idea,omitempty"`
	Page  *models.CapturedPage       `json:"page,omitempty"`
}

// Export writes the knowledge base and tweet ideas (and optionally pages) to a JSONL file.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	exportPath := input.Path
	if exportPath == "" {
		var err error
		exportPath, err = defaultExportPath(now)
		if err != nil {
			return nil, err
		}
	}

	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	var entries []models.KnowledgeBaseEntry
	if _, err := db.Get(ctx, database, models.KeyKnowledgeBase, &entries); err != nil {
		return nil, err
	}
	var ideas []models.TweetIdea
	if _, err := db.Get(ctx, database, models.KeyTweetIdeas, &ideas); err != nil {
		return nil, err
	}
	var pages []PageItem
	if input.IncludePages {
		var err error
		if pages, err = loadPages(ctx, database); err != nil {
			return nil, err
		}
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to a temp file first, then rename, so a failed export never clobbers an old one.
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openForWrite(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	out := &ExportOutput{Path: exportPath, ExportedAt: now.Unix()}

	if err := writeLine(file, ExportHeader{
		GleanExport:   true,
		SchemaVersion: ExportSchemaVersion,
		ExportedAt:    out.ExportedAt,
	}); err != nil {
		return nil, err
	}

	for i := range entries {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("export")
		}
		if err := writeLine(file, ExportRecord{Kind: KindKnowledge, Entry: &entries[i]}); err != nil {
			return nil, err
		}
		out.Knowledge++
	}
	for i := range ideas {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("export")
		}
		if err := writeLine(file, ExportRecord{Kind: KindIdea, Idea: &ideas[i]}); err != nil {
			return nil, err
		}
		out.Ideas++
	}
	for i := range pages {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("export")
		}
		if err := writeLine(file, ExportRecord{Kind: KindPage, Key: pages[i].Key, Page: &pages[i].CapturedPage}); err != nil {
			return nil, err
		}
		out.Pages++
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows os.Rename fails when the destination exists; the existing file is kept.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return out, nil
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// defaultExportPath returns ~/.glean/exports/glean-<timestamp>.jsonl.
func defaultExportPath(now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("glean-%s.jsonl", now.Format("2006-01-02T150405"))
	return filepath.Join(dir, filename), nil
}
