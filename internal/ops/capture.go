package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/extract"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/settings"
)

// maxKeyProbes bounds the search for a free page_<ts> key within one burst of captures.
const maxKeyProbes = 1000

// CaptureInput is one tab-load-complete event.
type CaptureInput struct {
	URL       string // required
	Title     string
	Content   string // visible text; extracted from HTML when empty
	HTML      string
	Timestamp int64 // unix ms, default: now
}

// CaptureOutput contains the result of the Capture operation.
type CaptureOutput struct {
	Captured bool                 `json:"captured"`
	Reason   string               `json:"reason,omitempty"`
	Key      string               `json:"key,omitempty"`
	EntryID  string               `json:"entry_id,omitempty"`
	Page     *models.CapturedPage `json:"page,omitempty"`
}

// ReasonMonitoringDisabled is reported when a capture arrives while monitoring is off.
const ReasonMonitoringDisabled = "monitoring disabled"

// Capture records a loaded page: the page_<ts> record, a website knowledge-base
// entry (newest first) and a visitedPages entry (appended).
// Nothing is written while monitoring is disabled.
func Capture(ctx context.Context, database *sql.DB, st *settings.Settings, input CaptureInput) (*CaptureOutput, error) {
	if st == nil || !st.Monitoring {
		return &CaptureOutput{Captured: false, Reason: ReasonMonitoringDisabled}, nil
	}

	url := strings.TrimSpace(input.URL)
	if url == "" {
		return nil, errors.NewInvalidRequest("url is required")
	}

	title := strings.TrimSpace(input.Title)
	content := input.Content
	if strings.TrimSpace(content) == "" && input.HTML != "" {
		page, err := extract.VisibleText(input.HTML)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("failed to parse html: %v", err))
		}
		content = page.Text
		if title == "" {
			title = page.Title
		}
	}

	ts := input.Timestamp
	if ts <= 0 {
		ts = nowMillis()
	}

	page := models.CapturedPage{
		Content:   content,
		Title:     title,
		URL:       url,
		Timestamp: ts,
	}

	logger := log.With().Str("url", url).Int64("timestamp", ts).Logger()

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	entry := models.KnowledgeBaseEntry{
		ID:        id,
		Type:      models.EntryWebsite,
		Content:   content,
		Title:     title,
		Timestamp: ts,
	}

	// The page record and both list updates commit together or not at all.
	var key string
	err = db.WithTx(ctx, database, func(tx *sql.Tx) error {
		var err error
		if key, err = storePage(ctx, tx, page); err != nil {
			return err
		}
		if err := prependKnowledge(ctx, tx, entry); err != nil {
			return err
		}
		return db.UpdateJSONTx(ctx, tx, models.KeyVisitedPages, func(pages *[]models.CapturedPage) error {
			*pages = append(*pages, page)
			return nil
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to store captured page")
		return nil, err
	}

	logger.Debug().Str("key", key).Int("chars", models.CountChars(content)).Msg("Page captured")

	return &CaptureOutput{
		Captured: true,
		Key:      key,
		EntryID:  id,
		Page:     &page,
	}, nil
}

// storePage writes page under page_<ts>, moving to the next free millisecond key
// when captures collide. The record's timestamp is never changed.
func storePage(ctx context.Context, q db.Querier, page models.CapturedPage) (string, error) {
	for i := int64(0); i < maxKeyProbes; i++ {
		key := models.PageKey(page.Timestamp + i)
		stored, err := db.SetIfAbsent(ctx, q, key, page)
		if err != nil {
			return "", err
		}
		if stored {
			return key, nil
		}
	}
	return "", errors.NewInternal(fmt.Errorf("no free page key near %d", page.Timestamp))
}
