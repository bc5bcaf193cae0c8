package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/models"
)

// ListPagesInput contains parameters for the ListPages operation.
type ListPagesInput struct {
	Limit int // default: DefaultPageLimit, max: MaxPageLimit
}

// PageItem is a captured page with its store key.
type PageItem struct {
	Key string `json:"key"`
	models.CapturedPage
}

// ListPagesOutput contains the result of the ListPages operation.
type ListPagesOutput struct {
	Pages   []PageItem `json:"pages"`
	Total   int        `json:"total"`
	HasMore bool       `json:"has_more"`
}

// ListPages returns captured pages, newest first.
func ListPages(ctx context.Context, database *sql.DB, input ListPagesInput) (*ListPagesOutput, error) {
	limit := normalizeLimit(input.Limit)

	pages, err := loadPages(ctx, database)
	if err != nil {
		return nil, err
	}

	total := len(pages)
	if len(pages) > limit {
		pages = pages[:limit]
	}
	return &ListPagesOutput{
		Pages:   pages,
		Total:   total,
		HasMore: total > limit,
	}, nil
}

// recentPages returns up to n captured pages, newest first.
func recentPages(ctx context.Context, database *sql.DB, n int) ([]models.CapturedPage, error) {
	items, err := loadPages(ctx, database)
	if err != nil {
		return nil, err
	}
	if len(items) > n {
		items = items[:n]
	}
	pages := make([]models.CapturedPage, len(items))
	for i, item := range items {
		pages[i] = item.CapturedPage
	}
	return pages, nil
}

// loadPages decodes every page_* record and sorts them newest first.
// Undecodable records are left out; Sweep reports them.
func loadPages(ctx context.Context, database *sql.DB) ([]PageItem, error) {
	records, err := db.ScanPrefix(ctx, database, models.PagePrefix)
	if err != nil {
		return nil, err
	}

	pages := make([]PageItem, 0, len(records))
	for _, r := range records {
		var page models.CapturedPage
		if err := json.Unmarshal(r.Value, &page); err != nil {
			continue
		}
		pages = append(pages, PageItem{Key: r.Key, CapturedPage: page})
	}

	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Timestamp != pages[j].Timestamp {
			return pages[i].Timestamp > pages[j].Timestamp
		}
		return pages[i].Key > pages[j].Key
	})
	return pages, nil
}
