package ops

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/settings"
)

// SweepInput contains parameters for the Sweep operation.
type SweepInput struct {
	RetentionDays int   // default: settings.DefaultRetentionDays
	Now           int64 // unix ms, default: now
}

// SweepOutput contains the result of the Sweep operation.
type SweepOutput struct {
	Scanned int   `json:"scanned"`
	Removed int   `json:"removed"`
	Failed  int   `json:"failed"`
	Skipped int   `json:"skipped"`
	Cutoff  int64 `json:"cutoff"`
}

// IsExpired reports whether a page captured at ts is past a retention window of days.
// A page exactly days old is kept.
func IsExpired(ts, now int64, days int) bool {
	return ts < now-int64(days)*dayMillis
}

// Sweep removes captured pages older than the retention window.
// Removal is best-effort per key: failures are logged and counted and the sweep goes on.
// Records that do not decode as a page are skipped.
func Sweep(ctx context.Context, database *sql.DB, input SweepInput) (*SweepOutput, error) {
	days := input.RetentionDays
	if days <= 0 {
		days = settings.DefaultRetentionDays
	}
	now := input.Now
	if now <= 0 {
		now = nowMillis()
	}

	records, err := db.ScanPrefix(ctx, database, models.PagePrefix)
	if err != nil {
		return nil, err
	}

	out := &SweepOutput{Cutoff: now - int64(days)*dayMillis}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return out, errors.NewCancelled("sweep")
		}
		out.Scanned++

		var page models.CapturedPage
		if err := json.Unmarshal(r.Value, &page); err != nil || page.Timestamp <= 0 {
			out.Skipped++
			log.Warn().Str("key", r.Key).Msg("Skipping malformed page record")
			continue
		}
		if !IsExpired(page.Timestamp, now, days) {
			continue
		}

		removed, err := db.Remove(ctx, database, r.Key)
		if err != nil {
			out.Failed++
			log.Error().Err(err).Str("key", r.Key).Msg("Failed to remove expired page")
			continue
		}
		if removed {
			out.Removed++
		}
	}

	log.Debug().
		Int("scanned", out.Scanned).
		Int("removed", out.Removed).
		Int("failed", out.Failed).
		Int("retention_days", days).
		Msg("Retention sweep finished")

	return out, nil
}
