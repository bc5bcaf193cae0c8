package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/settings"
)

// SettingsOutput is the stored settings plus the prompt generation will use.
type SettingsOutput struct {
	*settings.Settings
	ActivePrompt   models.PromptVersion `json:"activePrompt"`
	PromptFallback bool                 `json:"promptFallback"`
}

// GetSettings loads the settings with defaults applied.
func GetSettings(ctx context.Context, database *sql.DB) (*SettingsOutput, error) {
	st, err := settings.Load(ctx, database)
	if err != nil {
		return nil, err
	}
	return settingsOutput(st), nil
}

// UpdateSettingsInput is a partial settings update; nil fields are left unchanged.
type UpdateSettingsInput struct {
	Monitoring          *bool                           `json:"monitoring,omitempty"`
	RetentionDays       *int                            `json:"retentionDays,omitempty"`
	SelectedVersion     *string                         `json:"selectedVersion,omitempty"`
	PromptVersions      []models.PromptVersion          `json:"promptVersions,omitempty"`      // upserted by id
	DeletePromptVersion *string                         `json:"deletePromptVersion,omitempty"` // removed by id
	SnippetTypes        []models.SnippetTypeDescription `json:"snippetTypes,omitempty"`        // descriptions replaced by type
}

// UpdateSettings applies a partial update and saves the result.
// Load, edit and save run in one transaction so concurrent updates serialize.
func UpdateSettings(ctx context.Context, database *sql.DB, input UpdateSettingsInput) (*SettingsOutput, error) {
	var st *settings.Settings
	err := db.WithTx(ctx, database, func(tx *sql.Tx) error {
		var err error
		if st, err = settings.Load(ctx, tx); err != nil {
			return err
		}
		if err := applySettingsUpdate(st, input); err != nil {
			return err
		}
		return settings.Save(ctx, tx, st)
	})
	if err != nil {
		return nil, err
	}
	return settingsOutput(st), nil
}

func applySettingsUpdate(st *settings.Settings, input UpdateSettingsInput) error {
	if input.Monitoring != nil {
		st.Monitoring = *input.Monitoring
	}
	if input.RetentionDays != nil {
		if *input.RetentionDays < 1 {
			return errors.NewInvalidRequest("retentionDays must be a positive integer")
		}
		st.RetentionDays = *input.RetentionDays
	}

	for _, v := range input.PromptVersions {
		v.ID = strings.TrimSpace(v.ID)
		if v.ID == "" {
			return errors.NewInvalidRequest("prompt version id is required")
		}
		if strings.TrimSpace(v.Prompt) == "" {
			return errors.NewInvalidRequest("prompt version " + v.ID + " has an empty prompt")
		}
		if strings.TrimSpace(v.Name) == "" {
			v.Name = "Version " + v.ID
		}
		st.UpsertPromptVersion(v)
	}

	if id := cleanOptionalString(input.DeletePromptVersion); id != nil {
		kept := st.PromptVersions[:0]
		found := false
		for _, v := range st.PromptVersions {
			if v.ID == *id {
				found = true
				continue
			}
			kept = append(kept, v)
		}
		if !found {
			return errors.NewNotFound("prompt version", *id)
		}
		if len(kept) == 0 {
			return errors.NewInvalidRequest("cannot delete the last prompt version")
		}
		st.PromptVersions = kept
		if st.SelectedVersion == *id {
			st.SelectedVersion = kept[0].ID
		}
	}

	if input.SelectedVersion != nil {
		id := strings.TrimSpace(*input.SelectedVersion)
		if !hasPromptVersion(st, id) {
			return errors.NewNotFound("prompt version", id)
		}
		st.SelectedVersion = id
	}

	for _, t := range input.SnippetTypes {
		if strings.TrimSpace(string(t.Type)) == "" {
			return errors.NewInvalidRequest("snippet type is required")
		}
		st.SetDescription(t.Type, t.Description)
	}

	return nil
}

// ClearSettingsOutput contains the result of the ClearSettings operation.
type ClearSettingsOutput struct {
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// ClearSettings resets every setting to its default. Failures are counted, not returned.
func ClearSettings(ctx context.Context, database *sql.DB) *ClearSettingsOutput {
	removed, failed := settings.Clear(ctx, database)
	return &ClearSettingsOutput{Removed: removed, Failed: failed}
}

func settingsOutput(st *settings.Settings) *SettingsOutput {
	resolved := st.SelectedPrompt()
	return &SettingsOutput{
		Settings:       st,
		ActivePrompt:   resolved.Version,
		PromptFallback: resolved.Fallback,
	}
}

func hasPromptVersion(st *settings.Settings, id string) bool {
	for _, v := range st.PromptVersions {
		if v.ID == id {
			return true
		}
	}
	return false
}
