// Package settings loads and saves the user-editable generation settings.
//
// Settings are explicit state: callers Load them at a process or request
// boundary, pass the value down, and Save when they change something.
package settings

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
)

// DefaultRetentionDays applies when no valid retention window is stored.
const DefaultRetentionDays = 7

// DefaultVersionID identifies the built-in prompt version.
const DefaultVersionID = "1"

// DefaultPrompt is the built-in prompt template.
const DefaultPrompt = `Come up with a catchy and fun tweet or twitter thread as appropriate given the below information.

[snippet_description]
[snippet]

Be sure to keep it fun, short and sweet`

// DefaultWebsiteDescription is used when no description exists for a snippet type.
const DefaultWebsiteDescription = "Below is a website I visited and a snippet about the website"

// Settings is the user-editable configuration stored alongside the captured data.
type Settings struct {
	Monitoring      bool                            `json:"monitoring"`
	RetentionDays   int                             `json:"retentionDays"`
	PromptVersions  []models.PromptVersion          `json:"promptVersions"`
	SelectedVersion string                          `json:"selectedVersion"`
	SnippetTypes    []models.SnippetTypeDescription `json:"snippetTypes"`
}

// ResolvedPrompt is the prompt version chosen for generation.
type ResolvedPrompt struct {
	Version models.PromptVersion
	// Fallback is true when SelectedVersion did not name an existing version.
	Fallback bool
}

// DefaultPromptVersions returns the built-in prompt versions.
func DefaultPromptVersions() []models.PromptVersion {
	return []models.PromptVersion{{
		ID:     DefaultVersionID,
		Name:   "Default Version",
		Prompt: DefaultPrompt,
	}}
}

// DefaultSnippetTypes returns the built-in snippet type descriptions.
func DefaultSnippetTypes() []models.SnippetTypeDescription {
	return []models.SnippetTypeDescription{
		{Type: models.SnippetWebsite, Description: DefaultWebsiteDescription},
		{Type: models.SnippetArticle, Description: "Below is a snippet of an article I read"},
		{Type: models.SnippetVideo, Description: "Below is a description of a video I watched"},
		{Type: models.SnippetIdea, Description: "Below is an idea for a tweet I had"},
		{Type: models.SnippetKnowledgebase, Description: "Below is a snippet from a knowledgebase about me"},
	}
}

// Defaults returns the settings used when nothing is stored.
func Defaults() *Settings {
	return &Settings{
		Monitoring:      false,
		RetentionDays:   DefaultRetentionDays,
		PromptVersions:  DefaultPromptVersions(),
		SelectedVersion: DefaultVersionID,
		SnippetTypes:    DefaultSnippetTypes(),
	}
}

// Load reads the settings keys, filling defaults for anything absent or invalid.
// Pass a *sql.Tx to read as part of a larger update.
func Load(ctx context.Context, database db.Querier) (*Settings, error) {
	s := Defaults()

	if _, err := db.Get(ctx, database, models.KeyMonitoring, &s.Monitoring); err != nil {
		return nil, err
	}

	var days int
	found, err := db.Get(ctx, database, models.KeyRetentionDays, &days)
	if err != nil {
		return nil, err
	}
	if found {
		if days > 0 {
			s.RetentionDays = days
		} else {
			log.Warn().Int("retentionDays", days).Msg("Ignoring non-positive retention window")
		}
	}

	var versions []models.PromptVersion
	if found, err := db.Get(ctx, database, models.KeyPromptVersions, &versions); err != nil {
		return nil, err
	} else if found && len(versions) > 0 {
		s.PromptVersions = versions
	}

	var selected string
	if found, err := db.Get(ctx, database, models.KeySelectedVersion, &selected); err != nil {
		return nil, err
	} else if found && selected != "" {
		s.SelectedVersion = selected
	}

	var types []models.SnippetTypeDescription
	if found, err := db.Get(ctx, database, models.KeySnippetTypes, &types); err != nil {
		return nil, err
	} else if found && len(types) > 0 {
		s.SnippetTypes = types
	}

	return s, nil
}

// Save validates s and writes every settings key.
// Callers that also read the settings should Load and Save in one db.WithTx.
func Save(ctx context.Context, database db.Querier, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	values := map[string]any{
		models.KeyMonitoring:      s.Monitoring,
		models.KeyRetentionDays:   s.RetentionDays,
		models.KeyPromptVersions:  s.PromptVersions,
		models.KeySelectedVersion: s.SelectedVersion,
		models.KeySnippetTypes:    s.SnippetTypes,
	}
	for _, key := range models.SettingsKeys {
		if err := db.Set(ctx, database, key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every settings key in one transaction so the next Load returns
// defaults. Removal is best-effort: failures are logged and counted, never returned.
func Clear(ctx context.Context, database *sql.DB) (removed, failed int) {
	err := db.WithTx(ctx, database, func(tx *sql.Tx) error {
		removed, failed = 0, 0
		for _, key := range models.SettingsKeys {
			ok, err := db.Remove(ctx, tx, key)
			if err != nil {
				failed++
				log.Error().Err(err).Str("key", key).Msg("Failed to clear setting")
				continue
			}
			if ok {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear settings")
		return 0, len(models.SettingsKeys)
	}
	return removed, failed
}

// Validate checks the invariants Save relies on.
func (s *Settings) Validate() error {
	if s.RetentionDays < 1 {
		return errors.NewInvalidRequest("retentionDays must be a positive integer")
	}
	seen := make(map[string]bool, len(s.PromptVersions))
	for _, v := range s.PromptVersions {
		if strings.TrimSpace(v.ID) == "" {
			return errors.NewInvalidRequest("prompt version id must not be empty")
		}
		if seen[v.ID] {
			return errors.NewInvalidRequest("duplicate prompt version id: " + v.ID)
		}
		seen[v.ID] = true
	}
	return nil
}

// SelectedPrompt resolves the prompt version used for generation:
// the selected id if it exists, else the first stored version, else the built-in default.
func (s *Settings) SelectedPrompt() ResolvedPrompt {
	for _, v := range s.PromptVersions {
		if v.ID == s.SelectedVersion {
			return ResolvedPrompt{Version: v}
		}
	}
	if len(s.PromptVersions) > 0 {
		return ResolvedPrompt{Version: s.PromptVersions[0], Fallback: true}
	}
	return ResolvedPrompt{Version: DefaultPromptVersions()[0], Fallback: true}
}

// Description returns the prompt text for a snippet type,
// falling back to the website description.
func (s *Settings) Description(t models.SnippetType) string {
	for _, st := range s.SnippetTypes {
		if st.Type == t {
			return st.Description
		}
	}
	return DefaultWebsiteDescription
}

// UpsertPromptVersion replaces the version with v.ID or appends v.
func (s *Settings) UpsertPromptVersion(v models.PromptVersion) {
	for i := range s.PromptVersions {
		if s.PromptVersions[i].ID == v.ID {
			s.PromptVersions[i] = v
			return
		}
	}
	s.PromptVersions = append(s.PromptVersions, v)
}

// SetDescription replaces the description of t, appending it if t is new.
func (s *Settings) SetDescription(t models.SnippetType, description string) {
	for i := range s.SnippetTypes {
		if s.SnippetTypes[i].Type == t {
			s.SnippetTypes[i].Description = description
			return
		}
	}
	s.SnippetTypes = append(s.SnippetTypes, models.SnippetTypeDescription{Type: t, Description: description})
}
