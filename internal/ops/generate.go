package ops

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/glean/internal/assistant"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/prompt"
	"github.com/hpungsan/glean/internal/settings"
)

// DefaultGenerateCount is how many recent pages feed one generation.
const DefaultGenerateCount = 5

// GenerateInput contains parameters for the GenerateIdeas operation.
type GenerateInput struct {
	Count        int // default: DefaultGenerateCount
	SnippetChars int // default: prompt.DefaultSnippetChars
}

// GenerateOutput contains the result of the GenerateIdeas operation.
type GenerateOutput struct {
	Ideas         []models.TweetIdea `json:"ideas"`
	Pages         int                `json:"pages"`
	PromptVersion string             `json:"prompt_version,omitempty"`
	Fallback      bool               `json:"prompt_fallback,omitempty"`
}

// GenerateIdeas asks gen for one idea per recent page and stores the results at the
// front of the idea list, in page order.
// Requests run concurrently; the first failure cancels the rest and nothing is stored.
func GenerateIdeas(ctx context.Context, database *sql.DB, st *settings.Settings, gen assistant.Generator, input GenerateInput) (*GenerateOutput, error) {
	if gen == nil {
		return nil, errors.NewInvalidRequest("assistant is not configured")
	}
	if st == nil {
		st = settings.Defaults()
	}
	count := input.Count
	if count <= 0 {
		count = DefaultGenerateCount
	}

	pages, err := recentPages(ctx, database, count)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return &GenerateOutput{Ideas: []models.TweetIdea{}}, nil
	}

	resolved := st.SelectedPrompt()
	if resolved.Fallback {
		log.Warn().
			Str("selected", st.SelectedVersion).
			Str("using", resolved.Version.ID).
			Msg("Selected prompt version not found, using fallback")
	}
	description := st.Description(models.SnippetWebsite)

	ideas := make([]models.TweetIdea, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, page := range pages {
		text := prompt.Render(resolved.Version.Prompt, description,
			prompt.Snippet(page.Title, page.URL, page.Content, input.SnippetChars))
		g.Go(func() error {
			reply, err := gen.Generate(gctx, text)
			if err != nil {
				return err
			}
			id, err := generateULID()
			if err != nil {
				return errors.NewInternal(err)
			}
			ideas[i] = prompt.ParseResponse(reply, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Int("pages", len(pages)).Msg("Idea generation failed")
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("generate")
		}
		return nil, errors.NewAssistantFailed("error", err.Error())
	}

	if err := prependIdeas(ctx, database, ideas); err != nil {
		return nil, err
	}

	log.Info().Int("ideas", len(ideas)).Str("prompt_version", resolved.Version.ID).Msg("Generated tweet ideas")

	return &GenerateOutput{
		Ideas:         ideas,
		Pages:         len(pages),
		PromptVersion: resolved.Version.ID,
		Fallback:      resolved.Fallback,
	}, nil
}
