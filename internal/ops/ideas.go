package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/samber/lo"

	"github.com/hpungsan/glean/internal/db"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
)

// ListIdeasInput contains parameters for the ListIdeas operation.
type ListIdeasInput struct {
	StarredOnly bool
}

// ListIdeasOutput contains the result of the ListIdeas operation.
type ListIdeasOutput struct {
	Ideas []models.TweetIdea `json:"ideas"`
	Total int                `json:"total"`
}

// ListIdeas returns tweet ideas in stored order (newest first).
func ListIdeas(ctx context.Context, database *sql.DB, input ListIdeasInput) (*ListIdeasOutput, error) {
	var ideas []models.TweetIdea
	if _, err := db.Get(ctx, database, models.KeyTweetIdeas, &ideas); err != nil {
		return nil, err
	}

	out := lo.Filter(ideas, func(idea models.TweetIdea, _ int) bool {
		return !input.StarredOnly || idea.IsStarred
	})
	return &ListIdeasOutput{Ideas: out, Total: len(out)}, nil
}

// AddIdeaInput contains parameters for the AddIdea operation.
type AddIdeaInput struct {
	Content string   // required
	Thread  []string // follow-up tweets; non-empty makes the idea a thread
}

// AddIdea stores a hand-written idea at the front of the list.
func AddIdea(ctx context.Context, database *sql.DB, input AddIdeaInput) (*models.TweetIdea, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, errors.NewInvalidRequest("content is required")
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	idea := models.TweetIdea{ID: id, Content: content}
	setThread(&idea, input.Thread)

	if err := prependIdeas(ctx, database, []models.TweetIdea{idea}); err != nil {
		return nil, err
	}
	return &idea, nil
}

// StarIdea toggles the starred flag of the idea with id.
func StarIdea(ctx context.Context, database *sql.DB, id string) (*models.TweetIdea, error) {
	return mutateIdea(ctx, database, id, func(idea *models.TweetIdea) error {
		idea.IsStarred = !idea.IsStarred
		return nil
	})
}

// EditIdeaInput contains parameters for the EditIdea operation.
type EditIdeaInput struct {
	ID      string    // required
	Content *string   // new main tweet text
	Thread  *[]string // replaces the thread; an empty slice turns the idea into a single tweet
}

// EditIdea replaces the text of an idea. The starred flag is kept.
func EditIdea(ctx context.Context, database *sql.DB, input EditIdeaInput) (*models.TweetIdea, error) {
	content := cleanOptionalString(input.Content)
	if input.Content != nil && content == nil {
		return nil, errors.NewInvalidRequest("content must not be empty")
	}
	if content == nil && input.Thread == nil {
		return nil, errors.NewInvalidRequest("nothing to edit: provide content or thread")
	}

	return mutateIdea(ctx, database, input.ID, func(idea *models.TweetIdea) error {
		if content != nil {
			idea.Content = *content
		}
		if input.Thread != nil {
			setThread(idea, *input.Thread)
		}
		return nil
	})
}

// DeleteIdeaOutput contains the result of the DeleteIdea operation.
type DeleteIdeaOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// DeleteIdea removes the idea with id, keeping the order of the rest.
func DeleteIdea(ctx context.Context, database *sql.DB, id string) (*DeleteIdeaOutput, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	err := db.UpdateJSON(ctx, database, models.KeyTweetIdeas, func(ideas *[]models.TweetIdea) error {
		for i, idea := range *ideas {
			if idea.ID == id {
				*ideas = append((*ideas)[:i], (*ideas)[i+1:]...)
				return nil
			}
		}
		return errors.NewNotFound("idea", id)
	})
	if err != nil {
		return nil, err
	}
	return &DeleteIdeaOutput{ID: id, Deleted: true}, nil
}

// mutateIdea applies fn to the idea with id inside one atomic update.
func mutateIdea(ctx context.Context, database *sql.DB, id string, fn func(*models.TweetIdea) error) (*models.TweetIdea, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	var updated models.TweetIdea
	err := db.UpdateJSON(ctx, database, models.KeyTweetIdeas, func(ideas *[]models.TweetIdea) error {
		for i := range *ideas {
			if (*ideas)[i].ID != id {
				continue
			}
			if err := fn(&(*ideas)[i]); err != nil {
				return err
			}
			updated = (*ideas)[i]
			return nil
		}
		return errors.NewNotFound("idea", id)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// prependIdeas inserts ideas, in order, at the front of the list.
func prependIdeas(ctx context.Context, database *sql.DB, ideas []models.TweetIdea) error {
	return db.UpdateJSON(ctx, database, models.KeyTweetIdeas, func(stored *[]models.TweetIdea) error {
		merged := make([]models.TweetIdea, 0, len(ideas)+len(*stored))
		merged = append(merged, ideas...)
		*stored = append(merged, *stored...)
		return nil
	})
}

// setThread sets the thread of idea, dropping blank entries.
func setThread(idea *models.TweetIdea, thread []string) {
	var kept []string
	for _, t := range thread {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	idea.IsThread = len(kept) > 0
	idea.Thread = kept
}
