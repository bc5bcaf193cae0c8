// Package assistant talks to the hosted assistant that writes tweet drafts.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/errors"
)

// Generator turns a prompt into the assistant's text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// API is the subset of the OpenAI client used by Assistant.
type API interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

// DefaultPollInterval is the delay between run status checks.
const DefaultPollInterval = time.Second

// Assistant runs prompts against one hosted assistant: one thread per prompt,
// polling the run until it reaches a terminal status.
type Assistant struct {
	api          API
	assistantID  string
	pollInterval time.Duration
}

// New creates an Assistant over api.
func New(api API, assistantID string, pollInterval time.Duration) *Assistant {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Assistant{api: api, assistantID: assistantID, pollInterval: pollInterval}
}

// NewFromConfig builds an Assistant backed by the OpenAI API.
func NewFromConfig(cfg *config.Config) (*Assistant, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.NewInvalidRequest(config.EnvAPIKey + " is not set")
	}
	if cfg.AssistantID == "" {
		return nil, errors.NewInvalidRequest("assistant_id is not configured")
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	}
	return New(openai.NewClientWithConfig(clientCfg), cfg.AssistantID, cfg.PollInterval()), nil
}

// Generate posts prompt to a fresh thread, runs the assistant and returns the newest reply.
// Polling has no deadline of its own; it stops on a terminal run status or when ctx ends.
func (a *Assistant) Generate(ctx context.Context, prompt string) (string, error) {
	thread, err := a.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", wrapAPIError(ctx, "create thread", err)
	}

	if _, err := a.api.CreateMessage(ctx, thread.ID, openai.MessageRequest{
		Role:    "user",
		Content: prompt,
	}); err != nil {
		return "", wrapAPIError(ctx, "create message", err)
	}

	run, err := a.api.CreateRun(ctx, thread.ID, openai.RunRequest{AssistantID: a.assistantID})
	if err != nil {
		return "", wrapAPIError(ctx, "create run", err)
	}

	logger := log.With().Str("thread", thread.ID).Str("run", run.ID).Logger()
	logger.Debug().Msg("Assistant run started")

	run, err = a.wait(ctx, thread.ID, run)
	if err != nil {
		return "", err
	}

	order := "desc"
	limit := 1
	messages, err := a.api.ListMessage(ctx, thread.ID, &limit, &order, nil, nil, &run.ID)
	if err != nil {
		return "", wrapAPIError(ctx, "list messages", err)
	}

	reply, ok := firstText(messages)
	if !ok {
		return "", errors.NewAssistantFailed(string(run.Status), "run produced no text reply")
	}
	logger.Debug().Int("chars", len(reply)).Msg("Assistant run completed")
	return reply, nil
}

// wait polls the run until it completes or reaches another terminal status.
func (a *Assistant) wait(ctx context.Context, threadID string, run openai.Run) (openai.Run, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
			reason := ""
			if run.LastError != nil {
				reason = run.LastError.Message
			}
			return run, errors.NewAssistantFailed(string(run.Status), reason)
		}

		select {
		case <-ctx.Done():
			return run, errors.NewCancelled("assistant run")
		case <-ticker.C:
		}

		next, err := a.api.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return run, wrapAPIError(ctx, "retrieve run", err)
		}
		run = next
	}
}

// firstText returns the first text content of the first message in the list.
func firstText(list openai.MessagesList) (string, bool) {
	if len(list.Messages) == 0 {
		return "", false
	}
	for _, c := range list.Messages[0].Content {
		if c.Text != nil {
			return c.Text.Value, true
		}
	}
	return "", false
}

func wrapAPIError(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled("assistant run")
	}
	return errors.NewAssistantFailed("error", step+": "+err.Error())
}
