package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/errors"
)

// fakeAPI walks a run through a scripted list of statuses.
type fakeAPI struct {
	mu       sync.Mutex
	statuses []openai.RunStatus
	polls    int
	lastErr  *openai.RunLastError
	reply    *string
	prompts  []string
	runErr   error
}

func (f *fakeAPI) CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error) {
	return openai.Thread{ID: "thread_1"}, nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, request.Content)
	return openai.Message{ID: "msg_user"}, nil
}

func (f *fakeAPI) CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error) {
	if f.runErr != nil {
		return openai.Run{}, f.runErr
	}
	return openai.Run{ID: "run_1", Status: openai.RunStatusQueued}, nil
}

func (f *fakeAPI) RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.statuses[len(f.statuses)-1]
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	run := openai.Run{ID: runID, Status: status}
	if status != openai.RunStatusCompleted {
		run.LastError = f.lastErr
	}
	return run, nil
}

func (f *fakeAPI) ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error) {
	if f.reply == nil {
		return openai.MessagesList{}, nil
	}
	return openai.MessagesList{Messages: []openai.Message{{
		ID:   "msg_assistant",
		Role: "assistant",
		Content: []openai.MessageContent{
			{Type: "text", Text: &openai.MessageText{Value: *f.reply}},
		},
	}}}, nil
}

func strPtr(s string) *string { return &s }

func TestGenerate_PollsUntilCompleted(t *testing.T) {
	api := &fakeAPI{
		statuses: []openai.RunStatus{openai.RunStatusInProgress, openai.RunStatusInProgress, openai.RunStatusCompleted},
		reply:    strPtr("tweet: hello"),
	}
	a := New(api, "asst_1", time.Millisecond)

	reply, err := a.Generate(context.Background(), "write something")
	require.NoError(t, err)
	assert.Equal(t, "tweet: hello", reply)
	assert.Equal(t, 3, api.polls)
	assert.Equal(t, []string{"write something"}, api.prompts)
}

func TestGenerate_TerminalFailures(t *testing.T) {
	for _, status := range []openai.RunStatus{openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			api := &fakeAPI{
				statuses: []openai.RunStatus{status},
				lastErr:  &openai.RunLastError{Message: "rate limited"},
			}
			a := New(api, "asst_1", time.Millisecond)

			_, err := a.Generate(context.Background(), "p")
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrAssistantFailed))
			assert.Contains(t, err.Error(), string(status))
			assert.Contains(t, err.Error(), "rate limited")
		})
	}
}

func TestGenerate_NoTextReply(t *testing.T) {
	api := &fakeAPI{statuses: []openai.RunStatus{openai.RunStatusCompleted}}
	a := New(api, "asst_1", time.Millisecond)

	_, err := a.Generate(context.Background(), "p")
	assert.True(t, errors.Is(err, errors.ErrAssistantFailed))
}

func TestGenerate_CreateRunError(t *testing.T) {
	api := &fakeAPI{runErr: fmt.Errorf("boom")}
	a := New(api, "asst_1", time.Millisecond)

	_, err := a.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAssistantFailed))
	assert.Contains(t, err.Error(), "create run")
}

func TestGenerate_ContextCancelled(t *testing.T) {
	api := &fakeAPI{statuses: []openai.RunStatus{openai.RunStatusInProgress}}
	a := New(api, "asst_1", 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Generate(ctx, "p")
	assert.True(t, errors.Is(err, errors.ErrCancelled))
}

func TestNew_DefaultPollInterval(t *testing.T) {
	a := New(&fakeAPI{}, "asst_1", 0)
	assert.Equal(t, DefaultPollInterval, a.pollInterval)
}

func TestNewFromConfig_RequiresKeyAndAssistant(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AssistantID = "asst_1"
	_, err := NewFromConfig(cfg)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	cfg.OpenAIAPIKey = "sk-test"
	cfg.AssistantID = ""
	_, err = NewFromConfig(cfg)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestNewFromConfig_AgainstHTTPServer(t *testing.T) {
	var mu sync.Mutex
	polls := 0

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"id": "thread_9", "object": "thread"})
	})
	mux.HandleFunc("POST /v1/threads/thread_9/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body["role"])
		assert.Equal(t, "the prompt", body["content"])
		writeJSON(w, map[string]any{"id": "msg_1", "object": "thread.message", "thread_id": "thread_9", "role": "user"})
	})
	mux.HandleFunc("POST /v1/threads/thread_9/runs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst_42", body["assistant_id"])
		writeJSON(w, map[string]any{"id": "run_7", "object": "thread.run", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/thread_9/runs/run_7", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		status := "in_progress"
		if polls >= 2 {
			status = "completed"
		}
		mu.Unlock()
		writeJSON(w, map[string]any{"id": "run_7", "object": "thread.run", "status": status})
	})
	mux.HandleFunc("GET /v1/threads/thread_9/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		writeJSON(w, map[string]any{
			"object": "list",
			"data": []any{map[string]any{
				"id":        "msg_2",
				"object":    "thread.message",
				"thread_id": "thread_9",
				"role":      "assistant",
				"content": []any{map[string]any{
					"type": "text",
					"text": map[string]any{"value": "thread: a\nb", "annotations": []any{}},
				}},
			}},
			"has_more": false,
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.AssistantID = "asst_42"
	cfg.OpenAIBaseURL = srv.URL + "/v1/"
	cfg.PollIntervalMS = 1

	a, err := NewFromConfig(cfg)
	require.NoError(t, err)

	reply, err := a.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "thread: a\nb", reply)
	assert.Equal(t, 2, polls)
}
