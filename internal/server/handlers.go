package server

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/glean/internal/assistant"
	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/ops"
	"github.com/hpungsan/glean/internal/settings"
)

// Handlers holds the dependencies shared by the API handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	gen assistant.Generator
}

type captureRequest struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	HTML      string `json:"html"`
	Timestamp int64  `json:"timestamp"`
}

// HandleCapture records a tab-load-complete event from the extension.
// Storage failures are logged and acknowledged with 202 so the extension never retries.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	st, err := settings.Load(r.Context(), h.db)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("Capture dropped: settings unavailable")
		writeJSON(w, http.StatusAccepted, ops.CaptureOutput{Captured: false, Reason: "storage unavailable"})
		return
	}

	out, err := ops.Capture(r.Context(), h.db, st, ops.CaptureInput{
		URL:       req.URL,
		Title:     req.Title,
		Content:   req.Content,
		HTML:      req.HTML,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			writeError(w, r, err)
			return
		}
		// Already logged by ops.Capture.
		writeJSON(w, http.StatusAccepted, ops.CaptureOutput{Captured: false, Reason: "storage failure"})
		return
	}

	status := http.StatusOK
	if out.Captured {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

// HandleListPages lists captured pages, newest first.
func (h *Handlers) HandleListPages(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := ops.ListPages(r.Context(), h.db, ops.ListPagesInput{Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type sweepRequest struct {
	RetentionDays int `json:"retentionDays"`
}

// HandleSweep runs a retention sweep now, using the stored window unless one is given.
func (h *Handlers) HandleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RetentionDays < 0 {
		writeError(w, r, errors.NewInvalidRequest("retentionDays must be a positive integer"))
		return
	}
	if req.RetentionDays == 0 {
		st, err := settings.Load(r.Context(), h.db)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.RetentionDays = st.RetentionDays
	}

	out, err := ops.Sweep(r.Context(), h.db, ops.SweepInput{RetentionDays: req.RetentionDays})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleListKnowledge lists knowledge-base entries, optionally filtered by ?type=.
func (h *Handlers) HandleListKnowledge(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListKnowledge(r.Context(), h.db, ops.ListKnowledgeInput{Type: r.URL.Query().Get("type")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type addKnowledgeRequest struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Path    string `json:"path"`
}

// HandleAddKnowledge adds a note or file entry.
func (h *Handlers) HandleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	var req addKnowledgeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := ops.AddKnowledge(r.Context(), h.db, h.cfg, ops.AddKnowledgeInput{
		Type:    req.Type,
		Title:   req.Title,
		Content: req.Content,
		Path:    req.Path,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleDeleteKnowledge removes one knowledge-base entry.
func (h *Handlers) HandleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteKnowledge(r.Context(), h.db, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleListIdeas lists tweet ideas; ?starred=true keeps starred ones only.
func (h *Handlers) HandleListIdeas(w http.ResponseWriter, r *http.Request) {
	starred, err := boolQuery(r, "starred")
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := ops.ListIdeas(r.Context(), h.db, ops.ListIdeasInput{StarredOnly: starred})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type addIdeaRequest struct {
	Content string   `json:"content"`
	Thread  []string `json:"thread"`
}

// HandleAddIdea stores a hand-written idea.
func (h *Handlers) HandleAddIdea(w http.ResponseWriter, r *http.Request) {
	var req addIdeaRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	idea, err := ops.AddIdea(r.Context(), h.db, ops.AddIdeaInput{Content: req.Content, Thread: req.Thread})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idea)
}

type generateRequest struct {
	Count int `json:"count"`
}

// HandleGenerate generates ideas from the most recent captured pages.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Count == 0 {
		req.Count = h.cfg.RecentPages
	}

	st, err := settings.Load(r.Context(), h.db)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := ops.GenerateIdeas(r.Context(), h.db, st, h.gen, ops.GenerateInput{
		Count:        req.Count,
		SnippetChars: h.cfg.SnippetChars,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleStarIdea toggles the starred flag.
func (h *Handlers) HandleStarIdea(w http.ResponseWriter, r *http.Request) {
	idea, err := ops.StarIdea(r.Context(), h.db, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

type editIdeaRequest struct {
	Content *string   `json:"content"`
	Thread  *[]string `json:"thread"`
}

// HandleEditIdea replaces an idea's content and/or thread.
func (h *Handlers) HandleEditIdea(w http.ResponseWriter, r *http.Request) {
	var req editIdeaRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	idea, err := ops.EditIdea(r.Context(), h.db, ops.EditIdeaInput{
		ID:      chi.URLParam(r, "id"),
		Content: req.Content,
		Thread:  req.Thread,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// HandleDeleteIdea removes one idea.
func (h *Handlers) HandleDeleteIdea(w http.ResponseWriter, r *http.Request) {
	out, err := ops.DeleteIdea(r.Context(), h.db, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetSettings returns the settings with defaults applied.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	out, err := ops.GetSettings(r.Context(), h.db)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUpdateSettings applies a partial settings update.
func (h *Handlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req ops.UpdateSettingsInput
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := ops.UpdateSettings(r.Context(), h.db, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleClearSettings resets every setting to its default.
func (h *Handlers) HandleClearSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ops.ClearSettings(r.Context(), h.db))
}

// HandleHealth reports liveness and database reachability.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func intQuery(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.NewInvalidRequest(name + " must be an integer")
	}
	return n, nil
}

func boolQuery(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.NewInvalidRequest(name + " must be true or false")
	}
	return b, nil
}
