package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/glean/internal/assistant"
	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/ops"
	"github.com/hpungsan/glean/internal/settings"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	gen assistant.Generator
}

// NewHandlers creates a new Handlers instance. gen may be nil when no assistant is configured.
func NewHandlers(db *sql.DB, cfg *config.Config, gen assistant.Generator) *Handlers {
	return &Handlers{db: db, cfg: cfg, gen: gen}
}

// Request types for each tool

// CaptureRequest represents the arguments for page_capture.
type CaptureRequest struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content,omitempty"`
	HTML      string `json:"html,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ListPagesRequest represents the arguments for page_list.
type ListPagesRequest struct {
	Limit int `json:"limit,omitempty"`
}

// SweepRequest represents the arguments for page_sweep.
type SweepRequest struct {
	RetentionDays *int `json:"retention_days,omitempty"`
}

// ListKnowledgeRequest represents the arguments for kb_list.
type ListKnowledgeRequest struct {
	Type string `json:"type,omitempty"`
}

// AddKnowledgeRequest represents the arguments for kb_add.
type AddKnowledgeRequest struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Path    string `json:"path,omitempty"`
}

// IDRequest addresses a single knowledge entry or idea.
type IDRequest struct {
	ID string `json:"id"`
}

// ListIdeasRequest represents the arguments for idea_list.
type ListIdeasRequest struct {
	Starred bool `json:"starred,omitempty"`
}

// AddIdeaRequest represents the arguments for idea_add.
type AddIdeaRequest struct {
	Content string   `json:"content"`
	Thread  []string `json:"thread,omitempty"`
}

// EditIdeaRequest represents the arguments for idea_edit.
type EditIdeaRequest struct {
	ID      string    `json:"id"`
	Content *string   `json:"content,omitempty"`
	Thread  *[]string `json:"thread,omitempty"`
}

// GenerateRequest represents the arguments for idea_generate.
type GenerateRequest struct {
	Count int `json:"count,omitempty"`
}

// UpdateSettingsRequest represents the arguments for settings_update.
type UpdateSettingsRequest struct {
	Monitoring          *bool                           `json:"monitoring,omitempty"`
	RetentionDays       *int                            `json:"retention_days,omitempty"`
	SelectedVersion     *string                         `json:"selected_version,omitempty"`
	PromptVersions      []models.PromptVersion          `json:"prompt_versions,omitempty"`
	DeletePromptVersion *string                         `json:"delete_prompt_version,omitempty"`
	SnippetTypes        []models.SnippetTypeDescription `json:"snippet_types,omitempty"`
}

// ExportRequest represents the arguments for data_export.
type ExportRequest struct {
	Path         string `json:"path,omitempty"`
	IncludePages bool   `json:"include_pages,omitempty"`
}

// ImportRequest represents the arguments for data_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// Handler implementations

// HandleCapture handles the page_capture tool call.
func (h *Handlers) HandleCapture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	st, err := settings.Load(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Capture(ctx, h.db, st, ops.CaptureInput{
		URL:       input.URL,
		Title:     input.Title,
		Content:   input.Content,
		HTML:      input.HTML,
		Timestamp: input.Timestamp,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleListPages handles the page_list tool call.
func (h *Handlers) HandleListPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListPagesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListPages(ctx, h.db, ops.ListPagesInput{Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSweep handles the page_sweep tool call.
func (h *Handlers) HandleSweep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SweepRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var days int
	if input.RetentionDays != nil {
		if *input.RetentionDays < 1 {
			return errorResult(errors.NewInvalidRequest("retention_days must be a positive integer")), nil
		}
		days = *input.RetentionDays
	} else {
		st, err := settings.Load(ctx, h.db)
		if err != nil {
			return errorResult(err), nil
		}
		days = st.RetentionDays
	}

	result, err := ops.Sweep(ctx, h.db, ops.SweepInput{RetentionDays: days})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleListKnowledge handles the kb_list tool call.
func (h *Handlers) HandleListKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListKnowledgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListKnowledge(ctx, h.db, ops.ListKnowledgeInput{Type: input.Type})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAddKnowledge handles the kb_add tool call.
func (h *Handlers) HandleAddKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddKnowledgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AddKnowledge(ctx, h.db, h.cfg, ops.AddKnowledgeInput{
		Type:    input.Type,
		Title:   input.Title,
		Content: input.Content,
		Path:    input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDeleteKnowledge handles the kb_delete tool call.
func (h *Handlers) HandleDeleteKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteKnowledge(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleListIdeas handles the idea_list tool call.
func (h *Handlers) HandleListIdeas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListIdeasRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListIdeas(ctx, h.db, ops.ListIdeasInput{StarredOnly: input.Starred})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAddIdea handles the idea_add tool call.
func (h *Handlers) HandleAddIdea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddIdeaRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AddIdea(ctx, h.db, ops.AddIdeaInput{
		Content: input.Content,
		Thread:  input.Thread,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStarIdea handles the idea_star tool call.
func (h *Handlers) HandleStarIdea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.StarIdea(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEditIdea handles the idea_edit tool call.
func (h *Handlers) HandleEditIdea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EditIdeaRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.EditIdea(ctx, h.db, ops.EditIdeaInput{
		ID:      input.ID,
		Content: input.Content,
		Thread:  input.Thread,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDeleteIdea handles the idea_delete tool call.
func (h *Handlers) HandleDeleteIdea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteIdea(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGenerate handles the idea_generate tool call.
func (h *Handlers) HandleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	st, err := settings.Load(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	count := input.Count
	if count <= 0 {
		count = h.cfg.RecentPages
	}

	result, err := ops.GenerateIdeas(ctx, h.db, st, h.gen, ops.GenerateInput{
		Count:        count,
		SnippetChars: h.cfg.SnippetChars,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetSettings handles the settings_get tool call.
func (h *Handlers) HandleGetSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.GetSettings(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleUpdateSettings handles the settings_update tool call.
func (h *Handlers) HandleUpdateSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateSettingsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdateSettings(ctx, h.db, ops.UpdateSettingsInput{
		Monitoring:          input.Monitoring,
		RetentionDays:       input.RetentionDays,
		SelectedVersion:     input.SelectedVersion,
		PromptVersions:      input.PromptVersions,
		DeletePromptVersion: input.DeletePromptVersion,
		SnippetTypes:        input.SnippetTypes,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleClearSettings handles the settings_clear tool call.
func (h *Handlers) HandleClearSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(ops.ClearSettings(ctx, h.db))
}

// HandleExport handles the data_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Path:         input.Path,
		IncludePages: input.IncludePages,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the data_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if gErr, ok := errors.As(err); ok {
		msg := gErr.Message
		if gErr.Code == errors.ErrInternal {
			msg = "an internal error occurred"
		}
		errorObj := map[string]any{
			"code":    gErr.Code,
			"message": msg,
			"status":  gErr.Status,
		}
		if gErr.Code != errors.ErrInternal && gErr.Details != nil {
			errorObj["details"] = gErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
