package mcp

import (
	"context"
	"database/sql"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/glean/internal/assistant"
	"github.com/hpungsan/glean/internal/config"
)

// KnownTypes lists all valid type names. A tool's type is its name up to the first "_".
var KnownTypes = []string{"page", "kb", "idea", "settings", "data"}

// toolEntry pairs a tool definition with the Handlers method serving it.
type toolEntry struct {
	def    mcp.Tool
	handle func(*Handlers, context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

var tools = []toolEntry{
	{pageCaptureToolDef, (*Handlers).HandleCapture},
	{pageListToolDef, (*Handlers).HandleListPages},
	{pageSweepToolDef, (*Handlers).HandleSweep},
	{kbListToolDef, (*Handlers).HandleListKnowledge},
	{kbAddToolDef, (*Handlers).HandleAddKnowledge},
	{kbDeleteToolDef, (*Handlers).HandleDeleteKnowledge},
	{ideaListToolDef, (*Handlers).HandleListIdeas},
	{ideaAddToolDef, (*Handlers).HandleAddIdea},
	{ideaStarToolDef, (*Handlers).HandleStarIdea},
	{ideaEditToolDef, (*Handlers).HandleEditIdea},
	{ideaDeleteToolDef, (*Handlers).HandleDeleteIdea},
	{ideaGenerateToolDef, (*Handlers).HandleGenerate},
	{settingsGetToolDef, (*Handlers).HandleGetSettings},
	{settingsUpdateToolDef, (*Handlers).HandleUpdateSettings},
	{settingsClearToolDef, (*Handlers).HandleClearSettings},
	{dataExportToolDef, (*Handlers).HandleExport},
	{dataImportToolDef, (*Handlers).HandleImport},
}

// toolRegistry indexes tools by name.
var toolRegistry = func() map[string]toolEntry {
	m := make(map[string]toolEntry, len(tools))
	for _, t := range tools {
		m[t.def.Name] = t
	}
	return m
}()

// AllToolNames returns every tool name in registration order.
func AllToolNames() []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.def.Name
	}
	return names
}

// ValidateDisabledTools returns the names that match no tool.
func ValidateDisabledTools(names []string) []string {
	return unknownNames(names, func(name string) bool {
		_, ok := toolRegistry[name]
		return ok
	})
}

// ValidateDisabledTypes returns the names that match no tool type.
func ValidateDisabledTypes(names []string) []string {
	return unknownNames(names, func(name string) bool {
		return slices.Contains(KnownTypes, name)
	})
}

func unknownNames(names []string, known func(string) bool) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if !known(name) {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool returns the type prefix of a tool name ("idea_star" → "idea").
func GetTypeForTool(toolName string) string {
	typ, _, found := strings.Cut(toolName, "_")
	if !found || typ == "" {
		return ""
	}
	return typ
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, 0)
	for _, t := range tools {
		if slices.Contains(types, GetTypeForTool(t.def.Name)) {
			out = append(out, t.def.Name)
		}
	}
	return out
}

// NewServer creates an MCP server exposing the Glean tools, minus any named in
// cfg.DisabledTools or belonging to cfg.DisabledTypes. gen may be nil.
func NewServer(db *sql.DB, cfg *config.Config, gen assistant.Generator, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"glean",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, gen)

	disabled := make(map[string]bool)
	for _, name := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[name] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for _, t := range tools {
		if disabled[t.def.Name] {
			continue
		}
		handle := t.handle
		s.AddTool(t.def, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handle(h, ctx, req)
		})
	}

	return s
}

// Run serves the MCP tools over stdio until stdin closes.
func Run(db *sql.DB, cfg *config.Config, gen assistant.Generator, version string) error {
	return server.ServeStdio(NewServer(db, cfg, gen, version))
}
