package mcp

import "github.com/mark3labs/mcp-go/mcp"

var pageCaptureToolDef = mcp.NewTool("page_capture",
	mcp.WithDescription("Record a visited page. Ignored unless monitoring is enabled in settings. "+
		"Visible text is extracted from html when content is empty."),
	mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
	mcp.WithString("title", mcp.Description("Page title")),
	mcp.WithString("content", mcp.Description("Visible text of the page")),
	mcp.WithString("html", mcp.Description("Raw HTML, used when content is empty")),
	mcp.WithNumber("timestamp", mcp.Description("Capture time in unix milliseconds (default: now)")),
)

var pageListToolDef = mcp.NewTool("page_list",
	mcp.WithDescription("List captured pages, newest first."),
	mcp.WithNumber("limit", mcp.Description("Max pages to return (default 20, max 500)")),
)

var pageSweepToolDef = mcp.NewTool("page_sweep",
	mcp.WithDescription("Remove captured pages older than the retention window."),
	mcp.WithNumber("retention_days", mcp.Description("Override the stored retention window")),
)

var kbListToolDef = mcp.NewTool("kb_list",
	mcp.WithDescription("List knowledge-base entries, newest first."),
	mcp.WithString("type", mcp.Description("Filter by type"), mcp.Enum("all", "website", "file", "note")),
)

var kbAddToolDef = mcp.NewTool("kb_add",
	mcp.WithDescription("Add a note, or a text/markdown/html file, to the knowledge base."),
	mcp.WithString("type", mcp.Description("Entry type (default: file when path is set, else note)"), mcp.Enum("file", "note")),
	mcp.WithString("title", mcp.Description("Entry title (default: file name or first line)")),
	mcp.WithString("content", mcp.Description("Note text")),
	mcp.WithString("path", mcp.Description("File to read, under ~/.glean/sources or an allowed path")),
)

var kbDeleteToolDef = mcp.NewTool("kb_delete",
	mcp.WithDescription("Delete a knowledge-base entry by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
)

var ideaListToolDef = mcp.NewTool("idea_list",
	mcp.WithDescription("List tweet ideas, newest first."),
	mcp.WithBoolean("starred", mcp.Description("Only starred ideas")),
)

var ideaAddToolDef = mcp.NewTool("idea_add",
	mcp.WithDescription("Add a hand-written tweet idea."),
	mcp.WithString("content", mcp.Required(), mcp.Description("Main tweet text")),
	mcp.WithArray("thread", mcp.Description("Follow-up tweets"), mcp.Items(map[string]any{"type": "string"})),
)

var ideaStarToolDef = mcp.NewTool("idea_star",
	mcp.WithDescription("Toggle the starred flag of an idea."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Idea id")),
)

var ideaEditToolDef = mcp.NewTool("idea_edit",
	mcp.WithDescription("Replace the text of an idea. Omitted fields are kept."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Idea id")),
	mcp.WithString("content", mcp.Description("New main tweet text")),
	mcp.WithArray("thread", mcp.Description("New follow-up tweets; empty makes it a single tweet"), mcp.Items(map[string]any{"type": "string"})),
)

var ideaDeleteToolDef = mcp.NewTool("idea_delete",
	mcp.WithDescription("Delete an idea by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Idea id")),
)

var ideaGenerateToolDef = mcp.NewTool("idea_generate",
	mcp.WithDescription("Generate one tweet idea per recently captured page using the configured assistant."),
	mcp.WithNumber("count", mcp.Description("Number of recent pages to use (default from config)")),
)

var settingsGetToolDef = mcp.NewTool("settings_get",
	mcp.WithDescription("Show settings with defaults applied and the active prompt."),
)

var settingsUpdateToolDef = mcp.NewTool("settings_update",
	mcp.WithDescription("Change settings. Only supplied fields are written."),
	mcp.WithBoolean("monitoring", mcp.Description("Enable or disable page capture")),
	mcp.WithNumber("retention_days", mcp.Description("Days to keep captured pages (>= 1)")),
	mcp.WithString("selected_version", mcp.Description("Prompt version id to use")),
	mcp.WithArray("prompt_versions", mcp.Description("Prompt versions to add or replace, by id"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":     map[string]any{"type": "string"},
				"name":   map[string]any{"type": "string"},
				"prompt": map[string]any{"type": "string"},
			},
			"required": []string{"id", "prompt"},
		})),
	mcp.WithString("delete_prompt_version", mcp.Description("Prompt version id to remove")),
	mcp.WithArray("snippet_types", mcp.Description("Snippet type descriptions to replace, by type"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":        map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"type", "description"},
		})),
)

var settingsClearToolDef = mcp.NewTool("settings_clear",
	mcp.WithDescription("Reset every setting to its default."),
)

var dataExportToolDef = mcp.NewTool("data_export",
	mcp.WithDescription("Export knowledge base and ideas to a JSONL file."),
	mcp.WithString("path", mcp.Description("Output file (default: ~/.glean/exports/glean-<timestamp>.jsonl)")),
	mcp.WithBoolean("include_pages", mcp.Description("Also export captured pages")),
)

var dataImportToolDef = mcp.NewTool("data_import",
	mcp.WithDescription("Import a JSONL export."),
	mcp.WithString("path", mcp.Required(), mcp.Description("File to import")),
	mcp.WithString("mode", mcp.Description("skip keeps existing records, replace overwrites them"), mcp.Enum("skip", "replace")),
)
