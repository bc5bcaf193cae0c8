package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/glean/internal/assistant"
	"github.com/hpungsan/glean/internal/config"
	"github.com/hpungsan/glean/internal/errors"
	"github.com/hpungsan/glean/internal/models"
	"github.com/hpungsan/glean/internal/ops"
	"github.com/hpungsan/glean/internal/retention"
	"github.com/hpungsan/glean/internal/server"
	"github.com/hpungsan/glean/internal/settings"
)

// maxStdinBytes caps piped input for capture, notes and prompts.
const maxStdinBytes = 8 << 20

// newCLIApp creates the CLI application with all commands.
// gen may be nil when no assistant is configured.
func newCLIApp(db *sql.DB, cfg *config.Config, gen assistant.Generator) *cli.App {
	app := &cli.App{
		Name:    "glean",
		Usage:   "Capture browsing, keep a knowledge base, draft tweets",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(db, cfg, gen),
			captureCmd(db),
			pagesCmd(db),
			sweepCmd(db),
			kbCmd(db, cfg),
			ideasCmd(db, cfg, gen),
			settingsCmd(db),
			exportCmd(db, cfg),
			importCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config, gen assistant.Generator) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local HTTP API for the browser extension and the retention sweeper",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (default from config)"},
		},
		Action: func(c *cli.Context) error {
			if bind := c.String("bind"); bind != "" {
				cfg.HTTPBind = bind
			}
			if port := c.Int("port"); port > 0 {
				cfg.HTTPPort = port
			}

			srv := server.NewServer(db, cfg, gen)
			sched := retention.New(db, cfg.SweepInterval())
			if err := server.Run(c.Context, srv, sched); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// captureCmd creates the capture command.
func captureCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Record a visited page (reads content from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Required: true, Usage: "Page URL"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Page title"},
			&cli.BoolFlag{Name: "html", Usage: "Treat stdin as raw HTML and extract visible text"},
			&cli.Int64Flag{Name: "timestamp", Usage: "Capture time in unix milliseconds (default: now)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.CaptureInput{
				URL:       c.String("url"),
				Title:     c.String("title"),
				Timestamp: c.Int64("timestamp"),
			}

			if stdinHasData() {
				text, err := readStdin(maxStdinBytes)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				if c.Bool("html") {
					input.HTML = text
				} else {
					input.Content = text
				}
			}

			st, err := settings.Load(c.Context, db)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Capture(c.Context, db, st, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// pagesCmd creates the pages command.
func pagesCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "pages",
		Usage: "List captured pages, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultPageLimit, Usage: "Max results"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListPages(c.Context, db, ops.ListPagesInput{Limit: c.Int("limit")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// sweepCmd creates the sweep command.
func sweepCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Remove captured pages older than the retention window",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "retention-days", Aliases: []string{"d"}, Usage: "Override the stored retention window"},
		},
		Action: func(c *cli.Context) error {
			days := c.Int("retention-days")
			if c.IsSet("retention-days") && days < 1 {
				return outputError(errors.NewInvalidRequest("retention-days must be a positive integer"))
			}
			if days == 0 {
				st, err := settings.Load(c.Context, db)
				if err != nil {
					return outputError(err)
				}
				days = st.RetentionDays
			}

			output, err := ops.Sweep(c.Context, db, ops.SweepInput{RetentionDays: days})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// kbCmd creates the kb command group.
func kbCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "kb",
		Usage: "Manage the knowledge base",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List entries, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Filter: all|website|file|note"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ListKnowledge(c.Context, db, ops.ListKnowledgeInput{Type: c.String("type")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "add",
				Usage: "Add a note (stdin) or a file (--file)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Entry type: file|note"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Entry title"},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read content from a .txt, .md or .html file"},
				},
				Action: func(c *cli.Context) error {
					input := ops.AddKnowledgeInput{
						Type:  c.String("type"),
						Title: c.String("title"),
						Path:  c.String("file"),
					}
					if input.Path == "" {
						if !stdinHasData() {
							return outputError(errors.NewInvalidRequest("note content must be piped via stdin, or use --file"))
						}
						text, err := readStdin(maxStdinBytes)
						if err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
						input.Content = text
					}

					output, err := ops.AddKnowledge(c.Context, db, cfg, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete an entry",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.DeleteKnowledge(c.Context, db, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// ideasCmd creates the ideas command group.
func ideasCmd(db *sql.DB, cfg *config.Config, gen assistant.Generator) *cli.Command {
	return &cli.Command{
		Name:  "ideas",
		Usage: "Manage tweet ideas",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List ideas, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "starred", Usage: "Only starred ideas"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ListIdeas(c.Context, db, ops.ListIdeasInput{StarredOnly: c.Bool("starred")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "add",
				Usage:     "Add an idea (text as argument or stdin)",
				ArgsUsage: "[text]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "thread", Usage: "Follow-up tweet (repeatable)"},
				},
				Action: func(c *cli.Context) error {
					content := strings.Join(c.Args().Slice(), " ")
					if content == "" && stdinHasData() {
						text, err := readStdin(maxStdinBytes)
						if err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
						content = text
					}

					output, err := ops.AddIdea(c.Context, db, ops.AddIdeaInput{
						Content: content,
						Thread:  c.StringSlice("thread"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "star",
				Usage:     "Toggle the starred flag",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.StarIdea(c.Context, db, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "edit",
				Usage:     "Replace the text of an idea",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "content", Aliases: []string{"c"}, Usage: "New main tweet text"},
					&cli.StringSliceFlag{Name: "thread", Usage: "Replace follow-up tweets (repeatable)"},
					&cli.BoolFlag{Name: "single", Usage: "Drop the thread and keep a single tweet"},
				},
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return outputError(err)
					}

					input := ops.EditIdeaInput{ID: id}
					if c.IsSet("content") {
						content := c.String("content")
						input.Content = &content
					}
					switch {
					case c.Bool("single"):
						thread := []string{}
						input.Thread = &thread
					case c.IsSet("thread"):
						thread := c.StringSlice("thread")
						input.Thread = &thread
					}

					output, err := ops.EditIdea(c.Context, db, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete an idea",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.DeleteIdea(c.Context, db, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "generate",
				Usage: "Generate one idea per recently captured page",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "Number of recent pages (default from config)"},
				},
				Action: func(c *cli.Context) error {
					st, err := settings.Load(c.Context, db)
					if err != nil {
						return outputError(err)
					}
					count := c.Int("count")
					if count <= 0 {
						count = cfg.RecentPages
					}

					output, err := ops.GenerateIdeas(c.Context, db, st, gen, ops.GenerateInput{
						Count:        count,
						SnippetChars: cfg.SnippetChars,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// settingsCmd creates the settings command group.
func settingsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show settings with defaults applied",
				Action: func(c *cli.Context) error {
					output, err := ops.GetSettings(c.Context, db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "set",
				Usage: "Change settings (prompt text for --add-version is read from stdin)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "monitoring", Usage: "Enable (--monitoring) or disable (--monitoring=false) capture"},
					&cli.IntFlag{Name: "retention-days", Usage: "Days to keep captured pages"},
					&cli.StringFlag{Name: "select", Usage: "Prompt version id to use"},
					&cli.StringFlag{Name: "add-version", Usage: "Prompt version id to add or replace"},
					&cli.StringFlag{Name: "version-name", Usage: "Display name for --add-version"},
					&cli.StringFlag{Name: "delete-version", Usage: "Prompt version id to remove"},
					&cli.StringFlag{Name: "snippet-type", Usage: "Snippet type to describe: website|file|note"},
					&cli.StringFlag{Name: "description", Usage: "Description for --snippet-type"},
				},
				Action: func(c *cli.Context) error {
					input, err := settingsInputFromFlags(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.UpdateSettings(c.Context, db, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "clear",
				Usage: "Reset every setting to its default",
				Action: func(c *cli.Context) error {
					return outputJSON(ops.ClearSettings(c.Context, db))
				},
			},
		},
	}
}

func settingsInputFromFlags(c *cli.Context) (ops.UpdateSettingsInput, error) {
	var input ops.UpdateSettingsInput

	if c.IsSet("monitoring") {
		on := c.Bool("monitoring")
		input.Monitoring = &on
	}
	if c.IsSet("retention-days") {
		days := c.Int("retention-days")
		input.RetentionDays = &days
	}
	if c.IsSet("select") {
		id := c.String("select")
		input.SelectedVersion = &id
	}
	if c.IsSet("delete-version") {
		id := c.String("delete-version")
		input.DeletePromptVersion = &id
	}
	if id := c.String("add-version"); id != "" {
		if !stdinHasData() {
			return input, errors.NewInvalidRequest("prompt text for --add-version must be piped via stdin")
		}
		text, err := readStdin(maxStdinBytes)
		if err != nil {
			return input, errors.NewInvalidRequest(err.Error())
		}
		input.PromptVersions = []models.PromptVersion{{ID: id, Name: c.String("version-name"), Prompt: text}}
	}
	if typ := c.String("snippet-type"); typ != "" {
		input.SnippetTypes = []models.SnippetTypeDescription{{
			Type:        models.SnippetType(typ),
			Description: c.String("description"),
		}}
	}

	return input, nil
}

// exportCmd creates the export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export knowledge base and ideas to JSONL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"o"}, Usage: "Output file (default: ~/.glean/exports/glean-<timestamp>.jsonl)"},
			&cli.BoolFlag{Name: "include-pages", Usage: "Also export captured pages"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, db, cfg, ops.ExportInput{
				Path:         c.String("path"),
				IncludePages: c.Bool("include-pages"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a JSONL export",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "skip", Usage: "Collision mode: skip|replace"},
		},
		Action: func(c *cli.Context) error {
			path, err := requireArg(c, "path")
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Import(c.Context, db, cfg, ops.ImportInput{
				Path: path,
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if gErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", gErr.Code, gErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func requireArg(c *cli.Context, name string) (string, error) {
	v := strings.TrimSpace(c.Args().First())
	if v == "" {
		return "", errors.NewInvalidRequest(name + " is required")
	}
	return v, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
