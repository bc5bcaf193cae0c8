package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Environment variables consulted after the JSON files are merged.
const (
	EnvAPIKey      = "OPENAI_API_KEY"
	EnvAssistantID = "GLEAN_ASSISTANT_ID"
)

// Config holds process-level configuration.
// User-editable generation settings (monitoring, retention, prompts) live in the
// store instead; see the settings package.
type Config struct {
	// AssistantID is the hosted assistant that turns page snippets into tweets.
	AssistantID string `json:"assistant_id,omitempty"`

	// OpenAIBaseURL overrides the assistant API endpoint (e.g. a proxy).
	OpenAIBaseURL string `json:"openai_base_url,omitempty"`

	// OpenAIAPIKey is read from the environment (or ~/.glean/.env), never from JSON.
	OpenAIAPIKey string `json:"-"`

	// PollIntervalMS is the delay between assistant run status checks.
	PollIntervalMS int `json:"poll_interval_ms"`

	// RecentPages is how many captured pages feed one generation request.
	RecentPages int `json:"recent_pages"`

	// SnippetChars caps the page content included in each prompt.
	SnippetChars int `json:"snippet_chars"`

	// SweepIntervalMinutes is the period of the retention sweep.
	SweepIntervalMinutes int `json:"sweep_interval_minutes"`

	// HTTPBind and HTTPPort locate the extension-facing API.
	HTTPBind string `json:"http_bind,omitempty"`
	HTTPPort int    `json:"http_port,omitempty"`

	// ExtensionIDs pins the browser extension origins allowed to call the API.
	// Empty means any chrome-extension:// or moz-extension:// origin is accepted.
	ExtensionIDs []string `json:"extension_ids,omitempty"`

	// AllowedPaths is an allowlist of directories for export and file imports.
	// Paths outside ~/.glean/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export and file imports.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type ("page", "kb", "idea", "settings", "data").
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PollIntervalMS:       1000,
		RecentPages:          5,
		SnippetChars:         500,
		SweepIntervalMinutes: 1440,
		HTTPBind:             "127.0.0.1",
		HTTPPort:             7878,
	}
}

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// SweepInterval returns SweepIntervalMinutes as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// Load loads configuration from baseDir/config.json and the environment.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.glean.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, baseDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.glean) and repo (.glean) directories.
// Repo config is found by walking upward from startDir to find the nearest .glean/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := applyEnv(cfg, globalDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .glean/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".glean", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// applyEnv loads baseDir/.env (without overriding variables already set) and
// copies the API key and assistant override into cfg.
func applyEnv(cfg *Config, baseDir string) error {
	envPath := filepath.Join(baseDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("failed to load %s: %w", envPath, err)
		}
		log.Debug().Str("path", envPath).Msg("Loaded environment file")
	}

	cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	if id := strings.TrimSpace(os.Getenv(EnvAssistantID)); id != "" {
		cfg.AssistantID = id
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		AssistantID:          firstString(overlay.AssistantID, base.AssistantID),
		OpenAIBaseURL:        firstString(overlay.OpenAIBaseURL, base.OpenAIBaseURL),
		OpenAIAPIKey:         firstString(overlay.OpenAIAPIKey, base.OpenAIAPIKey),
		HTTPBind:             firstString(overlay.HTTPBind, base.HTTPBind),
		PollIntervalMS:       firstPositive(overlay.PollIntervalMS, base.PollIntervalMS),
		RecentPages:          firstPositive(overlay.RecentPages, base.RecentPages),
		SnippetChars:         firstPositive(overlay.SnippetChars, base.SnippetChars),
		SweepIntervalMinutes: firstPositive(overlay.SweepIntervalMinutes, base.SweepIntervalMinutes),
		HTTPPort:             firstPositive(overlay.HTTPPort, base.HTTPPort),
		DBMaxOpenConns:       firstPositive(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:       firstPositive(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.ExtensionIDs = mergeStringSlice(base.ExtensionIDs, overlay.ExtensionIDs)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func firstPositive(overlay, base int) int {
	if overlay > 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
