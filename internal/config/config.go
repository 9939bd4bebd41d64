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
)

// DefaultAPIURL is the backend used when neither config nor environment names one.
const DefaultAPIURL = "http://localhost:8000"

// Config holds application configuration.
type Config struct {
	// APIURL is the base URL of the DNAI backend (auth, food analysis, chat).
	APIURL string `json:"api_url,omitempty"`

	// DailyGoal is the calorie target used for progress and remaining.
	// 0 means use the default; negative values are rejected.
	DailyGoal int `json:"daily_goal,omitempty"`

	// BackendTimeoutSeconds bounds every backend request. 0 disables the timeout.
	BackendTimeoutSeconds int `json:"backend_timeout_seconds,omitempty"`

	// MaxImageBytes caps uploads to the food analyzer.
	MaxImageBytes int64 `json:"max_image_bytes,omitempty"`

	// WebBind and WebPort are the listen address for `dnai serve`.
	WebBind string `json:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.dnai/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "ledger", "food", "chat".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIURL:                DefaultAPIURL,
		DailyGoal:             2000,
		BackendTimeoutSeconds: 60,
		MaxImageBytes:         10 << 20,
		WebBind:               "127.0.0.1",
		WebPort:               3000,
	}
}

// BackendTimeout returns the configured request timeout (0 = none).
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.dnai.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overwritten. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides values from environment variables. DNAI_API_URL wins
// over the legacy REACT_APP_API_URL. lookup is os.LookupEnv outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	for _, key := range []string{"DNAI_API_URL", "REACT_APP_API_URL"} {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			cfg.APIURL = strings.TrimRight(strings.TrimSpace(v), "/")
			return
		}
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
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

func (c *Config) validate() error {
	if c.DailyGoal < 0 {
		return fmt.Errorf("daily_goal must be positive, got %d", c.DailyGoal)
	}
	if c.MaxImageBytes < 0 {
		return fmt.Errorf("max_image_bytes must be positive, got %d", c.MaxImageBytes)
	}
	if c.BackendTimeoutSeconds < 0 {
		return fmt.Errorf("backend_timeout_seconds must not be negative, got %d", c.BackendTimeoutSeconds)
	}
	if c.WebPort < 0 || c.WebPort > 65535 {
		return fmt.Errorf("web_port out of range: %d", c.WebPort)
	}
	return nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.APIURL = strings.TrimRight(firstNonEmpty(overlay.APIURL, base.APIURL), "/")
	result.WebBind = firstNonEmpty(overlay.WebBind, base.WebBind)

	result.DailyGoal = overlay.DailyGoal
	if result.DailyGoal == 0 {
		result.DailyGoal = base.DailyGoal
	}

	result.BackendTimeoutSeconds = overlay.BackendTimeoutSeconds
	if result.BackendTimeoutSeconds == 0 {
		result.BackendTimeoutSeconds = base.BackendTimeoutSeconds
	}

	result.MaxImageBytes = overlay.MaxImageBytes
	if result.MaxImageBytes == 0 {
		result.MaxImageBytes = base.MaxImageBytes
	}

	result.WebPort = overlay.WebPort
	if result.WebPort == 0 {
		result.WebPort = base.WebPort
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
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
