// Package config loads and persists decoy's configuration from
// ~/.decoy/config.yaml, with environment-variable overrides for the
// settings that change between deployments.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StoreConfig selects and locates the row-grid backend.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "memory" (throwaway demo runs).
	Backend string `yaml:"backend"`
	// DBPath overrides the sqlite database location. Empty uses
	// <home>/decoy.db. Env override: DECOY_DB_PATH.
	DBPath string `yaml:"db_path"`
}

// FilterConfig tunes the visit classifier. The base rules (sentinel
// user-agent, missing browser context) are always on; the stricter
// heuristics are opt-out because they can misclassify unusual browsers.
type FilterConfig struct {
	// StrictAgent enables the denylist/length/simple-name heuristics.
	StrictAgent bool `yaml:"strict_agent"`
	// StrictFrequency rejects repeat classifications of the same session
	// inside MinDwellSeconds.
	StrictFrequency bool `yaml:"strict_frequency"`
	// Denylist is matched case-insensitively as substrings of the
	// user-agent. Empty uses the built-in list.
	Denylist []string `yaml:"denylist"`
	// MinAgentLength is the shortest plausible browser user-agent.
	// 0 uses the default (10).
	MinAgentLength int `yaml:"min_agent_length"`
	// MinDwellSeconds is the human page-dwell floor for the frequency
	// rule. 0 uses the default (120).
	MinDwellSeconds int `yaml:"min_dwell_seconds"`
}

// RateLimitConfig tunes the per-client token-bucket limiter on the form.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
}

// AdminConfig guards the destructive operator endpoints.
type AdminConfig struct {
	// Token is the bearer token for /admin routes. Empty disables them
	// entirely. Env override: DECOY_ADMIN_TOKEN.
	Token string `yaml:"token"`
}

// ReportConfig controls the batch analytics job.
type ReportConfig struct {
	// OutputDir receives the markdown report and CSV export.
	// Empty uses <home>/reports.
	OutputDir string `yaml:"output_dir"`
	// Schedule is a 5-field cron expression for in-process report
	// regeneration while serving. Empty disables the scheduler.
	Schedule string `yaml:"schedule"`
}

// OTelConfig configures tracing/metrics export.
type OTelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	// BindAddr is the listen address for the form server.
	// Env override: DECOY_BIND_ADDR.
	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	Store     StoreConfig     `yaml:"store"`
	Filter    FilterConfig    `yaml:"filter"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Admin     AdminConfig     `yaml:"admin"`
	Report    ReportConfig    `yaml:"report"`
	OTel      OTelConfig      `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		BindAddr: "127.0.0.1:8411",
		LogLevel: "info",
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Filter: FilterConfig{
			StrictAgent:     true,
			StrictFrequency: false,
			MinAgentLength:  10,
			MinDwellSeconds: 120,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			BurstSize:         20,
		},
	}
}

// HomeDir returns the decoy data directory: DECOY_HOME if set, else
// ~/.decoy.
func HomeDir() string {
	if v := strings.TrimSpace(os.Getenv("DECOY_HOME")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".decoy")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the home dir, applying defaults for missing
// fields and environment overrides on top. A missing file is not an error;
// defaults are returned.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom is Load with an explicit home directory, for tests.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	data, err := os.ReadFile(ConfigPath(homeDir))
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config.yaml: %w", err)
		}
	}
	cfg.HomeDir = homeDir
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DECOY_BIND_ADDR")); v != "" {
		cfg.BindAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("DECOY_ADMIN_TOKEN")); v != "" {
		cfg.Admin.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("DECOY_DB_PATH")); v != "" {
		cfg.Store.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("DECOY_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:8411"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(cfg.HomeDir, "decoy.db")
	}
	if cfg.Filter.MinAgentLength <= 0 {
		cfg.Filter.MinAgentLength = 10
	}
	if cfg.Filter.MinDwellSeconds <= 0 {
		cfg.Filter.MinDwellSeconds = 120
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.BurstSize <= 0 {
		cfg.RateLimit.BurstSize = 20
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = filepath.Join(cfg.HomeDir, "reports")
	}
}

// Save writes the config back to config.yaml, creating the home dir if
// needed.
func Save(cfg Config) error {
	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return fmt.Errorf("create home dir: %w", err)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	if err := os.WriteFile(ConfigPath(cfg.HomeDir), out, 0o644); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}
	return nil
}

// Fingerprint returns a stable hash of the settings that change runtime
// behavior, exposed on /healthz so operators can confirm which config a
// running server picked up.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|log=%s|backend=%s|strict=%v,%v|minlen=%d|dwell=%d|rl=%v",
		c.BindAddr, c.LogLevel, c.Store.Backend,
		c.Filter.StrictAgent, c.Filter.StrictFrequency,
		c.Filter.MinAgentLength, c.Filter.MinDwellSeconds,
		c.RateLimit.Enabled)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
