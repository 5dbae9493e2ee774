package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// APIConfig holds platform REST API settings.
type APIConfig struct {
	URL            string  `yaml:"url"`
	Token          string  `yaml:"token,omitempty"`
	PageSize       int     `yaml:"page_size"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimit      float64 `yaml:"rate_limit"`
}

// StorageConfig selects the filter persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
}

// WatchConfig holds live list settings.
type WatchConfig struct {
	PollSeconds int `yaml:"poll_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config holds orbctl configuration.
type Config struct {
	Version string        `yaml:"version"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Watch   WatchConfig   `yaml:"watch"`
	Log     LogConfig     `yaml:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		API: APIConfig{
			URL:            "http://localhost/api/v1",
			PageSize:       100,
			TimeoutSeconds: 30,
			RateLimit:      10,
		},
		Storage: StorageConfig{Backend: "file"},
		Watch:   WatchConfig{PollSeconds: 10},
		Log:     LogConfig{Level: "info"},
	}
}

// envOverrides is read from ORBCTL_* variables. Empty values leave the
// file config untouched.
type envOverrides struct {
	APIURL         string `envconfig:"API_URL"`
	APIToken       string `envconfig:"API_TOKEN"`
	StorageBackend string `envconfig:"STORAGE_BACKEND"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
}

// Store represents a loaded ORBCTL_HOME.
type Store struct {
	Home   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

var (
	validBackends  = []string{"memory", "file", "sqlite"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Home returns the ORBCTL_HOME path, respecting the ORBCTL_HOME env var.
func Home() string {
	if h := os.Getenv("ORBCTL_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".orbctl")
	}
	return filepath.Join(home, ".orbctl")
}

// Init creates the ORBCTL_HOME directory structure.
func Init(home string, force bool) error {
	if _, err := os.Stat(home); err == nil && !force {
		return fmt.Errorf("ORBCTL_HOME already exists at %s (use --force to reinitialize)", home)
	}

	for _, d := range []string{home, filepath.Join(home, "sessions")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Load reads an existing ORBCTL_HOME. Missing config fields are filled from
// defaults, then ORBCTL_* environment overrides are applied.
func Load(home string) (*Store, error) {
	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read ORBCTL_HOME config at %s: %w", cfgPath, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	fillNonPositive(&cfg)
	return &Store{Home: home, Config: cfg}, nil
}

// fillNonPositive restores defaults for numeric settings a hand-edited file
// left at zero or below.
func fillNonPositive(cfg *Config) {
	def := DefaultConfig()
	if cfg.API.PageSize <= 0 {
		cfg.API.PageSize = def.API.PageSize
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = def.API.TimeoutSeconds
	}
	if cfg.API.RateLimit < 0 {
		cfg.API.RateLimit = def.API.RateLimit
	}
	if cfg.Watch.PollSeconds <= 0 {
		cfg.Watch.PollSeconds = def.Watch.PollSeconds
	}
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("ORBCTL", &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	if env.APIURL != "" {
		cfg.API.URL = env.APIURL
	}
	if env.APIToken != "" {
		cfg.API.Token = env.APIToken
	}
	if env.StorageBackend != "" {
		if !contains(validBackends, env.StorageBackend) {
			return fmt.Errorf("ORBCTL_STORAGE_BACKEND must be one of %s", strings.Join(validBackends, ", "))
		}
		cfg.Storage.Backend = env.StorageBackend
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	return nil
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(s.Path("config.yaml"), data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ConfigKeys lists the dot-path keys accepted by SetConfigValue.
var ConfigKeys = []string{
	"api.url", "api.token", "api.page_size", "api.timeout_seconds", "api.rate_limit",
	"storage.backend", "watch.poll_seconds", "log.level",
}

// SetConfigValue sets a config value by dot-path key (e.g. "api.url").
func (s *Store) SetConfigValue(key, value string) error {
	switch key {
	case "api.url":
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("api.url must start with http:// or https://")
		}
		s.Config.API.URL = strings.TrimRight(value, "/")
	case "api.token":
		s.Config.API.Token = value
	case "api.page_size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 1000 {
			return fmt.Errorf("api.page_size must be an integer between 1 and 1000")
		}
		s.Config.API.PageSize = n
	case "api.timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("api.timeout_seconds must be a positive integer")
		}
		s.Config.API.TimeoutSeconds = n
	case "api.rate_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("api.rate_limit must be a non-negative number (0 disables limiting)")
		}
		s.Config.API.RateLimit = f
	case "storage.backend":
		if !contains(validBackends, value) {
			return fmt.Errorf("storage.backend must be one of %s", strings.Join(validBackends, ", "))
		}
		s.Config.Storage.Backend = value
	case "watch.poll_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("watch.poll_seconds must be a positive integer")
		}
		s.Config.Watch.PollSeconds = n
	case "log.level":
		if !contains(validLogLevels, value) {
			return fmt.Errorf("log.level must be one of %s", strings.Join(validLogLevels, ", "))
		}
		s.Config.Log.Level = value
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(ConfigKeys, ", "))
	}
	return s.SaveConfig()
}

// GetConfigValue reads a config value by dot-path key.
func (s *Store) GetConfigValue(key string) (string, error) {
	c := s.Config
	switch key {
	case "api.url":
		return c.API.URL, nil
	case "api.token":
		return c.API.Token, nil
	case "api.page_size":
		return strconv.Itoa(c.API.PageSize), nil
	case "api.timeout_seconds":
		return strconv.Itoa(c.API.TimeoutSeconds), nil
	case "api.rate_limit":
		return strconv.FormatFloat(c.API.RateLimit, 'f', -1, 64), nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "watch.poll_seconds":
		return strconv.Itoa(c.Watch.PollSeconds), nil
	case "log.level":
		return c.Log.Level, nil
	}
	return "", fmt.Errorf("unknown config key: %s\nValid keys: %s", key, strings.Join(ConfigKeys, ", "))
}

// Path resolves a path within ORBCTL_HOME.
func (s *Store) Path(parts ...string) string {
	all := append([]string{s.Home}, parts...)
	return filepath.Join(all...)
}

// CheckHealth verifies ORBCTL_HOME structure integrity.
func CheckHealth(home string) []Issue {
	var issues []Issue

	p := filepath.Join(home, "sessions")
	info, err := os.Stat(p)
	if err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("missing directory: %s", p)})
	} else if !info.IsDir() {
		issues = append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", p)})
	}

	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("cannot read config.yaml: %v", err)})
		return issues
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
		return issues
	}
	if !contains(validBackends, cfg.Storage.Backend) {
		issues = append(issues, Issue{"error", fmt.Sprintf("storage.backend %q is not one of %s", cfg.Storage.Backend, strings.Join(validBackends, ", "))})
	}
	if cfg.API.Token == "" && os.Getenv("ORBCTL_API_TOKEN") == "" {
		issues = append(issues, Issue{"warning", "api.token is not set; requests will be unauthenticated"})
	}
	return issues
}

// CheckSessionIntegrity validates all console sessions in ORBCTL_HOME.
func CheckSessionIntegrity(home string) []Issue {
	var issues []Issue
	sessionsDir := filepath.Join(home, "sessions")
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return issues
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sessionsDir, e.Name(), "session.yaml"))
		if err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("session %s: missing session.yaml", e.Name())})
			continue
		}

		var raw struct {
			Status  string `yaml:"status"`
			Storage string `yaml:"storage"`
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("session %s: invalid YAML: %v", e.Name(), err)})
			continue
		}
		if raw.Status == "ended" {
			for _, f := range []string{"filters.json", "filters.db"} {
				if _, err := os.Stat(filepath.Join(sessionsDir, e.Name(), f)); err == nil {
					issues = append(issues, Issue{"warning", fmt.Sprintf("session %s: ended but %s was not removed", e.Name(), f)})
				}
			}
		}
		if raw.Storage != "" && !contains(validBackends, raw.Storage) {
			issues = append(issues, Issue{"warning", fmt.Sprintf("session %s: unknown storage backend %q", e.Name(), raw.Storage)})
		}
	}

	return issues
}

// FixIssues attempts to repair simple issues in ORBCTL_HOME.
func FixIssues(home string) []string {
	var fixed []string

	p := filepath.Join(home, "sessions")
	if _, err := os.Stat(p); err != nil {
		if err := os.MkdirAll(p, 0755); err == nil {
			fixed = append(fixed, "recreated missing directory: sessions")
		}
	}

	cfgPath := filepath.Join(home, "config.yaml")
	if _, err := os.Stat(cfgPath); err != nil {
		data, _ := yaml.Marshal(DefaultConfig())
		if os.WriteFile(cfgPath, data, 0600) == nil {
			fixed = append(fixed, "recreated missing config.yaml with defaults")
		}
	}

	// Filter storage left behind by ended sessions.
	entries, _ := os.ReadDir(p)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p, e.Name(), "session.yaml"))
		if err != nil {
			continue
		}
		var raw struct {
			Status string `yaml:"status"`
		}
		if yaml.Unmarshal(data, &raw) != nil || raw.Status != "ended" {
			continue
		}
		for _, f := range []string{"filters.json", "filters.db"} {
			if os.Remove(filepath.Join(p, e.Name(), f)) == nil {
				fixed = append(fixed, fmt.Sprintf("session %s: removed stale %s", e.Name(), f))
			}
		}
	}

	return fixed
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
