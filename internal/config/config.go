// Package config loads process configuration for the jarvis command.
//
// Values are layered, lowest precedence first: built-in defaults, an
// optional YAML file, a .env file, then environment variables. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultFile            = "jarvis.yaml"
	DefaultUserID          = "local"
	DefaultLanguage        = "en"
	DefaultHTTPAddr        = ":8080"
	DefaultStore           = "memory"
	DefaultAudioBackend    = "device"
	DefaultLogLevel        = "info"
	DefaultInsightInterval = 10 * time.Minute
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "firestore".
	Backend         string `yaml:"backend"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Config is the process configuration.
type Config struct {
	UserID   string `yaml:"user_id"`
	Language string `yaml:"language"`

	// APIKey is the single legacy key; APIKeys is the failover list.
	APIKey  string   `yaml:"api_key"`
	APIKeys []string `yaml:"api_keys"`

	HTTPAddr  string `yaml:"http_addr"`
	StaticDir string `yaml:"static_dir"`
	LogLevel  string `yaml:"log_level"`

	// AudioBackend is "device" or "mock".
	AudioBackend string `yaml:"audio_backend"`

	InsightInterval time.Duration `yaml:"insight_interval"`

	Store StoreConfig `yaml:"store"`
}

// Error is a configuration validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		UserID:          DefaultUserID,
		Language:        DefaultLanguage,
		HTTPAddr:        DefaultHTTPAddr,
		LogLevel:        DefaultLogLevel,
		AudioBackend:    DefaultAudioBackend,
		InsightInterval: DefaultInsightInterval,
		Store:           StoreConfig{Backend: DefaultStore},
	}
}

// Load builds the configuration. An empty path reads JARVIS_CONFIG, then
// DefaultFile, and tolerates the file being absent; an explicit path must
// exist. The result is not validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = envOr("JARVIS_CONFIG", DefaultFile)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.APIKey, "GEMINI_API_KEY")
	setString(&c.UserID, "JARVIS_USER_ID")
	setString(&c.Language, "JARVIS_LANGUAGE")
	setString(&c.Store.Backend, "JARVIS_STORE")
	setString(&c.Store.ProjectID, "FIRESTORE_PROJECT_ID")
	setString(&c.Store.CredentialsFile, "FIRESTORE_CREDENTIALS_FILE")
	setString(&c.HTTPAddr, "JARVIS_HTTP_ADDR")
	setString(&c.AudioBackend, "JARVIS_AUDIO_BACKEND")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("JARVIS_API_KEYS"); v != "" {
		c.APIKeys = splitList(v)
	}
	if v := os.Getenv("JARVIS_INSIGHT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &Error{Field: "insight_interval", Message: err.Error()}
		}
		c.InsightInterval = d
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.UserID) == "":
		return &Error{Field: "user_id", Message: "is required"}
	case c.Language != "en" && c.Language != "id":
		return &Error{Field: "language", Message: fmt.Sprintf("unsupported language %q", c.Language)}
	case c.HTTPAddr == "":
		return &Error{Field: "http_addr", Message: "is required"}
	case c.InsightInterval < 0:
		return &Error{Field: "insight_interval", Message: "must not be negative"}
	}

	switch c.Store.Backend {
	case "memory":
	case "firestore":
		if c.Store.ProjectID == "" {
			return &Error{Field: "store.project_id", Message: "is required for the firestore backend"}
		}
	default:
		return &Error{Field: "store.backend", Message: fmt.Sprintf("unknown backend %q", c.Store.Backend)}
	}

	switch c.AudioBackend {
	case "device", "mock":
	default:
		return &Error{Field: "audio_backend", Message: fmt.Sprintf("unknown backend %q", c.AudioBackend)}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return &Error{Field: "log_level", Message: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	return nil
}

// Keys returns the configured API keys, the list taking precedence over
// the single key.
func (c *Config) Keys() []string {
	if len(c.APIKeys) > 0 {
		return c.APIKeys
	}
	if c.APIKey != "" {
		return []string{c.APIKey}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
