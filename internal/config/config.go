// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (PODSCOUT_* — runtime override)
//  2. Config file (~/.podscout/config.yaml)
//  3. Default values
//
// Categories:
//   - Generation: model name and fixed sampling parameters sent with
//     every request (see gemini package)
//   - Storage: PostgreSQL connection (see storage.go)
//   - Server: listen address, CORS, identity secret, rate limiting
//   - Local state: path of the durable key-value file
//
// Sensitive values (postgres password, HMAC secret) are masked in
// MarshalJSON so a dumped config never leaks them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
// Check with errors.Is(); wrapped values carry detail.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidTopP indicates the nucleus sampling bound is out of range.
	ErrInvalidTopP = errors.New("invalid top_p")

	// ErrInvalidTopK indicates the top-k sampling bound is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidMaxOutputTokens indicates the output length cap is out of range.
	ErrInvalidMaxOutputTokens = errors.New("invalid max output tokens")

	// ErrInvalidSafetyThreshold indicates an unknown content-safety threshold.
	ErrInvalidSafetyThreshold = errors.New("invalid safety threshold")

	// ErrInvalidHistoryWindow indicates the prompt history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingHMACSecret indicates the identity-signing secret is not set.
	ErrMissingHMACSecret = errors.New("missing HMAC secret")

	// ErrInvalidHMACSecret indicates the identity-signing secret is too short.
	ErrInvalidHMACSecret = errors.New("invalid HMAC secret")
)

// Defaults for the generation request. These are fixed per request — the
// server does not let individual chat turns override them.
const (
	DefaultModelName       = "gemini-1.5-flash"
	DefaultTemperature     = 0.7
	DefaultTopP            = 0.95
	DefaultTopK            = 40
	DefaultMaxOutputTokens = 1024
	DefaultSafetyThreshold = "BLOCK_MEDIUM_AND_ABOVE"

	// DefaultHistoryWindow is how many prior messages are serialized into
	// the generation context, newest last.
	DefaultHistoryWindow = 10

	// DefaultStreamTimeout bounds a single generation stream. The remote
	// endpoint gives no liveness guarantee, so an unbounded wait would
	// leave a turn stuck in the streaming state forever.
	DefaultStreamTimeout = 2 * time.Minute
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON.
type Config struct {
	// Generation configuration
	ModelName       string  `mapstructure:"model_name" json:"model_name"`
	Temperature     float64 `mapstructure:"temperature" json:"temperature"`
	TopP            float64 `mapstructure:"top_p" json:"top_p"`
	TopK            int     `mapstructure:"top_k" json:"top_k"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	SafetyThreshold string  `mapstructure:"safety_threshold" json:"safety_threshold"`
	HistoryWindow   int     `mapstructure:"history_window" json:"history_window"`

	// Endpoint overrides the generation API base URL. Empty uses the
	// public endpoint; tests point this at a local httptest server.
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`

	// StreamTimeoutSeconds bounds one generation stream (0 = default).
	StreamTimeoutSeconds int `mapstructure:"stream_timeout_seconds" json:"stream_timeout_seconds"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration (serve mode only)
	HMACSecret  string   `mapstructure:"hmac_secret" json:"hmac_secret"` // SENSITIVE: masked in MarshalJSON
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// StatePath is the local durable key-value file holding the API
	// credential and the history fallback copy. Empty uses
	// ~/.podscout/state.json.
	StatePath string `mapstructure:"state_path" json:"state_path"`
}

// StreamTimeout returns the effective generation stream timeout.
func (c *Config) StreamTimeout() time.Duration {
	if c.StreamTimeoutSeconds <= 0 {
		return DefaultStreamTimeout
	}
	return time.Duration(c.StreamTimeoutSeconds) * time.Second
}

// MarshalJSON masks sensitive fields so config dumps are safe to log.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	a := alias(c)
	if a.PostgresPassword != "" {
		a.PostgresPassword = "***"
	}
	if a.HMACSecret != "" {
		a.HMACSecret = "***"
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return b, nil
}

// Dir returns the podscout config directory, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".podscout")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Load reads configuration from defaults, the optional config file, and
// environment variables, in increasing priority.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PODSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVariables(v)

	if dir, err := Dir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			// No config file is fine — defaults plus env apply.
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL, when present, overrides the individual postgres_* keys.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("temperature", DefaultTemperature)
	v.SetDefault("top_p", DefaultTopP)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("max_output_tokens", DefaultMaxOutputTokens)
	v.SetDefault("safety_threshold", DefaultSafetyThreshold)
	v.SetDefault("history_window", DefaultHistoryWindow)
	v.SetDefault("stream_timeout_seconds", 0)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "podscout")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "podscout")
	v.SetDefault("postgres_ssl_mode", "prefer")

	v.SetDefault("cors_origins", []string{})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 0)
}

// bindEnvVariables binds keys without defaults explicitly; AutomaticEnv
// alone does not surface them through Unmarshal.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("hmac_secret", "PODSCOUT_HMAC_SECRET")
	mustBind("endpoint", "PODSCOUT_ENDPOINT")
	mustBind("state_path", "PODSCOUT_STATE_PATH")
}
