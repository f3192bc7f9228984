package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	// EnvPrefix prefixes every environment override, e.g. CODEGRANT_NO_BROWSER.
	EnvPrefix = "CODEGRANT_"
)

type Config struct {
	Version         string   `yaml:"version"`
	CredentialsFile string   `yaml:"credentials-file,omitempty" env:"CREDENTIALS_FILE"`
	Settings        Settings `yaml:"settings,omitempty"`
}

type Settings struct {
	OutputFormat string `yaml:"output-format,omitempty" env:"OUTPUT"`
	// TokenSuccessStatus is the status the provider's token endpoint answers
	// a successful exchange with. The default provider documents 201.
	TokenSuccessStatus int           `yaml:"token-success-status,omitempty" env:"TOKEN_SUCCESS_STATUS"`
	CallbackTimeout    time.Duration `yaml:"callback-timeout,omitempty" env:"CALLBACK_TIMEOUT"`
	HTTPTimeout        time.Duration `yaml:"http-timeout,omitempty" env:"HTTP_TIMEOUT"`
	NoBrowser          bool          `yaml:"no-browser,omitempty" env:"NO_BROWSER"`
	ResolveAuthURL     bool          `yaml:"resolve-auth-url,omitempty" env:"RESOLVE_AUTH_URL"`
	UserAgent          string        `yaml:"user-agent,omitempty" env:"USER_AGENT"`
	Debug              bool          `yaml:"debug,omitempty" env:"DEBUG"`
}

func DefaultConfig() Config {
	return Config{
		Version:         VersionV1,
		CredentialsFile: DefaultCredentialsPath(),
		Settings: Settings{
			OutputFormat:       "table",
			TokenSuccessStatus: http.StatusCreated,
			CallbackTimeout:    5 * time.Minute,
			HTTPTimeout:        30 * time.Second,
		},
	}
}

// Load reads the YAML config at path on top of DefaultConfig.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

// LoadOrDefault behaves like Load but falls back to DefaultConfig when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		def := DefaultConfig()
		return &def, nil
	}
	return nil, err
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

// ApplyEnv overrides fields from CODEGRANT_* environment variables. Unset
// variables leave the field untouched.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	if c.Version != VersionV1 {
		return fmt.Errorf("unsupported config version: %s", c.Version)
	}
	s := c.Settings
	if s.TokenSuccessStatus < 100 || s.TokenSuccessStatus > 599 {
		return fmt.Errorf("token-success-status must be an HTTP status code, got %d", s.TokenSuccessStatus)
	}
	if s.CallbackTimeout < 0 {
		return errors.New("callback-timeout cannot be negative")
	}
	if s.HTTPTimeout < 0 {
		return errors.New("http-timeout cannot be negative")
	}
	return nil
}
