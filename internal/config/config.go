// Package config loads the CLI configuration.
//
// Sources, highest priority first:
//  1. command line flags (applied by the caller through Overrides);
//  2. environment variables, including a .env file in the working directory;
//  3. a YAML file: the explicit path, else CONFIG_PATH, else ./committee.yaml;
//  4. defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// LocalFile is read when neither an explicit path nor CONFIG_PATH is given.
const LocalFile = "committee.yaml"

// Config is the root configuration.
type Config struct {
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	// ServerURL is the API base, e.g. https://committee.example.com/api/.
	ServerURL      string        `yaml:"server_url"      env:"SERVER_URL"      env-default:"http://localhost:8000/api/"`
	TokenFile      string        `yaml:"token_file"      env:"TOKEN_FILE"      env-default:".committee-tokens.json"`
	Email          string        `yaml:"email"           env:"EMAIL"`
	PageSize       int           `yaml:"page_size"       env:"PAGE_SIZE"       env-default:"50"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"15s"`
	CacheTTL       time.Duration `yaml:"cache_ttl"       env:"CACHE_TTL"       env-default:"5m"`
	Log            LogConfig     `yaml:"log"`
}

// LogConfig selects log verbosity and destination.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	// File receives the log; empty discards it while the terminal UI runs.
	File string `yaml:"file" env:"LOG_FILE"`
}

// Overrides carries flag values; empty fields leave the loaded value alone.
type Overrides struct {
	ServerURL string
	TokenFile string
	Email     string
	PageSize  int
	LogLevel  string
	LogFile   string
}

// Load reads .env, then the YAML file chosen by priority, then overlays the
// environment. It does not validate; call Validate after applying flags.
func Load(path string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	var cfg Config

	readFile := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
		return &cfg, nil
	}

	if path != "" {
		return readFile(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return readFile(envPath)
	}
	if _, err := os.Stat(LocalFile); err == nil {
		return readFile(LocalFile)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	return &cfg, nil
}

// Apply lets flags win over file and environment values.
func (c *Config) Apply(o Overrides) {
	if o.ServerURL != "" {
		c.ServerURL = o.ServerURL
	}
	if o.TokenFile != "" {
		c.TokenFile = o.TokenFile
	}
	if o.Email != "" {
		c.Email = o.Email
	}
	if o.PageSize != 0 {
		c.PageSize = o.PageSize
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		c.Log.File = o.LogFile
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if err := ValidateServerURL(c.ServerURL); err != nil {
		return fmt.Errorf("invalid SERVER_URL: %w", err)
	}
	if c.TokenFile == "" {
		return errors.New("token file path cannot be empty")
	}
	if c.PageSize < 0 {
		return fmt.Errorf("page size must be >= 0, got %d", c.PageSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must be >= 0, got %s", c.CacheTTL)
	}
	return nil
}

// Production reports whether logs should be JSON.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// PlaintextHTTP reports whether tokens would travel unencrypted.
func (c *Config) PlaintextHTTP() bool {
	return strings.HasPrefix(strings.ToLower(c.ServerURL), "http://")
}

// ValidateServerURL validates that the server URL is properly formatted
func ValidateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}
