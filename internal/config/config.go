package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir  = ".lechat"
	DefaultConfigFile = "config.yaml"
)

// Environment variables overriding the endpoint/credential values. The
// store pair is required; the completion endpoint has a usable default.
const (
	EnvStoreURL      = "SUPABASE_URL"
	EnvStoreKey      = "SUPABASE_ANON_KEY"
	EnvCompletionURL = "MISTRAL_API_URL"
	EnvCompletionKey = "MISTRAL_API_KEY"
)

// Config is the application configuration. Tunables live in the YAML file;
// endpoints and credentials come from the process environment on top.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Completion CompletionConfig `yaml:"completion"`
}

// StoreConfig points at the hosted conversation store.
type StoreConfig struct {
	URL            string `yaml:"url"`
	Key            string `yaml:"key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CompletionConfig points at the completion service and carries the request
// parameters sent with every call.
type CompletionConfig struct {
	Endpoint       string  `yaml:"endpoint"`
	Key            string  `yaml:"key"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			TimeoutSeconds: 30,
		},
		Completion: CompletionConfig{
			Endpoint:       "https://api.mistral.ai/v1/chat/completions",
			Model:          "mistral-tiny",
			MaxTokens:      1000,
			Temperature:    0.7,
			TimeoutSeconds: 120,
		},
	}
}

// AppDir returns the per-user application directory, creating it if needed.
// The config file, the local cache and the logs all live under it.
func AppDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}
	return dir, nil
}

// Load reads the config file (creating a default one on first run), applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	dir, err := AppDir()
	if err != nil {
		return nil, err
	}
	return loadFrom(filepath.Join(dir, DefaultConfigFile))
}

func loadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run: write the defaults so the user has a file to edit.
		// A write failure is not fatal, the defaults still apply.
		if data, err := yaml.Marshal(cfg); err == nil {
			os.WriteFile(path, data, 0644)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvStoreURL); v != "" {
		cfg.Store.URL = v
	}
	if v := os.Getenv(EnvStoreKey); v != "" {
		cfg.Store.Key = v
	}
	if v := os.Getenv(EnvCompletionURL); v != "" {
		cfg.Completion.Endpoint = v
	}
	if v := os.Getenv(EnvCompletionKey); v != "" {
		cfg.Completion.Key = v
	}
}

// Validate checks the configuration. Missing store credentials are a hard
// fault: without them there is no conversation history at all.
func (c *Config) Validate() error {
	if c.Store.URL == "" || c.Store.Key == "" {
		return fmt.Errorf("missing store configuration: set %s and %s", EnvStoreURL, EnvStoreKey)
	}
	if c.Completion.Endpoint == "" {
		return fmt.Errorf("completion endpoint must not be empty")
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("completion max_tokens must be positive, got %d", c.Completion.MaxTokens)
	}
	if c.Completion.Temperature < 0.0 || c.Completion.Temperature > 2.0 {
		return fmt.Errorf("completion temperature must be between 0.0 and 2.0, got %f", c.Completion.Temperature)
	}
	return nil
}
