// Package config loads revpanel settings from an optional YAML file with
// environment overrides. The result is a pure input to the orchestrator and
// analyzer construction; nothing mutates it afterward.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the service.
type Config struct {
	Provider string `yaml:"provider"` // openai | openrouter | ollama | anthropic | rules
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	MaxDiffChars        int     `yaml:"max_diff_chars"`
	AgentTimeoutSecs    int     `yaml:"agent_timeout_seconds"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	AgentsFile string `yaml:"agents_file"` // optional custom panel
	ListenAddr string `yaml:"listen_addr"`

	// Secrets come from the environment only, never from the file.
	GitHubToken string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:            "openai",
		Model:               "gpt-4o-mini",
		MaxDiffChars:        100_000,
		AgentTimeoutSecs:    90,
		SimilarityThreshold: 1.0,
		ListenAddr:          "127.0.0.1:8090",
	}
}

// AgentTimeout returns the per-agent deadline as a duration.
func (c Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSecs) * time.Second
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides. A missing explicit path is an error; an empty path
// just means "defaults plus environment".
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.MaxDiffChars <= 0 {
		cfg.MaxDiffChars = Default().MaxDiffChars
	}
	if cfg.AgentTimeoutSecs <= 0 {
		cfg.AgentTimeoutSecs = Default().AgentTimeoutSecs
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = 1.0
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REVPANEL_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("REVPANEL_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("REVPANEL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("MAX_DIFF_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDiffChars = n
		}
	}
	if v := os.Getenv("REVPANEL_AGENT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AgentTimeoutSecs = n
		}
	}
	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
}
