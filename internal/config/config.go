// Package config provides configuration loading for voicewire commands.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voicewire/voicewire/pkg/agent"
)

// Defaults applied when a field is absent from the file and environment.
const (
	DefaultDashboardAddr = ":8080"
	DefaultLogLevel      = "info"
	DefaultBackend       = "portaudio"
)

// Config is the full command-line configuration.
type Config struct {
	// APIKey authenticates against the voice-agent service. The
	// DEEPGRAM_API_KEY environment variable overrides the file value.
	APIKey string `yaml:"api_key"`

	// ServerURL overrides the voice-agent endpoint. Empty means the
	// production endpoint.
	ServerURL string `yaml:"server_url"`

	// Backend selects the audio device backend: "portaudio" or "mock".
	Backend string `yaml:"backend"`

	// DashboardAddr is the listen address for the local dashboard.
	DashboardAddr string `yaml:"dashboard_addr"`

	LogLevel string `yaml:"log_level"`

	// Agent holds the session defaults (models and prompt guides).
	Agent agent.Config `yaml:"agent"`
}

// Load reads the configuration from the YAML file at path, then applies
// environment overrides and defaults. An empty path skips the file and
// uses environment and defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Backend:       DefaultBackend,
		DashboardAddr: DefaultDashboardAddr,
		LogLevel:      DefaultLogLevel,
		Agent:         agent.DefaultConfig(),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	// A partial agent block in the file must not zero out the other
	// model defaults.
	defaults := agent.DefaultConfig()
	if cfg.Agent.STTModel == "" {
		cfg.Agent.STTModel = defaults.STTModel
	}
	if cfg.Agent.LLMModel == "" {
		cfg.Agent.LLMModel = defaults.LLMModel
	}
	if cfg.Agent.TTSModel == "" {
		cfg.Agent.TTSModel = defaults.TTSModel
	}

	return cfg, nil
}

// Validate reports configuration errors that would prevent startup.
func (c *Config) Validate() error {
	if c.APIKey == "" && c.Backend != "mock" {
		return fmt.Errorf("config: api_key is required (set DEEPGRAM_API_KEY or api_key in the config file)")
	}
	switch c.Backend {
	case "portaudio", "mock":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	return nil
}
