package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models reviewdesk.yml.
type Config struct {
	Backend struct {
		BaseURL        string `yaml:"base_url"`
		Token          string `yaml:"token"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"backend"`
	Reviewer struct {
		ActorID string `yaml:"actor_id"`
	} `yaml:"reviewer"`
	Subjects []string `yaml:"subjects"`
	Messages struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"messages"`
	Server struct {
		Listen                 string `yaml:"listen"`
		BasePath               string `yaml:"base_path"`
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"server"`
}

// Load reads and validates config from a workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rvd config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("config.backend.base_url is required")
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("config.backend.timeout_seconds must not be negative")
	}
	if c.Messages.TTLSeconds < 0 {
		return fmt.Errorf("config.messages.ttl_seconds must not be negative")
	}
	for _, s := range c.Subjects {
		if s == "" {
			return fmt.Errorf("config.subjects contains an empty entry")
		}
	}
	return nil
}

// Default returns the default Config for a backend URL.
func Default(baseURL string) *Config {
	var cfg Config
	cfg.Backend.BaseURL = baseURL
	cfg.Backend.TimeoutSeconds = 10
	cfg.Reviewer.ActorID = "local-reviewer"
	cfg.Messages.TTLSeconds = 6
	cfg.Server.Listen = "127.0.0.1:8787"
	cfg.Server.BasePath = "/v0"
	cfg.Server.AllowLegacyActorHeader = true
	return &cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "reviewdesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(baseURL string) string {
	return fmt.Sprintf(defaultTemplate, baseURL)
}

// BackendTimeout returns the configured HTTP timeout.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// MessageTTL returns how long transient messages stay visible.
func (c *Config) MessageTTL() time.Duration {
	if c.Messages.TTLSeconds <= 0 {
		return 6 * time.Second
	}
	return time.Duration(c.Messages.TTLSeconds) * time.Second
}

const defaultTemplate = `backend:
  base_url: %s
  token: ""
  timeout_seconds: 10

reviewer:
  actor_id: local-reviewer

subjects: []

messages:
  ttl_seconds: 6

server:
  listen: 127.0.0.1:8787
  base_path: /v0
  jwt_secret: ""
  allow_legacy_actor_header: true
`
