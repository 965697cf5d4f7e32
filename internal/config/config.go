package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sellconfig/internal/pricing"
	"sellconfig/internal/workflow"
)

// FileName is the defaults file looked up in the workspace.
const FileName = "sellconfig.yml"

// Config models sellconfig.yml.
type Config struct {
	Defaults struct {
		Rules pricing.RuleSet `yaml:"rules"`
		Steps []workflow.Step `yaml:"steps"`
	} `yaml:"defaults"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sellctl defaults init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the defaults could be saved as a product config.
func (c *Config) Validate() error {
	if err := c.Defaults.Rules.Validate(); err != nil {
		return fmt.Errorf("defaults.rules: %w", err)
	}
	if len(c.Defaults.Steps) == 0 {
		return fmt.Errorf("defaults.steps is required")
	}
	if _, err := workflow.NewSequence(c.Defaults.Steps); err != nil {
		return fmt.Errorf("defaults.steps: %w", err)
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhooks[%d].url must be an absolute http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in defaults.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// DefaultRules returns an independent copy of the configured default rules.
func (c *Config) DefaultRules() pricing.RuleSet {
	return c.Defaults.Rules.Clone()
}

// DefaultSteps returns the configured default steps.
func (c *Config) DefaultSteps() []workflow.Step {
	return append([]workflow.Step(nil), c.Defaults.Steps...)
}

const defaultTemplate = `defaults:
  rules:
    roundToNearest: 10
    floorPrice: 0
    minPercent: -90
    maxPercent: 50
    # capPrice: 50000

  steps:
    - key: variant
      title: Select Variant
      order: 1
    - key: questions
      title: Answer Questions
      order: 2
    - key: defects
      title: Select Defects
      order: 3
    - key: accessories
      title: Select Accessories
      order: 4
    - key: summary
      title: Summary
      order: 5

# Audit events are posted to subscribers as they are written.
# webhooks:
#   - url: https://storefront.example.com/hooks/sell-config
#     events: [sellconfig.saved, sellconfig.reset, sellconfig.deleted]
#     secret: change-me
#     timeout_seconds: 5
webhooks: []
`
