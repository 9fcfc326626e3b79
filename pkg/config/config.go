// Package config loads and validates the service configuration: engine
// defaults, per-call timeouts, LLM provider definitions, the bot-session
// collaborator endpoint, external agent endpoints, and expert presets.
//
// Configuration comes from two YAML files in a config directory
// (oasis.yaml and llm-providers.yaml), with {{.VAR}} environment expansion
// and user values overlaid on built-in defaults.
package config

import "time"

// Config is the fully resolved service configuration.
type Config struct {
	configDir string

	// DataDir is the root for topic snapshots, user presets, saved workflow
	// YAML files, and prompt templates.
	DataDir string

	Defaults *Defaults
	Timeouts *Timeouts
	Bot      *BotConfig

	// LLMProvider is the provider used for direct experts and summarization.
	LLMProvider *LLMProviderConfig

	// LLMProviders holds every configured provider keyed by name.
	LLMProviders map[string]*LLMProviderConfig

	// ExternalAgents maps external ids ("tag#ext#<id>") to endpoint defaults
	// used when a schedule step carries no inline endpoint config.
	ExternalAgents map[string]ExternalAgentConfig

	// Presets is the expert preset store (public YAML presets merged with
	// per-user presets persisted under DataDir).
	Presets *PresetStore

	// SummaryTemplate is the text of <DataDir>/prompts/oasis_summary.txt,
	// empty when the file is absent (engine falls back to its built-in).
	SummaryTemplate string
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// Defaults are engine-level defaults applied when a create-topic request or
// schedule leaves a value unset.
type Defaults struct {
	MaxRounds  int  `yaml:"max_rounds"`
	EarlyStop  bool `yaml:"early_stop"`
	Discussion bool `yaml:"discussion"`
	// TopPostWindow is how many recent posts agents see in their prompt.
	TopPostWindow int `yaml:"top_post_window"`
}

// Timeouts bound each collaborator call. An elapsed timeout is a per-agent
// error, never a topic failure.
type Timeouts struct {
	Agent    time.Duration
	Session  time.Duration
	Summary  time.Duration
	Callback time.Duration
}

// timeoutsYAML is the string-duration form parsed from YAML.
type timeoutsYAML struct {
	Agent    string `yaml:"agent"`
	Session  string `yaml:"session"`
	Summary  string `yaml:"summary"`
	Callback string `yaml:"callback"`
}

// BotConfig addresses the sibling bot-session runtime used by session agents.
type BotConfig struct {
	BaseURL  string `yaml:"base_url"`
	TokenEnv string `yaml:"token_env"`
	Timeout  string `yaml:"timeout"`
}

// LLMProviderConfig describes one OpenAI-compatible chat endpoint.
type LLMProviderConfig struct {
	BaseURL     string            `yaml:"base_url"`
	APIKey      string            `yaml:"api_key"`
	Model       string            `yaml:"model"`
	Temperature float64           `yaml:"temperature"`
	MaxTokens   int               `yaml:"max_tokens"`
	Headers     map[string]string `yaml:"headers"`
}

// ExternalAgentConfig is the directory default for one external agent id.
type ExternalAgentConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Model    string            `yaml:"model"`
	Headers  map[string]string `yaml:"headers"`
}

// Stats summarizes loaded configuration for startup logging.
type Stats struct {
	LLMProviders   int
	PublicPresets  int
	ExternalAgents int
}

// Stats returns counts for startup logging.
func (c *Config) Stats() Stats {
	return Stats{
		LLMProviders:   len(c.LLMProviders),
		PublicPresets:  c.Presets.PublicCount(),
		ExternalAgents: len(c.ExternalAgents),
	}
}
