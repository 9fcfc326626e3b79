package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// oasisYAML mirrors the oasis.yaml file structure.
type oasisYAML struct {
	System         *systemYAML                    `yaml:"system"`
	Defaults       *Defaults                      `yaml:"defaults"`
	Timeouts       *timeoutsYAML                  `yaml:"timeouts"`
	Bot            *BotConfig                     `yaml:"bot"`
	Experts        map[string]Preset              `yaml:"experts"`
	ExternalAgents map[string]ExternalAgentConfig `yaml:"external_agents"`
	LLM            string                         `yaml:"llm"`
}

type systemYAML struct {
	DataDir string `yaml:"data_dir"`
}

// llmProvidersYAML mirrors the llm-providers.yaml file structure.
type llmProvidersYAML struct {
	LLMProviders map[string]*LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, merges, and validates configuration from configDir.
// This is the primary entry point for configuration loading.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"llm_providers", stats.LLMProviders,
		"public_presets", stats.PublicPresets,
		"external_agents", stats.ExternalAgents)
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	// 1. oasis.yaml (defaults, timeouts, bot, presets, external agents)
	raw, err := loader.loadOasisYAML()
	if err != nil {
		return nil, NewLoadError("oasis.yaml", err)
	}

	// 2. llm-providers.yaml
	providers, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// 3. Overlay user defaults on built-ins (non-zero values override)
	defaults := defaultDefaults()
	if raw.Defaults != nil {
		if err := mergo.Merge(defaults, raw.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
		// mergo treats false as a zero value; bools are taken verbatim.
		defaults.EarlyStop = raw.Defaults.EarlyStop
		defaults.Discussion = raw.Defaults.Discussion
	}

	// 4. Resolve timeouts from duration strings
	timeouts := resolveTimeouts(raw.Timeouts)

	// 5. Resolve bot collaborator config
	bot := &BotConfig{TokenEnv: "INTERNAL_TOKEN"}
	if raw.Bot != nil {
		if err := mergo.Merge(bot, raw.Bot, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge bot config: %w", err)
		}
	}

	// 6. Data dir
	dataDir := "./data"
	if raw.System != nil && raw.System.DataDir != "" {
		dataDir = raw.System.DataDir
	}

	// 7. Merge built-in + YAML presets (YAML overrides built-in per tag)
	presetList := builtinPresets()
	byTag := make(map[string]int, len(presetList))
	for i, p := range presetList {
		byTag[p.Tag] = i
	}
	for tag, p := range raw.Experts {
		p.Tag = tag
		if i, ok := byTag[tag]; ok {
			presetList[i] = p
		} else {
			presetList = append(presetList, p)
		}
	}
	presets, err := NewPresetStore(presetList, filepath.Join(dataDir, "user_experts.json"))
	if err != nil {
		return nil, err
	}

	// 8. Select the active LLM provider
	providerName := raw.LLM
	if providerName == "" {
		providerName = "default"
	}
	active := providers[providerName]

	// 9. Optional summary prompt template
	summaryTpl := loadSummaryTemplate(dataDir)

	return &Config{
		configDir:       configDir,
		DataDir:         dataDir,
		Defaults:        defaults,
		Timeouts:        timeouts,
		Bot:             bot,
		LLMProvider:     active,
		LLMProviders:    providers,
		ExternalAgents:  raw.ExternalAgents,
		Presets:         presets,
		SummaryTemplate: summaryTpl,
	}, nil
}

func validate(cfg *Config) error {
	if cfg.Defaults.MaxRounds < 1 {
		return &ValidationError{Field: "defaults.max_rounds", Message: "must be at least 1"}
	}
	if cfg.Defaults.TopPostWindow < 1 {
		return &ValidationError{Field: "defaults.top_post_window", Message: "must be at least 1"}
	}
	if cfg.LLMProvider == nil {
		return &ValidationError{Field: "llm", Message: "selected provider is not defined in llm-providers.yaml"}
	}
	if cfg.LLMProvider.BaseURL == "" {
		return &ValidationError{Field: "llm_providers", Message: "active provider requires base_url"}
	}
	if cfg.LLMProvider.Model == "" {
		return &ValidationError{Field: "llm_providers", Message: "active provider requires model"}
	}
	for id, ext := range cfg.ExternalAgents {
		if ext.Endpoint == "" {
			return &ValidationError{Field: "external_agents." + id, Message: "requires endpoint"}
		}
	}
	return nil
}

func resolveTimeouts(raw *timeoutsYAML) *Timeouts {
	cfg := defaultTimeouts()
	if raw == nil {
		return cfg
	}
	parse := func(field, value string, into *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			slog.Warn("Invalid timeout in config, using default",
				"field", field, "value", value, "default", *into, "error", err)
			return
		}
		*into = d
	}
	parse("timeouts.agent", raw.Agent, &cfg.Agent)
	parse("timeouts.session", raw.Session, &cfg.Session)
	parse("timeouts.summary", raw.Summary, &cfg.Summary)
	parse("timeouts.callback", raw.Callback, &cfg.Callback)
	return cfg
}

// loadSummaryTemplate reads the optional summary prompt template. Absence is
// normal; the engine carries a built-in fallback.
func loadSummaryTemplate(dataDir string) string {
	path := filepath.Join(dataDir, "prompts", "oasis_summary.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read summary template, using built-in",
				"path", path, "error", err)
		}
		return ""
	}
	slog.Info("Loaded summary prompt template", "path", path)
	return string(data)
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadOasisYAML() (*oasisYAML, error) {
	var cfg oasisYAML
	cfg.Experts = make(map[string]Preset)
	cfg.ExternalAgents = make(map[string]ExternalAgentConfig)
	if err := l.loadYAML("oasis.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]*LLMProviderConfig, error) {
	var cfg llmProvidersYAML
	cfg.LLMProviders = make(map[string]*LLMProviderConfig)
	if err := l.loadYAML("llm-providers.yaml", &cfg); err != nil {
		return nil, err
	}
	return cfg.LLMProviders, nil
}
