package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FunnelsYAMLConfig represents the complete funnels.yaml file structure.
type FunnelsYAMLConfig struct {
	Funnels   map[string]FunnelConfig `yaml:"funnels"`
	Detection *DetectionConfig        `yaml:"detection"`
	Scheduler *SchedulerConfig        `yaml:"scheduler"`
	Retention *RetentionConfig        `yaml:"retention"`
	LLM       *LLMConfig              `yaml:"llm"`
	Slack     *SlackYAMLConfig        `yaml:"slack"`
	Masking   *MaskingYAMLConfig      `yaml:"masking"`
}

// MaskingYAMLConfig lets an operator add masking patterns beyond the
// built-in phone/email set.
type MaskingYAMLConfig struct {
	Patterns map[string]MaskingPattern `yaml:"patterns,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load funnels.yaml from configDir
//  2. Expand environment variables
//  3. Merge built-in + user-defined funnels/detection/masking
//  4. Load app-level env configuration (PUBLIC_BASE_URL, etc.)
//  5. Validate everything (trigger overlap, asset references, reachability)
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string, assetIDs func(string) bool) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg, assetIDs); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"funnels", stats.Funnels,
		"triggers", stats.Triggers,
		"masking_patterns", stats.MaskingPatterns)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadFunnelsYAML()
	if err != nil {
		return nil, NewLoadError("funnels.yaml", err)
	}

	appCfg, err := LoadAppConfigFromEnv()
	if err != nil {
		return nil, NewLoadError("environment", err)
	}

	builtin := GetBuiltinConfig()

	funnels := mergeFunnels(builtin.Funnels, yamlCfg.Funnels)
	detection := mergeDetection(builtin.Detection, yamlCfg.Detection)

	var userPatterns map[string]MaskingPattern
	if yamlCfg.Masking != nil {
		userPatterns = yamlCfg.Masking.Patterns
	}
	maskingPatterns := mergeMaskingPatterns(builtin.MaskingPatterns, userPatterns)

	scheduler := DefaultSchedulerConfig()
	if yamlCfg.Scheduler != nil {
		if err := mergo.Merge(scheduler, yamlCfg.Scheduler, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging scheduler overrides: %w", err)
		}
	}

	retention := DefaultRetentionConfig()
	if yamlCfg.Retention != nil {
		if err := mergo.Merge(retention, yamlCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging retention overrides: %w", err)
		}
	}

	llm, err := resolveLLMConfig(yamlCfg.LLM)
	if err != nil {
		return nil, err
	}
	slack, err := resolveSlackConfig(yamlCfg.Slack)
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir:       configDir,
		Funnels:         funnels,
		Detection:       detection,
		App:             appCfg,
		Scheduler:       scheduler,
		Retention:       retention,
		LLM:             llm,
		Slack:           slack,
		MaskingPatterns: maskingPatterns,
		PatternGroups:   builtin.PatternGroups,
	}, nil
}

// resolveLLMConfig merges user-supplied LLM YAML onto the built-in
// defaults via mergo, the same "defaults struct + selective override"
// idiom used for scheduler/retention above.
func resolveLLMConfig(user *LLMConfig) (*LLMConfig, error) {
	cfg := &LLMConfig{
		Model:         "claude-3-5-sonnet-latest",
		APIKeyEnv:     "ANTHROPIC_API_KEY",
		HistoryWindow: 20,
		SystemPrompt:  "You are a helpful sales assistant for an ecommerce funnel.",
	}
	if user == nil {
		return cfg, nil
	}
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging llm overrides: %w", err)
	}
	return cfg, nil
}

func resolveSlackConfig(user *SlackYAMLConfig) (*SlackConfig, error) {
	cfg := &SlackConfig{TokenEnv: "SLACK_BOT_TOKEN"}
	if user == nil {
		return cfg, nil
	}
	if user.Enabled != nil {
		cfg.Enabled = *user.Enabled
	}
	if user.TokenEnv != "" {
		cfg.TokenEnv = user.TokenEnv
	}
	if user.Channel != "" {
		cfg.Channel = user.Channel
	}
	return cfg, nil
}

func validate(cfg *Config, assetIDs func(string) bool) error {
	validator := NewValidator(cfg, assetIDs)
	return validator.ValidateAll()
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

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadFunnelsYAML() (*FunnelsYAMLConfig, error) {
	var cfg FunnelsYAMLConfig
	cfg.Funnels = make(map[string]FunnelConfig)

	path := filepath.Join(l.configDir, "funnels.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// No user overrides: run on the built-in funnel set alone.
		return &cfg, nil
	}

	if err := l.loadYAML("funnels.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
