package config

// Config is the umbrella configuration object: the loaded, merged, and
// validated funnel definitions plus every ambient setting the broker needs
// at startup. This is the object returned by Initialize() (loader.go).
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Funnels is the funnel registry: id → validated FunnelConfig.
	Funnels map[string]*FunnelConfig

	// Detection configures the Funnel Detector (§4.6).
	Detection DetectionConfig

	// App holds the infra-level env configuration (§6).
	App *AppConfig

	// Scheduler configures the Scheduler's tick/lease/cart-recovery knobs (§4.9).
	Scheduler *SchedulerConfig

	// Retention configures the cleanup sweeper.
	Retention *RetentionConfig

	// LLM configures the LLM Client backend (§4.4).
	LLM *LLMConfig

	// Slack configures best-effort operator notifications.
	Slack *SlackConfig

	// MaskingPatterns/PatternGroups are the merged PII-masking pattern registry.
	MaskingPatterns map[string]MaskingPattern
	PatternGroups   map[string][]string
}

// ConfigStats contains statistics about loaded configuration, for startup logging.
type ConfigStats struct {
	Funnels         int
	Triggers        int
	MaskingPatterns int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	triggers := 0
	for _, f := range c.Funnels {
		triggers += len(f.Triggers)
	}
	return ConfigStats{
		Funnels:         len(c.Funnels),
		Triggers:        triggers,
		MaskingPatterns: len(c.MaskingPatterns),
	}
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetFunnel retrieves a funnel configuration by id.
func (c *Config) GetFunnel(id string) (*FunnelConfig, error) {
	f, ok := c.Funnels[id]
	if !ok {
		return nil, ErrFunnelNotFound
	}
	return f, nil
}
