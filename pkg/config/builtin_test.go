package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBuiltinConfigIsSingleton(t *testing.T) {
	a := GetBuiltinConfig()
	b := GetBuiltinConfig()
	assert.Same(t, a, b)
}

func TestBuiltinFunnelsIncludePrimary(t *testing.T) {
	builtin := GetBuiltinConfig()

	primary, ok := builtin.Funnels["primary"]
	assert.True(t, ok)
	assert.Equal(t, "primary", primary.Type)
	assert.True(t, primary.HasStage("cold"))
	assert.True(t, primary.HasStage("customer"))
	assert.NotEmpty(t, primary.Triggers)
}

func TestBuiltinFunnelsAreInternallyValid(t *testing.T) {
	// Every built-in funnel is exercised through the real validator the way
	// user-supplied YAML would be, with every asset id accepted.
	builtin := GetBuiltinConfig()
	cfg := &Config{
		Funnels:   map[string]*FunnelConfig{},
		Detection: builtin.Detection,
		Scheduler: DefaultSchedulerConfig(),
		Retention: DefaultRetentionConfig(),
	}
	for id, f := range builtin.Funnels {
		fCopy := f
		cfg.Funnels[id] = &fCopy
	}

	v := NewValidator(cfg, func(string) bool { return true })
	assert.NoError(t, v.ValidateAll())
}

func TestBuiltinDetectionDefaultsToPrimary(t *testing.T) {
	builtin := GetBuiltinConfig()
	assert.Equal(t, "primary", builtin.Detection.Default.FunnelID)
	assert.NotEmpty(t, builtin.Detection.Campaigns)
}

func TestBuiltinMaskingPatternsCoverPhoneAndEmail(t *testing.T) {
	builtin := GetBuiltinConfig()
	assert.Contains(t, builtin.MaskingPatterns, "email")
	assert.Contains(t, builtin.MaskingPatterns, "phone")
	assert.Contains(t, builtin.PatternGroups["pii"], "email")
	assert.Contains(t, builtin.PatternGroups["pii"], "phone")
}
