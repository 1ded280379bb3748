package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysKnownAsset(string) bool { return true }

func TestInitializeWithNoUserYAMLUsesBuiltins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BILLING_WEBHOOK_SECRET", "test-secret")

	cfg, err := Initialize(context.Background(), dir, alwaysKnownAsset)
	require.NoError(t, err)

	assert.Contains(t, cfg.Funnels, "primary")
	assert.Contains(t, cfg.Funnels, "black_friday")
	assert.Equal(t, dir, cfg.ConfigDir())
	assert.Equal(t, "test-secret", cfg.App.BillingWebhookSecret)
}

func TestInitializeMissingBillingSecretFails(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BILLING_WEBHOOK_SECRET", "")

	_, err := Initialize(context.Background(), dir, alwaysKnownAsset)
	assert.Error(t, err)
}

func TestInitializeLoadsUserFunnelOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BILLING_WEBHOOK_SECRET", "test-secret")

	yamlContent := `
funnels:
  vip:
    id: vip
    type: product
    stages:
      - id: cold
        order: 0
      - id: hot
        order: 1
    triggers:
      - name: welcome
        allowed_prior_stages: ["cold"]
        keywords: {}
        actions:
          - kind: set_stage
            stage_id: hot
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "funnels.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Initialize(context.Background(), dir, alwaysKnownAsset)
	require.NoError(t, err)

	assert.Contains(t, cfg.Funnels, "vip")
	assert.Contains(t, cfg.Funnels, "primary", "builtin funnels survive alongside user additions")
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BILLING_WEBHOOK_SECRET", "test-secret")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "funnels.yaml"), []byte("funnels: [this is not a map"), 0o644))

	_, err := Initialize(context.Background(), dir, alwaysKnownAsset)
	assert.Error(t, err)
}

func TestInitializeRejectsUnreachableStage(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BILLING_WEBHOOK_SECRET", "test-secret")

	yamlContent := `
funnels:
  broken:
    id: broken
    stages:
      - id: cold
        order: 0
      - id: unreachable
        order: 1
    triggers:
      - name: noop
        allowed_prior_stages: ["cold"]
        keywords: {}
        actions:
          - kind: send_text
            literal: "hi"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "funnels.yaml"), []byte(yamlContent), 0o644))

	_, err := Initialize(context.Background(), dir, alwaysKnownAsset)
	assert.Error(t, err)
}

func TestConfigLoaderLoadFunnelsYAMLMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	loader := &configLoader{configDir: dir}

	cfg, err := loader.loadFunnelsYAML()
	require.NoError(t, err)
	assert.Empty(t, cfg.Funnels)
}
