package config

import (
	"fmt"
	"os"
	"strconv"
)

// AppConfig holds the infra-level environment configuration (§6
// "Configuration (startup)"), loaded the way pkg/database's
// LoadConfigFromEnv loads Config — getEnvOrDefault plus a Validate pass.
type AppConfig struct {
	// PublicBaseURL is the base the Response Processor roots asset URLs on,
	// by appending the asset's path, e.g. "https://broker.example.com" →
	// "https://broker.example.com/audio/welcome.opus".
	PublicBaseURL string

	// BillingWebhookSecret is the HMAC-SHA256 key verifying the billing
	// webhook's signature (§6).
	BillingWebhookSecret string

	// HTTPPort is the port the Gin server listens on.
	HTTPPort int
}

// LoadAppConfigFromEnv loads AppConfig from environment variables.
func LoadAppConfigFromEnv() (*AppConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("HTTP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_PORT: %w", err)
	}

	cfg := &AppConfig{
		PublicBaseURL:        getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		BillingWebhookSecret: os.Getenv("BILLING_WEBHOOK_SECRET"),
		HTTPPort:             port,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks AppConfig for startup-fatal problems.
func (c *AppConfig) Validate() error {
	if c.BillingWebhookSecret == "" {
		return fmt.Errorf("BILLING_WEBHOOK_SECRET is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
