package config

import "time"

// RetentionConfig controls the cleanup sweeper's purge windows (SUPPLEMENTED
// FEATURES: ScheduledJob/webhook-dedup retention).
type RetentionConfig struct {
	// ScheduledJobRetentionDays is how many days to keep fired/cancelled/failed
	// ScheduledJob rows before they're purged.
	ScheduledJobRetentionDays int `yaml:"scheduled_job_retention_days"`

	// WebhookDedupTTL is the maximum age of a webhook_dedup row before it's
	// purged; replay protection only needs to span the provider's retry window.
	WebhookDedupTTL time.Duration `yaml:"webhook_dedup_ttl"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		ScheduledJobRetentionDays: 30,
		WebhookDedupTTL:           48 * time.Hour,
		CleanupInterval:           12 * time.Hour,
	}
}
