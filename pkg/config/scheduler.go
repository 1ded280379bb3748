package config

import "time"

// SchedulerConfig contains the Scheduler's (§4.9) tick and leasing
// parameters. Grounded on the teacher's QueueConfig shape (worker-pool
// polling knobs), narrowed to the single tick-and-lease loop this spec
// needs instead of a multi-worker claim pool.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler polls for due jobs (§4.9:
	// "e.g. 10s").
	TickInterval time.Duration `yaml:"tick_interval"`

	// JobLease is how long a leased job is protected from re-leasing by a
	// concurrent tick or a crash-recovered process (§4.9: "lease=60s").
	JobLease time.Duration `yaml:"job_lease"`

	// BatchSize bounds how many due jobs a single tick leases at once.
	BatchSize int `yaml:"batch_size"`

	// CartRecoveryDelay is the delay of the cart_recovery_30m job the
	// billing service schedules on a cart.abandonment event (Open Question
	// resolution 3: configurable, defaults to 30 minutes). Trigger schedule
	// actions, such as the built-in plan-choice follow-up, carry their own
	// schedule_delay and do not read it.
	CartRecoveryDelay time.Duration `yaml:"cart_recovery_delay"`
}

// DefaultSchedulerConfig returns the built-in scheduler defaults.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		TickInterval:      10 * time.Second,
		JobLease:          60 * time.Second,
		BatchSize:         50,
		CartRecoveryDelay: 30 * time.Minute,
	}
}
