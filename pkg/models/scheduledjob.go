package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates the lifecycle of a ScheduledJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobFired     JobStatus = "fired"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// ScheduledJob is a future action against a Thread. At most one pending job
// exists per (thread, key); schedule_job upserts by key.
type ScheduledJob struct {
	ID            uuid.UUID
	ThreadID      uuid.UUID
	Key           string
	FireAt        time.Time
	ActionKind    string
	ActionPayload json.RawMessage
	Status        JobStatus
	LeasedUntil   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
