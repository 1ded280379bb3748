package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salesbroker/funnelbroker/pkg/models"
)

const jobColumns = `id, thread_id, key, fire_at, action_kind, action_payload, status, leased_until, created_at, updated_at`

func scanJob(row *sql.Row) (*models.ScheduledJob, error) {
	var j models.ScheduledJob
	var payload []byte
	err := row.Scan(&j.ID, &j.ThreadID, &j.Key, &j.FireAt, &j.ActionKind, &payload, &j.Status, &j.LeasedUntil, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.ActionPayload = payload
	return &j, nil
}

func scheduleJob(ctx context.Context, q dbtx, threadID uuid.UUID, key string, fireAt time.Time, actionKind string, payload models.SchedulePayload) (*models.ScheduledJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule payload: %w", err)
	}

	// schedule_job is an upsert keyed by the partial unique index on
	// (thread_id, key) WHERE status = 'pending': a second call with the
	// same key replaces the first pending job rather than creating a
	// second one (§4.1, §4.9 invariant a).
	row := q.QueryRowContext(ctx, `
		INSERT INTO scheduled_jobs (id, thread_id, key, fire_at, action_kind, action_payload, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (thread_id, key) WHERE status = 'pending'
		DO UPDATE SET fire_at = EXCLUDED.fire_at, action_kind = EXCLUDED.action_kind,
			action_payload = EXCLUDED.action_payload, leased_until = NULL, updated_at = now()
		RETURNING `+jobColumns, threadID, key, fireAt, actionKind, raw)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("schedule job: %w", err)
	}
	return j, nil
}

// ScheduleJob upserts a pending job for (thread, key).
func (s *Store) ScheduleJob(ctx context.Context, threadID uuid.UUID, key string, fireAt time.Time, actionKind string, payload models.SchedulePayload) (*models.ScheduledJob, error) {
	return scheduleJob(ctx, s.db, threadID, key, fireAt, actionKind, payload)
}

func (t *TxStore) ScheduleJob(ctx context.Context, threadID uuid.UUID, key string, fireAt time.Time, actionKind string, payload models.SchedulePayload) (*models.ScheduledJob, error) {
	return scheduleJob(ctx, t.tx, threadID, key, fireAt, actionKind, payload)
}

// PendingJobExists reports whether a pending job exists for thread whose key
// starts with keyPrefix, used by the cart.abandonment webhook handler (§6)
// to avoid stacking a second cart-recovery job on top of one already
// scheduled.
func (s *Store) PendingJobExists(ctx context.Context, threadID uuid.UUID, keyPrefix string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM scheduled_jobs
			WHERE thread_id = $1 AND key LIKE $2 || '%' AND status = 'pending'
		)`, threadID, keyPrefix).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending job existence: %w", err)
	}
	return exists, nil
}

func cancelJobs(ctx context.Context, q dbtx, threadID uuid.UUID, keyPrefix string) (int, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = 'cancelled', updated_at = now()
		WHERE thread_id = $1 AND key LIKE $2 || '%' AND status = 'pending'`, threadID, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("cancel jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// CancelJobs cancels every pending job for a thread whose key starts with
// keyPrefix, e.g. "cart_recovery_" invalidates every cart-recovery step.
func (s *Store) CancelJobs(ctx context.Context, threadID uuid.UUID, keyPrefix string) (int, error) {
	return cancelJobs(ctx, s.db, threadID, keyPrefix)
}

func (t *TxStore) CancelJobs(ctx context.Context, threadID uuid.UUID, keyPrefix string) (int, error) {
	return cancelJobs(ctx, t.tx, threadID, keyPrefix)
}

// DueJobs atomically leases up to limit pending jobs whose fire_at <= now
// and whose prior lease (if any) has expired, using FOR UPDATE SKIP LOCKED so
// concurrent scheduler ticks (or replicas) never double-claim a row. Mirrors
// the teacher's claimNextSession pattern in spirit, generalized from a
// single-row claim to a batch lease.
func (s *Store) DueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.ScheduledJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin due jobs tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM scheduled_jobs
		WHERE status = 'pending' AND fire_at <= $1 AND (leased_until IS NULL OR leased_until < $1)
		ORDER BY fire_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	leasedUntil := now.Add(lease)
	var out []*models.ScheduledJob
	for _, id := range ids {
		row := tx.QueryRowContext(ctx, `
			UPDATE scheduled_jobs SET leased_until = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+jobColumns, id, leasedUntil)
		j, err := scanJob(row)
		if err != nil {
			return nil, fmt.Errorf("lease job %s: %w", id, err)
		}
		out = append(out, j)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit due jobs lease: %w", err)
	}
	return out, nil
}

func markJobStatus(ctx context.Context, q dbtx, jobID uuid.UUID, status models.JobStatus) error {
	_, err := q.ExecContext(ctx, `UPDATE scheduled_jobs SET status = $2, updated_at = now() WHERE id = $1`, jobID, status)
	if err != nil {
		return fmt.Errorf("mark job %s as %s: %w", jobID, status, err)
	}
	return nil
}

// MarkJobFired records successful execution.
func (s *Store) MarkJobFired(ctx context.Context, jobID uuid.UUID) error {
	return markJobStatus(ctx, s.db, jobID, models.JobFired)
}

// MarkJobFailed records a permanent failure (no further retries).
func (s *Store) MarkJobFailed(ctx context.Context, jobID uuid.UUID) error {
	return markJobStatus(ctx, s.db, jobID, models.JobFailed)
}

// MarkJobCancelled records suppression, e.g. a job that fired while
// human_takeover was true (Open Question resolution 2).
func (s *Store) MarkJobCancelled(ctx context.Context, jobID uuid.UUID) error {
	return markJobStatus(ctx, s.db, jobID, models.JobCancelled)
}
