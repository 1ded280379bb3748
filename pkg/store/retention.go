package store

import (
	"context"
	"fmt"
	"time"
)

// PurgeOldScheduledJobs deletes terminal (fired/cancelled/failed)
// scheduled_jobs rows whose fire_at is before olderThan, keeping the table
// from growing unbounded once a thread has accumulated years of reminders.
func (s *Store) PurgeOldScheduledJobs(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduled_jobs
		WHERE status IN ('fired', 'cancelled', 'failed') AND fire_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge old scheduled jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// PurgeOldWebhookDedup deletes webhook_dedup rows older than olderThan. The
// dedup table only needs to span the messaging/billing provider's retry
// window, not live forever.
func (s *Store) PurgeOldWebhookDedup(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_dedup WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge old webhook dedup rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
