// Package cleanup periodically enforces data retention (SUPPLEMENTED
// FEATURES: ScheduledJob/webhook-dedup retention, addressing the Design
// Notes' observation that meta and historical rows accrete over time).
// Grounded on the teacher's pkg/cleanup: same periodic-sweep-with-
// retention-window shape (ticker loop, idempotent per-sweep delete passes),
// retargeted from session/event retention to scheduled-job/webhook-dedup
// retention.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/store"
)

// Service periodically purges terminal ScheduledJob rows and expired
// webhook_dedup entries. All operations are idempotent and safe to run from
// multiple broker instances.
type Service struct {
	config *config.RetentionConfig
	store  *store.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, st *store.Store) *Service {
	return &Service{config: cfg, store: st}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup: service started",
		"scheduled_job_retention_days", s.config.ScheduledJobRetentionDays,
		"webhook_dedup_ttl", s.config.WebhookDedupTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup: service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.purgeOldScheduledJobs(ctx)
	s.purgeOldWebhookDedup(ctx)
}

func (s *Service) purgeOldScheduledJobs(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.ScheduledJobRetentionDays)
	count, err := s.store.PurgeOldScheduledJobs(ctx, cutoff)
	if err != nil {
		slog.Error("cleanup: purge old scheduled jobs failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("cleanup: purged old scheduled jobs", "count", count)
	}
}

func (s *Service) purgeOldWebhookDedup(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.WebhookDedupTTL)
	count, err := s.store.PurgeOldWebhookDedup(ctx, cutoff)
	if err != nil {
		slog.Error("cleanup: purge old webhook dedup rows failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("cleanup: purged old webhook dedup rows", "count", count)
	}
}
