// Package scheduler implements the Scheduler (§4.9): a single ticking loop
// that leases due scheduled_jobs rows and replays their stored action list
// through the Response Processor under the target thread's lock. Grounded
// on the teacher's WorkerPool/Worker tick-and-claim loop
// (pkg/queue/pool.go, pkg/queue/worker.go), narrowed from a multi-worker
// claim pool to one loop since Store.DueJobs already leases a whole batch
// in one transaction (a FOR UPDATE SKIP LOCKED select, then a lease update
// per job).
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/response"
	"github.com/salesbroker/funnelbroker/pkg/store"
	"github.com/salesbroker/funnelbroker/pkg/threadlock"
)

// RecipientResolver maps a thread to the provider-facing address its
// scheduled actions should be sent to. Kept as an injected callback, like
// the Response Processor's "to" parameter, so the Scheduler never needs its
// own Contact-lookup logic.
type RecipientResolver func(ctx context.Context, thread *models.Thread) (string, error)

// Scheduler polls for due jobs on a fixed interval and replays each one
// through the Response Processor (§4.9).
type Scheduler struct {
	store         *store.Store
	processor     *response.Processor
	locks         *threadlock.Registry
	recipient     RecipientResolver
	cfg           *config.SchedulerConfig
	publicBaseURL string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Scheduler bound to its collaborators. cfg is never nil in
// practice — callers pass config.DefaultSchedulerConfig() when no override
// is configured. publicBaseURL feeds the {link} template placeholder the
// same way the Ingress Dispatcher's buildVars does.
func New(st *store.Store, proc *response.Processor, locks *threadlock.Registry, recipient RecipientResolver, cfg *config.SchedulerConfig, publicBaseURL string) *Scheduler {
	return &Scheduler{
		store:         st,
		processor:     proc,
		locks:         locks,
		recipient:     recipient,
		cfg:           cfg,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		stopCh:        make(chan struct{}),
	}
}

// Start runs the tick loop in a background goroutine until ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the tick loop to exit and waits for it to finish the tick
// already in flight, if any.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick leases one batch of due jobs and processes each in turn. run calls
// it synchronously, so a slow job delays the next tick; meanwhile the
// ticker holds at most one pending tick and drops the rest. DueJobs's lease
// protects against double-processing the same job.
func (s *Scheduler) tick(ctx context.Context) {
	jobs, err := s.store.DueJobs(ctx, time.Now(), s.cfg.JobLease, s.cfg.BatchSize)
	if err != nil {
		slog.Error("scheduler: due jobs query failed", "error", err)
		return
	}
	for _, job := range jobs {
		s.process(ctx, job)
	}
}

// process replays one leased job's stored action list through the Response
// Processor. Every failure path still marks the job to a terminal status,
// so a permanently-broken job is never re-leased forever.
func (s *Scheduler) process(ctx context.Context, job *models.ScheduledJob) {
	unlock := s.locks.Lock(job.ThreadID)
	defer unlock()

	thread, err := s.store.GetThread(ctx, job.ThreadID)
	if err != nil {
		slog.Error("scheduler: load thread for job failed", "job_id", job.ID, "thread_id", job.ThreadID, "error", err)
		s.markFailed(ctx, job)
		return
	}

	// A due job firing while a human has taken over the conversation is
	// suppressed rather than fired, and recorded distinctly from an
	// ordinary failure (Open Question resolution 2).
	if thread.HumanTakeover {
		if _, err := s.store.AppendMessage(ctx, thread.ID, models.RoleSystem,
			fmt.Sprintf("scheduled job %q suppressed: human_takeover is active", job.Key), false); err != nil {
			slog.Error("scheduler: failed to record suppression message", "job_id", job.ID, "error", err)
		}
		if err := s.store.MarkJobCancelled(ctx, job.ID); err != nil {
			slog.Error("scheduler: failed to mark suppressed job cancelled", "job_id", job.ID, "error", err)
		}
		return
	}

	var payload models.SchedulePayload
	if err := json.Unmarshal(job.ActionPayload, &payload); err != nil {
		slog.Error("scheduler: malformed action payload", "job_id", job.ID, "error", err)
		s.markFailed(ctx, job)
		return
	}

	to, err := s.recipient(ctx, thread)
	if err != nil {
		slog.Error("scheduler: recipient resolution failed", "job_id", job.ID, "thread_id", thread.ID, "error", err)
		s.markFailed(ctx, job)
		return
	}

	contact, err := s.store.GetContact(ctx, thread.ContactID)
	if err != nil {
		slog.Error("scheduler: contact lookup failed", "job_id", job.ID, "thread_id", thread.ID, "error", err)
		s.markFailed(ctx, job)
		return
	}
	vars := buildVars(s.publicBaseURL, contact)

	if err := s.processor.Execute(ctx, thread, to, payload.Actions, vars); err != nil {
		slog.Warn("scheduler: job execution failed", "job_id", job.ID, "thread_id", thread.ID, "error", err)
		s.markFailed(ctx, job)
		return
	}

	if err := s.store.MarkJobFired(ctx, job.ID); err != nil {
		slog.Error("scheduler: failed to mark job fired", "job_id", job.ID, "error", err)
	}
}

func (s *Scheduler) markFailed(ctx context.Context, job *models.ScheduledJob) {
	if err := s.store.MarkJobFailed(ctx, job.ID); err != nil {
		slog.Error("scheduler: failed to mark job failed", "job_id", job.ID, "error", err)
	}
}

// buildVars supplies the {name}/{link} template placeholders a replayed
// action list's text send may reference, mirroring
// pkg/dispatch.buildVars — the cart-recovery nudge is the reason this
// exists: cart_recovery_nudge's template uses both placeholders.
func buildVars(publicBaseURL string, contact *models.Contact) map[string]string {
	name := "there"
	if contact.Name != nil && *contact.Name != "" {
		name = *contact.Name
	}
	return map[string]string{
		"name": name,
		"link": fmt.Sprintf("%s/checkout/%s", publicBaseURL, contact.ID.String()),
	}
}
