package slack

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// HumanTakeoverInput contains data for a human-takeover notification.
type HumanTakeoverInput struct {
	ThreadID string
	Channel  string
	Reason   string
}

// StageReachedInput contains data for a `hot`/`customer` stage notification.
type StageReachedInput struct {
	ThreadID string
	Channel  string
	FunnelID string
	Stage    string
}

// Service handles Slack notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyHumanTakeover sends a best-effort notification that a thread now
// needs an operator. Fail-open: errors are logged, never returned, and must
// never block or fail the calling dispatch pipeline.
func (s *Service) NotifyHumanTakeover(ctx context.Context, input HumanTakeoverInput) {
	if s == nil {
		return
	}
	blocks := BuildHumanTakeoverMessage(input, s.dashboardURL)
	postCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.client.PostMessage(postCtx, blocks, 5*time.Second); err != nil {
			s.logger.Error("failed to send human-takeover notification",
				"thread_id", input.ThreadID, "error", err)
		}
	}()
}

// NotifyStageReached sends a best-effort notification that a thread reached
// the `hot` or `customer` stage. Fail-open: errors are logged, never
// returned.
func (s *Service) NotifyStageReached(ctx context.Context, input StageReachedInput) {
	if s == nil {
		return
	}
	blocks := BuildStageReachedMessage(input, s.dashboardURL)
	postCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.client.PostMessage(postCtx, blocks, 5*time.Second); err != nil {
			s.logger.Error("failed to send stage-reached notification",
				"thread_id", input.ThreadID, "stage", input.Stage, "error", err)
		}
	}()
}
