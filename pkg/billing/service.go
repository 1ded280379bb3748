package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/response"
	"github.com/salesbroker/funnelbroker/pkg/slack"
	"github.com/salesbroker/funnelbroker/pkg/store"
	"github.com/salesbroker/funnelbroker/pkg/threadlock"
)

const (
	source              = "billing"
	cartRecoveryKey     = "cart_recovery_30m"
	cartRecoveryPrefix  = "cart_recovery_"
	customerStage       = "customer"
	cartRecoveryStage   = "cart_recovery"
	welcomeTemplateCode = "welcome_customer"
	nudgeTemplateCode   = "cart_recovery_nudge"

	storeTimeout = time.Second
)

// RecipientResolver maps a thread to the provider-facing address a welcome
// or recovery-nudge send should go to, mirroring the Scheduler's resolver
// of the same name (pkg/scheduler) since both replay an action list through
// the Response Processor outside the webhook-originated call path.
type RecipientResolver func(ctx context.Context, thread *models.Thread) (string, error)

// Service implements the billing-webhook half of §6.
type Service struct {
	store             *store.Store
	processor         *response.Processor
	locks             *threadlock.Registry
	recipient         RecipientResolver
	notifier          *slack.Service
	cartRecoveryDelay time.Duration
}

// New builds a billing Service bound to its collaborators. notifier may be
// nil (Slack disabled); cartRecoveryDelay is the Open Question 3 default
// when zero.
func New(st *store.Store, proc *response.Processor, locks *threadlock.Registry, recipient RecipientResolver, notifier *slack.Service, cartRecoveryDelay time.Duration) *Service {
	if cartRecoveryDelay <= 0 {
		cartRecoveryDelay = 30 * time.Minute
	}
	return &Service{
		store:             st,
		processor:         proc,
		locks:             locks,
		recipient:         recipient,
		notifier:          notifier,
		cartRecoveryDelay: cartRecoveryDelay,
	}
}

// Process handles one parsed billing event per §6: `sale.approved` and
// `cart.abandonment` get dedicated handling; anything else is persisted and
// ignored. Callers must verify the webhook signature before calling
// Process — a SignatureMismatch never reaches here (§7).
func (s *Service) Process(ctx context.Context, evt *Event) error {
	switch evt.EventKind {
	case EventSaleApproved:
		return s.handleSaleApproved(ctx, evt)
	case EventCartAbandonment:
		return s.handleCartAbandonment(ctx, evt)
	default:
		return s.handleUnknown(ctx, evt)
	}
}

func (s *Service) handleSaleApproved(ctx context.Context, evt *Event) error {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	already, err := s.store.SalesEventExists(sctx, source, evt.EventKind, evt.OrderID)
	cancel()
	if err != nil {
		return fmt.Errorf("billing: check sales event existence: %w", err)
	}
	if already {
		slog.Info("billing: sale.approved redelivery, already processed", "order_id", evt.OrderID)
		return nil
	}

	contact, err := s.correlateContact(ctx, evt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("billing: sale.approved with no matching contact, recording uncorrelated", "order_id", evt.OrderID)
			return s.recordSalesEvent(ctx, evt, nil)
		}
		return fmt.Errorf("billing: correlate contact: %w", err)
	}

	sctx, cancel = context.WithTimeout(ctx, storeTimeout)
	err = s.store.RecordPurchase(sctx, contact.ID, evt.Value)
	cancel()
	if err != nil {
		return fmt.Errorf("billing: record purchase: %w", err)
	}

	if err := s.recordSalesEvent(ctx, evt, &contact.ID); err != nil {
		return err
	}

	thread, err := s.threadForContact(ctx, contact.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Info("billing: sale.approved for a contact with no thread yet, nothing to dispatch", "contact_id", contact.ID)
			return nil
		}
		return fmt.Errorf("billing: find thread: %w", err)
	}

	unlock := s.locks.Lock(thread.ID)
	defer unlock()

	sctx, cancel = context.WithTimeout(ctx, storeTimeout)
	_, err = s.store.CancelJobs(sctx, thread.ID, cartRecoveryPrefix)
	cancel()
	if err != nil {
		return fmt.Errorf("billing: cancel pending cart-recovery jobs: %w", err)
	}

	to, err := s.recipient(ctx, thread)
	if err != nil {
		return fmt.Errorf("billing: resolve recipient: %w", err)
	}

	actions := models.ActionList{
		{Kind: models.ActionSetStage, StageID: customerStage},
		{Kind: models.ActionSendText, TemplateCode: welcomeTemplateCode},
	}
	vars := map[string]string{"name": contactName(contact)}
	if err := s.processor.Execute(ctx, thread, to, actions, vars); err != nil {
		return fmt.Errorf("billing: dispatch welcome action list: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyStageReached(ctx, slack.StageReachedInput{
			ThreadID: thread.ID.String(),
			Channel:  thread.Channel,
			FunnelID: thread.FunnelID(),
			Stage:    customerStage,
		})
	}
	return nil
}

func (s *Service) handleCartAbandonment(ctx context.Context, evt *Event) error {
	contact, err := s.correlateContact(ctx, evt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("billing: cart.abandonment with no matching contact, recording uncorrelated", "order_id", evt.OrderID)
			return s.recordSalesEvent(ctx, evt, nil)
		}
		return fmt.Errorf("billing: correlate contact: %w", err)
	}

	if err := s.recordSalesEvent(ctx, evt, &contact.ID); err != nil {
		return err
	}

	thread, err := s.threadForContact(ctx, contact.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("billing: find thread: %w", err)
	}

	unlock := s.locks.Lock(thread.ID)
	defer unlock()

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	exists, err := s.store.PendingJobExists(sctx, thread.ID, cartRecoveryPrefix)
	cancel()
	if err != nil {
		return fmt.Errorf("billing: check pending cart-recovery job: %w", err)
	}
	if exists {
		return nil
	}

	payload := models.SchedulePayload{Actions: models.ActionList{
		{Kind: models.ActionSendText, TemplateCode: nudgeTemplateCode},
		{Kind: models.ActionSetStage, StageID: cartRecoveryStage},
	}}

	sctx, cancel = context.WithTimeout(ctx, storeTimeout)
	_, err = s.store.ScheduleJob(sctx, thread.ID, cartRecoveryKey, time.Now().Add(s.cartRecoveryDelay), string(models.ActionSchedule), payload)
	cancel()
	if err != nil {
		return fmt.Errorf("billing: schedule cart-recovery job: %w", err)
	}
	return nil
}

func (s *Service) handleUnknown(ctx context.Context, evt *Event) error {
	slog.Info("billing: unknown event kind, recording and ignoring", "event", evt.EventKind, "order_id", evt.OrderID)
	var contactID *uuid.UUID
	if contact, err := s.correlateContact(ctx, evt); err == nil {
		contactID = &contact.ID
	}
	return s.recordSalesEvent(ctx, evt, contactID)
}

func (s *Service) correlateContact(ctx context.Context, evt *Event) (*models.Contact, error) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.FindContactByEmailOrPhone(sctx, evt.BuyerEmail, evt.BuyerPhone)
}

func (s *Service) threadForContact(ctx context.Context, contactID uuid.UUID) (*models.Thread, error) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.FindThreadByContact(sctx, contactID)
}

func (s *Service) recordSalesEvent(ctx context.Context, evt *Event, contactID *uuid.UUID) error {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := s.store.RecordSalesEvent(sctx, &models.SalesEvent{
		Source:     source,
		EventKind:  evt.EventKind,
		OrderID:    evt.OrderID,
		BuyerEmail: evt.BuyerEmail,
		BuyerPhone: evt.BuyerPhone,
		Value:      evt.Value,
		RawPayload: evt.Raw(),
		ContactID:  contactID,
	})
	if err != nil {
		return fmt.Errorf("billing: record sales event: %w", err)
	}
	return nil
}

func contactName(c *models.Contact) string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return "there"
}
