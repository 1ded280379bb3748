// Package dispatch implements the Ingress Dispatcher (§4.10): the single
// entry point the inbound webhook handler calls for every message from the
// messaging provider. It owns the full decide-and-act pipeline — contact
// and thread resolution, per-thread serialization, support/funnel
// detection, trigger matching, and the LLM fallback — handing every side
// effect off to the Response Processor. Grounded on the teacher's
// pollAndProcess step-numbered orchestration (pkg/queue/worker.go).
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/salesbroker/funnelbroker/pkg/detect"
	"github.com/salesbroker/funnelbroker/pkg/llmclient"
	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/response"
	"github.com/salesbroker/funnelbroker/pkg/slack"
	"github.com/salesbroker/funnelbroker/pkg/store"
	"github.com/salesbroker/funnelbroker/pkg/threadlock"
	"github.com/salesbroker/funnelbroker/pkg/trigger"
)

// Per-I/O timeouts (§4.10 "Suspension points"): each Store and LLM call the
// dispatcher makes is individually bounded so a single slow dependency
// cannot stall the per-thread lock indefinitely. sendTimeout is not applied
// here: sends run inside the Response Processor and are bounded only by the
// Sender's own client timeout.
const (
	storeTimeout = time.Second
	sendTimeout  = 10 * time.Second
	llmTimeout   = 30 * time.Second

	// historyWindow bounds how many recent messages are handed to the LLM
	// Client when no trigger matches (§4.4).
	historyWindow = 20
)

// LLMClient is the subset of llmclient.Client the dispatcher depends on,
// narrowed to an interface so tests can substitute a stub.
type LLMClient interface {
	Generate(ctx context.Context, input llmclient.Input) (*llmclient.Output, error)
}

// Dispatcher is the Ingress Dispatcher.
type Dispatcher struct {
	store     *store.Store
	processor *response.Processor
	locks     *threadlock.Registry
	triggers  *trigger.Engine
	funnelDet *detect.Detector
	llm       LLMClient
	publicURL string
	notifier  *slack.Service
}

// New builds a Dispatcher from its collaborators. triggers and funnelDet
// must be built from the same funnel registry as the Response Processor.
// notifier may be nil (Slack disabled); its methods are nil-safe no-ops.
func New(
	st *store.Store,
	proc *response.Processor,
	locks *threadlock.Registry,
	triggers *trigger.Engine,
	funnelDet *detect.Detector,
	llm LLMClient,
	publicBaseURL string,
	notifier *slack.Service,
) *Dispatcher {
	return &Dispatcher{
		store:     st,
		processor: proc,
		locks:     locks,
		triggers:  triggers,
		funnelDet: funnelDet,
		llm:       llm,
		publicURL: publicBaseURL,
		notifier:  notifier,
	}
}

// HandleInbound runs the full §4.10 algorithm for one inbound message.
// channel is the messaging channel id (e.g. "whatsapp"); fromPhone is the
// raw provider "From" address; text is the message body; media is a
// provider-assigned marker recorded verbatim when the inbound carried an
// attachment (e.g. "[image]"), or "" for plain text. messageID is the
// provider's own message identifier when it supplies one, or "" when it
// doesn't; sentAt is the provider-reported send time, used only to build a
// fallback dedup key when messageID is absent.
//
// Providers retry webhook deliveries; §9 calls for deduping on a
// provider-supplied message id when available, falling back to
// (thread, timestamp, hash(text)). A redelivery is recognized and dropped
// before it touches the conversation — no duplicate inbound message, no
// second run through the pipeline.
func (d *Dispatcher) HandleInbound(ctx context.Context, channel, fromPhone, text, media, messageID string, sentAt time.Time) error {
	phone, err := NormalizePhone(fromPhone)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	content := text
	if media != "" {
		content = text + " " + media
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	contact, err := d.store.GetOrCreateContact(sctx, phone)
	cancel()
	if err != nil {
		return fmt.Errorf("dispatch: get or create contact: %w", err)
	}

	sctx, cancel = context.WithTimeout(ctx, storeTimeout)
	thread, err := d.store.GetOrCreateThread(sctx, contact.ID, channel)
	cancel()
	if err != nil {
		return fmt.Errorf("dispatch: get or create thread: %w", err)
	}

	dedupKey := webhookDedupKey(thread, messageID, sentAt, content)
	sctx, cancel = context.WithTimeout(ctx, storeTimeout)
	seen, err := d.store.WebhookSeen(sctx, channel, dedupKey, &thread.ID)
	cancel()
	if err != nil {
		return fmt.Errorf("dispatch: webhook dedup check: %w", err)
	}
	if seen {
		slog.Info("dispatch: dropping redelivered webhook", "thread_id", thread.ID, "dedup_key", dedupKey)
		return nil
	}

	sctx, cancel = context.WithTimeout(ctx, storeTimeout)
	_, err = d.store.AppendMessage(sctx, thread.ID, models.RoleUser, content, true)
	cancel()
	if err != nil {
		return fmt.Errorf("dispatch: append inbound message: %w", err)
	}

	unlock := d.locks.Lock(thread.ID)
	defer unlock()

	if err := d.process(ctx, thread, contact, phone, content); err != nil {
		if d.recordTimeout(ctx, thread, err) {
			return nil
		}
		return err
	}
	return nil
}

// process runs every pipeline step after the per-thread lock is held
// (§4.10 steps 4-9). thread is re-fetched internally where a prior step
// may have mutated it, so later steps always see the freshest state.
func (d *Dispatcher) process(ctx context.Context, thread *models.Thread, contact *models.Contact, to, inboundText string) error {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	_, err := d.store.CancelJobs(sctx, thread.ID, "cart_recovery_")
	cancel()
	if err != nil {
		return fmt.Errorf("cancel pending cart-recovery jobs: %w", err)
	}

	if thread.HumanTakeover {
		return nil
	}

	if detect.IsSupport(inboundText) {
		return d.handleSupportHandoff(ctx, thread, to)
	}

	if thread.FunnelID() == "" {
		var err error
		thread, err = d.seedFunnel(ctx, thread, inboundText)
		if err != nil {
			return fmt.Errorf("seed funnel: %w", err)
		}
	}

	vars := buildVars(d.publicURL, contact)

	if match, ok := d.triggers.Match(thread, inboundText); ok {
		return d.processor.Execute(ctx, thread, to, match.Actions, vars)
	}

	return d.runLLM(ctx, thread, to, vars)
}

// handleSupportHandoff implements §4.10 step 6: flips human_takeover,
// sends the canned hand-off text directly (bypassing trigger/LLM
// machinery), records the assistant message, and best-effort notifies
// Slack that the thread needs an operator.
func (d *Dispatcher) handleSupportHandoff(ctx context.Context, thread *models.Thread, to string) error {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	err := d.store.SetHumanTakeover(sctx, thread.ID, true)
	cancel()
	if err != nil {
		return fmt.Errorf("set human takeover: %w", err)
	}

	d.notifier.NotifyHumanTakeover(ctx, slack.HumanTakeoverInput{
		ThreadID: thread.ID.String(),
		Channel:  thread.Channel,
		Reason:   "support keyword detected",
	})

	actions := models.ActionList{{Kind: models.ActionSendText, TemplateCode: "support_handoff"}}
	return d.processor.Execute(ctx, thread, to, actions, nil)
}

// seedFunnel implements §4.10 step 7: the Funnel Detector only ever runs
// once per thread, on the first inbound that has no funnel assigned yet.
func (d *Dispatcher) seedFunnel(ctx context.Context, thread *models.Thread, firstText string) (*models.Thread, error) {
	m := d.funnelDet.Detect(firstText)

	metaPatch := map[string]any{
		models.MetaFunnelID: m.FunnelID,
		models.MetaSource:   m.Source,
	}
	if len(m.Tags) > 0 {
		metaPatch[models.MetaTags] = m.Tags
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	updated, err := d.store.UpdateThreadMetaAndStage(sctx, thread.ID, m.InitialStageID, metaPatch)
	cancel()
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// runLLM implements §4.10 step 9: the fallback path when no trigger
// matched. A timed-out or malformed LLM response never reaches the
// provider as a trigger would — ErrLLMUnavailable here degrades to a
// recorded system-message rather than a reply (§7).
func (d *Dispatcher) runLLM(ctx context.Context, thread *models.Thread, to string, vars map[string]string) error {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	history, err := d.store.ListMessages(sctx, thread.ID, historyWindow)
	cancel()
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	input := llmclient.Input{
		History: toHistory(history),
		Context: llmclient.Context{
			Stage:       thread.LeadStage,
			FunnelID:    thread.FunnelID(),
			ContactName: vars["name"],
		},
	}

	lctx, cancel := context.WithTimeout(ctx, llmTimeout)
	out, err := d.llm.Generate(lctx, input)
	cancel()
	if err != nil {
		slog.Warn("dispatch: llm unavailable, recording fallback", "thread_id", thread.ID, "error", err)
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		_, aerr := d.store.AppendMessage(sctx, thread.ID, models.RoleSystem, fmt.Sprintf("llm unavailable: %v", err), false)
		cancel()
		if aerr != nil {
			return fmt.Errorf("record llm-unavailable message: %w", aerr)
		}
		return nil
	}

	return d.processor.ExecuteLLMOutput(ctx, thread, to, out, vars)
}

// recordTimeout appends a system-message when err is a context deadline
// exceeded (§4.10: "on timeout the dispatcher aborts the remaining
// pipeline and appends a system-message") and reports whether it handled
// it, swallowing the timeout rather than propagating it to the webhook
// handler — the inbound was already durably recorded before the lock was
// taken.
func (d *Dispatcher) recordTimeout(ctx context.Context, thread *models.Thread, cause error) bool {
	if !errors.Is(cause, context.DeadlineExceeded) {
		return false
	}
	msg := fmt.Sprintf("pipeline aborted on timeout: %v", cause)
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	_, err := d.store.AppendMessage(sctx, thread.ID, models.RoleSystem, msg, false)
	cancel()
	if err != nil {
		slog.Error("dispatch: failed to record timeout system-message", "thread_id", thread.ID, "error", err)
	}
	slog.Warn("dispatch: pipeline timed out", "thread_id", thread.ID, "cause", cause)
	return true
}

// webhookDedupKey implements the §9 dedup strategy: the provider's own
// message id when it supplies one, otherwise a hash of
// (thread, timestamp, text) standing in for the "small sliding window"
// fallback key.
func webhookDedupKey(thread *models.Thread, messageID string, sentAt time.Time, content string) string {
	if messageID != "" {
		return messageID
	}
	h := sha256.Sum256([]byte(thread.ID.String() + "|" + sentAt.UTC().Format(time.RFC3339Nano) + "|" + content))
	return hex.EncodeToString(h[:])
}

func toHistory(msgs []*models.Message) []llmclient.HistoryMessage {
	out := make([]llmclient.HistoryMessage, len(msgs))
	for i, m := range msgs {
		out[i] = llmclient.HistoryMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// buildVars supplies the {name}/{link} template placeholders (§4.2) from
// the resolved contact. link points at a per-contact checkout page; actual
// payment-link generation is outside this broker's scope, so the link is
// a stable, deterministic URL the downstream checkout surface can key on.
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
