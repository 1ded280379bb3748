// Package response implements the Response Processor (§4.8): given an
// action list produced by the Trigger Engine, the Scheduler, or a parsed
// LLM structured output, it sequences outbound sends, persists the
// conversation audit trail, and commits stage/scheduling mutations.
// Grounded on the teacher's per-item worker orchestration (bounded
// retries, terminal-status commit) and its transactional
// commit-with-children pattern for compound writes.
package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/salesbroker/funnelbroker/pkg/assets"
	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/llmclient"
	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/sender"
	"github.com/salesbroker/funnelbroker/pkg/store"
)

// retryBackoff is the fixed delay before a single retry of a transient send
// failure (§4.8 step 4: "retry once after a short fixed backoff").
const retryBackoff = 2 * time.Second

// ErrAborted wraps the cause of an action list that could not run to
// completion. The partial execution up to the failure, plus an explanatory
// system-message, is already durably recorded; stage is left unchanged.
var ErrAborted = errors.New("response: action list aborted")

// Processor is the Response Processor. A single instance is shared across
// every thread; callers (Ingress Dispatcher, Scheduler) are responsible for
// holding the target thread's lock for the duration of Execute.
type Processor struct {
	store      *store.Store
	sender     sender.Sender
	assets     *assets.Library
	funnels    map[string]*config.FunnelConfig
	publicBase string
}

// New builds a Processor bound to its collaborators.
func New(st *store.Store, snd sender.Sender, lib *assets.Library, funnels map[string]*config.FunnelConfig, publicBaseURL string) *Processor {
	return &Processor{
		store:      st,
		sender:     snd,
		assets:     lib,
		funnels:    funnels,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Execute runs actions against thread in order (§4.7, §4.8). to is the
// provider-facing recipient address; vars supplies text-template
// placeholders ({name}, {link}) and may be nil. Returns ErrAborted if a
// send permanently fails or exhausts its one retry — in that case stage is
// left unmodified and a system-message records the partial execution.
func (p *Processor) Execute(ctx context.Context, thread *models.Thread, to string, actions models.ActionList, vars map[string]string) error {
	pendingStage := ""
	hasPendingStage := false

	for i, action := range actions {
		switch action.Kind {
		case models.ActionSendAudio, models.ActionSendImages, models.ActionSendText:
			if err := p.executeSend(ctx, thread, to, action, vars); err != nil {
				return p.abort(ctx, thread, actions, i, err)
			}
		case models.ActionSetStage:
			pendingStage = action.StageID
			hasPendingStage = true
		case models.ActionSchedule:
			if err := p.executeSchedule(ctx, thread, action); err != nil {
				return p.abort(ctx, thread, actions, i, err)
			}
		case models.ActionCancel:
			if _, err := p.store.CancelJobs(ctx, thread.ID, action.CancelKeyPrefix); err != nil {
				return p.abort(ctx, thread, actions, i, fmt.Errorf("cancel jobs %q: %w", action.CancelKeyPrefix, err))
			}
		default:
			slog.Warn("response: unknown action kind, skipping", "kind", action.Kind, "thread_id", thread.ID)
		}
	}

	if hasPendingStage {
		return p.commitStage(ctx, thread, pendingStage)
	}
	return nil
}

// ExecuteLLMOutput converts a parsed LLM output (§4.4) into an action list
// and runs it through Execute. A structured next_stage only becomes a
// set_stage action if it is a legal successor of the thread's current
// stage per its funnel's own state machine; otherwise it is dropped and a
// system-message records the rejection (§4.8 second paragraph).
func (p *Processor) ExecuteLLMOutput(ctx context.Context, thread *models.Thread, to string, out *llmclient.Output, vars map[string]string) error {
	if out.Structured == nil {
		return p.Execute(ctx, thread, to, models.ActionList{{Kind: models.ActionSendText, Literal: out.Text}}, vars)
	}

	so := out.Structured
	var actions models.ActionList
	switch so.ResponseType {
	case llmclient.ResponseAudio:
		actions = append(actions, models.Action{Kind: models.ActionSendAudio, AssetID: so.AssetID})
	case llmclient.ResponseTemplate:
		actions = append(actions, models.Action{Kind: models.ActionSendText, TemplateCode: so.TemplateCode})
	case llmclient.ResponseText:
		actions = append(actions, models.Action{Kind: models.ActionSendText, Literal: so.Message})
	}

	if so.NextStage != "" {
		if p.isLegalSuccessor(thread, so.NextStage) {
			actions = append(actions, models.Action{Kind: models.ActionSetStage, StageID: so.NextStage})
		} else {
			slog.Warn("response: rejecting illegal LLM next_stage",
				"thread_id", thread.ID, "from_stage", thread.LeadStage, "to_stage", so.NextStage)
			rejection := fmt.Sprintf("LLM proposed illegal stage transition %q -> %q; ignored", thread.LeadStage, so.NextStage)
			if _, err := p.store.AppendMessage(ctx, thread.ID, models.RoleSystem, rejection, false); err != nil {
				return fmt.Errorf("record rejected next_stage: %w", err)
			}
		}
	}

	return p.Execute(ctx, thread, to, actions, vars)
}

func (p *Processor) isLegalSuccessor(thread *models.Thread, target string) bool {
	funnel, ok := p.funnels[thread.FunnelID()]
	if !ok {
		return false
	}
	return funnel.LegalSuccessor(thread.LeadStage, target)
}

func (p *Processor) executeSend(ctx context.Context, thread *models.Thread, to string, action models.Action, vars map[string]string) error {
	switch action.Kind {
	case models.ActionSendAudio:
		return p.sendMedia(ctx, thread, to, action.AssetID, sender.MediaAudio)
	case models.ActionSendImages:
		for _, id := range action.AssetIDs {
			if err := p.sendMedia(ctx, thread, to, id, sender.MediaImage); err != nil {
				return err
			}
		}
		return nil
	case models.ActionSendText:
		return p.sendText(ctx, thread, to, action, vars)
	default:
		return fmt.Errorf("executeSend: unexpected kind %q", action.Kind)
	}
}

func (p *Processor) sendMedia(ctx context.Context, thread *models.Thread, to, assetID string, kind sender.MediaKind) error {
	resolved, err := p.assets.Resolve(assetID, nil)
	if err != nil {
		return fmt.Errorf("resolve asset %q: %w", assetID, err)
	}

	url := p.publicBase + resolved.Path
	if err := p.sendWithRetry(ctx, func() (string, error) {
		return p.sender.SendMedia(ctx, to, url, kind)
	}); err != nil {
		return err
	}

	_, err = p.store.AppendMessage(ctx, thread.ID, models.RoleAssistant, mediaMarker(kind, assetID), false)
	if err != nil {
		return fmt.Errorf("append media message: %w", err)
	}
	return nil
}

func (p *Processor) sendText(ctx context.Context, thread *models.Thread, to string, action models.Action, vars map[string]string) error {
	var text string
	if action.TemplateCode != "" {
		resolved, err := p.assets.Resolve(action.TemplateCode, vars)
		if err != nil {
			return fmt.Errorf("resolve template %q: %w", action.TemplateCode, err)
		}
		text = resolved.Text
	} else {
		text = assets.Substitute(action.Literal, vars)
	}

	if err := p.sendWithRetry(ctx, func() (string, error) {
		return p.sender.SendText(ctx, to, text)
	}); err != nil {
		return err
	}

	if _, err := p.store.AppendMessage(ctx, thread.ID, models.RoleAssistant, text, false); err != nil {
		return fmt.Errorf("append text message: %w", err)
	}
	return nil
}

// sendWithRetry calls fn; on a transient failure it waits retryBackoff and
// tries once more. A permanent failure, or a second transient failure,
// propagates to the caller as-is (§4.8 step 4, §7 taxonomy).
func (p *Processor) sendWithRetry(ctx context.Context, fn func() (string, error)) error {
	if _, err := fn(); err != nil {
		if !sender.IsTransient(err) {
			return err
		}
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if _, err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) executeSchedule(ctx context.Context, thread *models.Thread, action models.Action) error {
	fireAt := time.Now().Add(action.ScheduleDelay)
	payload := models.SchedulePayload{Actions: action.ScheduledActions}
	if _, err := p.store.ScheduleJob(ctx, thread.ID, action.ScheduleKey, fireAt, string(models.ActionSchedule), payload); err != nil {
		return fmt.Errorf("schedule job %q: %w", action.ScheduleKey, err)
	}
	return nil
}

// abort records a system-message describing where the action list stopped
// and returns ErrAborted. Stage is deliberately left untouched by the
// caller: abort is only ever invoked before the pending-stage commit.
func (p *Processor) abort(ctx context.Context, thread *models.Thread, actions models.ActionList, failedIndex int, cause error) error {
	msg := fmt.Sprintf("action list aborted at step %d/%d: %v", failedIndex+1, len(actions), cause)
	if _, err := p.store.AppendMessage(ctx, thread.ID, models.RoleSystem, msg, false); err != nil {
		slog.Error("response: failed to record abort system-message", "thread_id", thread.ID, "error", err)
	}
	slog.Warn("response: action list aborted", "thread_id", thread.ID, "step", failedIndex, "error", cause)
	return fmt.Errorf("%w: %v", ErrAborted, cause)
}

// commitStage persists the terminating set_stage mutation and the
// system-message recording it in one transaction, so no observer ever sees
// a stage advance without the corresponding audit-trail entry (§4.8, §8).
func (p *Processor) commitStage(ctx context.Context, thread *models.Thread, stage string) error {
	return p.store.RunInTx(ctx, func(tx *store.TxStore) error {
		msg := fmt.Sprintf("stage changed: %s -> %s", thread.LeadStage, stage)
		if _, err := tx.AppendMessage(ctx, thread.ID, models.RoleSystem, msg, false); err != nil {
			return fmt.Errorf("append stage-change message: %w", err)
		}
		if _, err := tx.UpdateThreadMetaAndStage(ctx, thread.ID, stage, nil); err != nil {
			return fmt.Errorf("update thread stage: %w", err)
		}
		return nil
	})
}

func mediaMarker(kind sender.MediaKind, assetID string) string {
	switch kind {
	case sender.MediaAudio:
		return fmt.Sprintf("[Audio sent: %s]", assetID)
	default:
		return fmt.Sprintf("[Image sent: %s]", assetID)
	}
}
