package config

import (
	"fmt"
	"time"
)

// Validator validates configuration comprehensively with clear error messages.
type Validator struct {
	cfg      *Config
	assetIDs func(string) bool
}

// NewValidator creates a validator for the given configuration. assetIDs
// resolves whether an asset id is known to the Asset Library — injected as
// a callback (rather than importing pkg/assets directly) so pkg/config does
// not depend on pkg/assets.
func NewValidator(cfg *Config, assetIDs func(string) bool) *Validator {
	return &Validator{cfg: cfg, assetIDs: assetIDs}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateFunnels(); err != nil {
		return fmt.Errorf("funnel validation failed: %w", err)
	}

	if err := v.validateDetection(); err != nil {
		return fmt.Errorf("detection validation failed: %w", err)
	}

	if err := v.validateScheduler(); err != nil {
		return fmt.Errorf("scheduler validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}

	return nil
}

// validateFunnels checks every funnel's internal coherence: stages are
// non-empty and uniquely named, every trigger only references declared
// stages, no trigger comes after a catch-all trigger for a stage they
// share, every set_stage/schedule action resolves, and every declared
// stage other than the first one and post_purchase stages is the target of
// some set_stage action. Two keyword triggers whose keyword lists overlap
// are not detected; Match takes the first declared one.
func (v *Validator) validateFunnels() error {
	for id, funnel := range v.cfg.Funnels {
		if err := v.validateFunnel(id, funnel); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateFunnel(id string, f *FunnelConfig) error {
	if len(f.Stages) == 0 {
		return NewValidationError("funnel", id, "stages", fmt.Errorf("at least one stage required"))
	}

	seen := make(map[string]bool, len(f.Stages))
	for _, s := range f.Stages {
		if s.ID == "" {
			return NewValidationError("funnel", id, "stages", fmt.Errorf("stage id required"))
		}
		if seen[s.ID] {
			return NewValidationError("funnel", id, "stages", fmt.Errorf("duplicate stage id '%s'", s.ID))
		}
		seen[s.ID] = true
	}

	// Ordering check: a trigger with an empty KeywordSpec is a deliberate
	// catch-all and must be the LAST trigger tried for any stage it allows,
	// since nothing after it could ever be reached; a later trigger sharing
	// one of its stages is a startup-fatal error. This is the only overlap
	// check: two keyword triggers whose keyword lists could both match the
	// same text are both accepted.
	catchAllSeen := make(map[string]string) // stage id -> trigger name that catches all

	for ti, trig := range f.Triggers {
		if len(trig.AllowedPriorStages) == 0 {
			return NewValidationError("trigger", triggerRef(id, trig.Name, ti), "allowed_prior_stages", fmt.Errorf("at least one stage required"))
		}

		for _, stageID := range trig.AllowedPriorStages {
			if !f.HasStage(stageID) {
				return NewValidationError("trigger", triggerRef(id, trig.Name, ti), "allowed_prior_stages",
					fmt.Errorf("stage '%s' is not declared by funnel '%s'", stageID, id))
			}

			if catchAll, ok := catchAllSeen[stageID]; ok {
				return NewValidationError("trigger", triggerRef(id, trig.Name, ti), "keywords",
					fmt.Errorf("unreachable: trigger '%s' already catches all inbound text for stage '%s'", catchAll, stageID))
			}
			if isCatchAllKeywordSpec(trig.Keywords) {
				catchAllSeen[stageID] = trig.Name
			}
		}

		if len(trig.Actions) == 0 {
			return NewValidationError("trigger", triggerRef(id, trig.Name, ti), "actions", fmt.Errorf("at least one action required"))
		}

		for ai, action := range trig.Actions {
			if err := v.validateAction(id, trig.Name, ai, action, f); err != nil {
				return err
			}
		}
	}

	return v.validateReachability(id, f)
}

// validateAction checks one action's cross-references.
func (v *Validator) validateAction(funnelID, triggerName string, actionIndex int, a ActionConfig, f *FunnelConfig) error {
	ref := fmt.Sprintf("funnel '%s' trigger '%s' action[%d]", funnelID, triggerName, actionIndex)

	switch a.Kind {
	case "send_audio", "send_image":
		if a.AssetID == "" {
			return fmt.Errorf("%s: asset_id required for kind '%s'", ref, a.Kind)
		}
		if v.assetIDs != nil && !v.assetIDs(a.AssetID) {
			return fmt.Errorf("%s: asset_id '%s' not found", ref, a.AssetID)
		}
	case "send_image_sequence":
		if len(a.AssetIDs) == 0 {
			return fmt.Errorf("%s: asset_ids required for kind 'send_image_sequence'", ref)
		}
		if v.assetIDs != nil {
			for _, assetID := range a.AssetIDs {
				if !v.assetIDs(assetID) {
					return fmt.Errorf("%s: asset_id '%s' not found", ref, assetID)
				}
			}
		}
	case "send_text":
		if a.Literal == "" && a.TemplateCode == "" {
			return fmt.Errorf("%s: literal or template_code required for kind 'send_text'", ref)
		}
	case "set_stage":
		if a.StageID == "" {
			return fmt.Errorf("%s: stage_id required for kind 'set_stage'", ref)
		}
		if !f.HasStage(a.StageID) {
			return fmt.Errorf("%s: stage_id '%s' is not declared by funnel '%s'", ref, a.StageID, funnelID)
		}
	case "schedule":
		if a.ScheduleKey == "" {
			return fmt.Errorf("%s: schedule_key required for kind 'schedule'", ref)
		}
		if _, err := time.ParseDuration(a.ScheduleDelay); err != nil {
			return fmt.Errorf("%s: schedule_delay '%s' is not a valid duration: %w", ref, a.ScheduleDelay, err)
		}
		if len(a.ScheduledActions) == 0 {
			return fmt.Errorf("%s: scheduled_actions required for kind 'schedule'", ref)
		}
		for i, sub := range a.ScheduledActions {
			if err := v.validateAction(funnelID, triggerName+"."+a.ScheduleKey, i, sub, f); err != nil {
				return err
			}
		}
	case "cancel":
		if a.CancelKeyPrefix == "" {
			return fmt.Errorf("%s: cancel_key_prefix required for kind 'cancel'", ref)
		}
	default:
		return fmt.Errorf("%s: unknown action kind '%s'", ref, a.Kind)
	}

	return nil
}

// validateReachability checks that every declared stage, other than the
// entry stage (declaration order 0) and "post_purchase" phase stages, is
// named as a set_stage target by at least one trigger (directly or inside
// a scheduled action) somewhere in the funnel. "post_purchase" stages
// (e.g. "customer") are reached exogenously, by the billing webhook path
// through the Response Processor rather than by any configured trigger
// (§8 scenario 5), so the Trigger Engine's config never names them as a
// set_stage target and they're exempted here.
func (v *Validator) validateReachability(funnelID string, f *FunnelConfig) error {
	reachable := make(map[string]bool, len(f.Stages))
	if len(f.Stages) > 0 {
		reachable[f.Stages[0].ID] = true
	}

	for _, trig := range f.Triggers {
		collectStageTargets(trig.Actions, reachable)
	}

	for _, s := range f.Stages {
		if s.Phase == "post_purchase" {
			continue
		}
		if !reachable[s.ID] {
			return NewValidationError("funnel", funnelID, "stages",
				fmt.Errorf("stage '%s' is unreachable: no trigger ever sets it", s.ID))
		}
	}
	return nil
}

func collectStageTargets(actions []ActionConfig, into map[string]bool) {
	for _, a := range actions {
		if a.Kind == "set_stage" && a.StageID != "" {
			into[a.StageID] = true
		}
		if len(a.ScheduledActions) > 0 {
			collectStageTargets(a.ScheduledActions, into)
		}
	}
}

// isCatchAllKeywordSpec reports whether a KeywordSpec matches every inbound
// text (i.e. has no Any/All requirement, so only Forbidden could exclude
// anything — and an empty Forbidden excludes nothing).
func isCatchAllKeywordSpec(k KeywordSpecConfig) bool {
	return len(k.Any) == 0 && len(k.All) == 0
}

func triggerRef(funnelID, name string, index int) string {
	if name != "" {
		return fmt.Sprintf("%s/%s", funnelID, name)
	}
	return fmt.Sprintf("%s/trigger[%d]", funnelID, index)
}

// validateDetection checks the Funnel Detector configuration: every rule
// must reference a declared funnel and one of its declared stages.
func (v *Validator) validateDetection() error {
	d := v.cfg.Detection

	check := func(component string, rule DetectionRuleConfig) error {
		funnel, ok := v.cfg.Funnels[rule.FunnelID]
		if !ok {
			return NewValidationError(component, rule.FunnelID, "funnel_id", fmt.Errorf("funnel not found"))
		}
		if !funnel.HasStage(rule.StageID) {
			return NewValidationError(component, rule.FunnelID, "stage_id", fmt.Errorf("stage '%s' not declared", rule.StageID))
		}
		return nil
	}

	for _, rule := range d.Campaigns {
		if err := check("detection.campaigns", rule); err != nil {
			return err
		}
	}
	for _, rule := range d.Products {
		if err := check("detection.products", rule); err != nil {
			return err
		}
	}
	if err := check("detection.default", d.Default); err != nil {
		return err
	}
	for i, tag := range d.Tags {
		if tag.Tag == "" {
			return NewValidationError("detection.tags", fmt.Sprintf("[%d]", i), "tag", fmt.Errorf("tag required"))
		}
		if len(tag.Keywords) == 0 {
			return NewValidationError("detection.tags", tag.Tag, "keywords", fmt.Errorf("at least one keyword required"))
		}
	}

	return nil
}

func (v *Validator) validateScheduler() error {
	s := v.cfg.Scheduler
	if s == nil {
		return fmt.Errorf("scheduler configuration is nil")
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", s.TickInterval)
	}
	if s.JobLease <= 0 {
		return fmt.Errorf("job_lease must be positive, got %v", s.JobLease)
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", s.BatchSize)
	}
	if s.CartRecoveryDelay <= 0 {
		return fmt.Errorf("cart_recovery_delay must be positive, got %v", s.CartRecoveryDelay)
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.ScheduledJobRetentionDays < 1 {
		return fmt.Errorf("scheduled_job_retention_days must be at least 1, got %d", r.ScheduledJobRetentionDays)
	}
	if r.WebhookDedupTTL <= 0 {
		return fmt.Errorf("webhook_dedup_ttl must be positive, got %v", r.WebhookDedupTTL)
	}
	if r.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", r.CleanupInterval)
	}
	return nil
}

func (v *Validator) validateSlack() error {
	s := v.cfg.Slack
	if s == nil || !s.Enabled {
		return nil
	}
	if s.TokenEnv == "" {
		return fmt.Errorf("slack.token_env is required when Slack is enabled")
	}
	return nil
}
