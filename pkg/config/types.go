package config

// Shared YAML-facing types for the funnel definition configuration (§3
// FunnelDefinition, §4.7 Trigger Engine) plus the PII-masking pattern
// registry shape consumed by pkg/masking.

// MaskingConfig defines which PII patterns a log call should apply before
// phone numbers / e-mail addresses reach a slog line.
type MaskingConfig struct {
	Enabled        bool             `yaml:"enabled"`
	PatternGroups  []string         `yaml:"pattern_groups,omitempty"`
	Patterns       []string         `yaml:"patterns,omitempty"`
	CustomPatterns []MaskingPattern `yaml:"custom_patterns,omitempty"`
}

// MaskingPattern defines a regex-based masking pattern.
type MaskingPattern struct {
	Pattern     string `yaml:"pattern" validate:"required"`
	Replacement string `yaml:"replacement" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// StageConfig is one node in a funnel's stage state machine.
type StageConfig struct {
	ID    string `yaml:"id" validate:"required"`
	Order int    `yaml:"order"`
	Phase string `yaml:"phase,omitempty"`
}

// KeywordSpecConfig is a trigger's keyword-matching rule: required-any (OR),
// required-all (AND), forbidden (NOT) — all case-/diacritic-insensitive;
// single words match on word boundaries, multi-word phrases as plain
// substrings (§4.7).
type KeywordSpecConfig struct {
	Any       []string `yaml:"any,omitempty"`
	All       []string `yaml:"all,omitempty"`
	Forbidden []string `yaml:"forbidden,omitempty"`
}

// ActionConfig is the YAML shape of one step of an action list (§4.7's
// Action spec). Only the fields relevant to Kind are populated.
type ActionConfig struct {
	Kind string `yaml:"kind" validate:"required"`

	AssetID  string   `yaml:"asset_id,omitempty"`
	AssetIDs []string `yaml:"asset_ids,omitempty"`

	Literal      string `yaml:"literal,omitempty"`
	TemplateCode string `yaml:"template_code,omitempty"`

	StageID string `yaml:"stage_id,omitempty"`

	ScheduleKey      string         `yaml:"schedule_key,omitempty"`
	ScheduleDelay    string         `yaml:"schedule_delay,omitempty"` // parsed via time.ParseDuration
	ScheduledActions []ActionConfig `yaml:"scheduled_actions,omitempty"`

	CancelKeyPrefix string `yaml:"cancel_key_prefix,omitempty"`
}

// TriggerConfig is one (allowed_prior_stages × keyword_spec) → action_spec
// rule. Triggers are tried in declaration order; the first whose
// AllowedPriorStages contains the thread's current stage and whose
// KeywordSpec matches wins (§4.7).
type TriggerConfig struct {
	Name               string            `yaml:"name,omitempty"`
	AllowedPriorStages []string          `yaml:"allowed_prior_stages" validate:"required"`
	Keywords           KeywordSpecConfig `yaml:"keywords"`
	Actions            []ActionConfig    `yaml:"actions" validate:"required"`
}

// FunnelConfig is one funnel: an ordered set of stages plus the triggers
// that move a thread between them.
type FunnelConfig struct {
	ID       string          `yaml:"id" validate:"required"`
	Type     string          `yaml:"type,omitempty"` // "primary", "campaign", "product"
	Stages   []StageConfig   `yaml:"stages" validate:"required"`
	Triggers []TriggerConfig `yaml:"triggers"`
}

// StageIDs returns the funnel's declared stage ids, in declaration order.
func (f FunnelConfig) StageIDs() []string {
	ids := make([]string, len(f.Stages))
	for i, s := range f.Stages {
		ids[i] = s.ID
	}
	return ids
}

// HasStage reports whether id is one of the funnel's declared stages.
func (f FunnelConfig) HasStage(id string) bool {
	for _, s := range f.Stages {
		if s.ID == id {
			return true
		}
	}
	return false
}

// LegalSuccessor reports whether target is a declared set_stage target of
// some trigger whose AllowedPriorStages includes from — i.e. whether an
// LLM-proposed next_stage is a legitimate transition out of from per this
// funnel's own state machine (§4.8). Only triggers' immediate actions are
// considered, not actions nested inside a schedule, since those fire later
// and are not an immediate successor of the current match.
func (f FunnelConfig) LegalSuccessor(from, target string) bool {
	for _, trig := range f.Triggers {
		if !containsString(trig.AllowedPriorStages, from) {
			continue
		}
		for _, a := range trig.Actions {
			if a.Kind == "set_stage" && a.StageID == target {
				return true
			}
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// DetectionRuleConfig is one Funnel Detector candidate (§4.6): if any
// Keywords appears in the first inbound message, the thread seeds into
// (FunnelID, StageID).
type DetectionRuleConfig struct {
	FunnelID string   `yaml:"funnel_id" validate:"required"`
	StageID  string   `yaml:"stage_id" validate:"required"`
	Keywords []string `yaml:"keywords,omitempty"`
	Source   string   `yaml:"source,omitempty"`
}

// TagRuleConfig extracts an additional tag when any Keywords appears;
// multiple tag rules may match the same text (§4.6).
type TagRuleConfig struct {
	Tag      string   `yaml:"tag" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required"`
}

// DetectionConfig configures the Funnel Detector: campaign rules are tried
// before product rules; Default is used if neither tier matches.
type DetectionConfig struct {
	Campaigns []DetectionRuleConfig `yaml:"campaigns,omitempty"`
	Products  []DetectionRuleConfig `yaml:"products,omitempty"`
	Default   DetectionRuleConfig   `yaml:"default" validate:"required"`
	Tags      []TagRuleConfig       `yaml:"tags,omitempty"`
}

// LLMConfig configures the LLM Client backend (§4.4, §6).
type LLMConfig struct {
	Model         string `yaml:"model"`
	APIKeyEnv     string `yaml:"api_key_env,omitempty"`
	HistoryWindow int    `yaml:"history_window"`
	SystemPrompt  string `yaml:"system_prompt,omitempty"`
	RateLimitRPS  int    `yaml:"rate_limit_rps,omitempty"`
}

// SlackYAMLConfig configures best-effort operator notifications
// (SUPPLEMENTED FEATURES: human-takeover / hot-lead alerts).
type SlackYAMLConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// SlackConfig is the resolved (defaults-applied) Slack configuration.
type SlackConfig struct {
	Enabled  bool
	TokenEnv string
	Channel  string
}
