package config

import "sync"

// BuiltinConfig holds all built-in configuration data: the default funnels,
// detection rules, and PII masking patterns shipped with the broker.
// User-supplied YAML overrides these per-id (merge.go).
type BuiltinConfig struct {
	Funnels         map[string]FunnelConfig
	Detection       DetectionConfig
	MaskingPatterns map[string]MaskingPattern
	PatternGroups   map[string][]string
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration (thread-safe, lazy-initialized).
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		Funnels:         initBuiltinFunnels(),
		Detection:       initBuiltinDetection(),
		MaskingPatterns: initBuiltinMaskingPatterns(),
		PatternGroups:   initBuiltinPatternGroups(),
	}
}

// initBuiltinFunnels returns the default funnel set: the canonical primary
// funnel's stage machine (§4.7), plus one campaign funnel (black_friday)
// that the built-in campaign detection rule routes to (§4.6). No product
// funnel is built in, and the built-in product rule list is empty.
func initBuiltinFunnels() map[string]FunnelConfig {
	return map[string]FunnelConfig{
		"primary": {
			ID:   "primary",
			Type: "primary",
			Stages: []StageConfig{
				{ID: "cold", Order: 0, Phase: "awareness"},
				{ID: "warming", Order: 1, Phase: "interest"},
				{ID: "warm", Order: 2, Phase: "consideration"},
				{ID: "hot", Order: 3, Phase: "decision"},
				{ID: "cart_recovery", Order: 4, Phase: "recovery"},
				{ID: "customer", Order: 5, Phase: "post_purchase"},
			},
			Triggers: []TriggerConfig{
				{
					// Specific before general: a pain-point mention advances the
					// funnel even on a brand-new "cold" thread, so it must be
					// tried before the catch-all welcome trigger below.
					Name:               "pain_point",
					AllowedPriorStages: []string{"cold"},
					Keywords: KeywordSpecConfig{
						Any: []string{
							"pain", "hurts", "bothers me", "my belly", "stomach",
							"duele", "dolor", "me duele",
						},
					},
					Actions: []ActionConfig{
						{Kind: "send_audio", AssetID: "pain_generic"},
						{Kind: "send_image_sequence", AssetIDs: []string{
							"symptom_1", "symptom_2", "symptom_3", "symptom_4",
							"symptom_5", "symptom_6", "symptom_7", "symptom_8",
						}},
						{Kind: "send_text", Literal: "Tell me what's holding you back"},
						{Kind: "set_stage", StageID: "warming"},
					},
				},
				{
					// Catch-all: any other first message in "cold" gets the
					// welcome audio without advancing the stage.
					Name:               "welcome",
					AllowedPriorStages: []string{"cold"},
					Keywords:           KeywordSpecConfig{},
					Actions: []ActionConfig{
						{Kind: "send_audio", AssetID: "welcome"},
					},
				},
				{
					Name:               "plans_interest",
					AllowedPriorStages: []string{"warming"},
					Keywords: KeywordSpecConfig{
						Any: []string{"price", "cost", "how much", "plans", "planes", "precio", "costo"},
					},
					Actions: []ActionConfig{
						{Kind: "send_audio", AssetID: "plans"},
						{Kind: "send_text", TemplateCode: "plans_description"},
						{Kind: "set_stage", StageID: "warm"},
					},
				},
				{
					Name:               "plan_choice_monthly",
					AllowedPriorStages: []string{"warm"},
					Keywords:           KeywordSpecConfig{Any: []string{"monthly", "mensual"}},
					Actions: []ActionConfig{
						{Kind: "send_text", TemplateCode: "checkout_monthly"},
						{Kind: "set_stage", StageID: "hot"},
						{
							Kind:          "schedule",
							ScheduleKey:   "cart_recovery_30m",
							ScheduleDelay: "30m",
							ScheduledActions: []ActionConfig{
								{Kind: "send_audio", AssetID: "recovery"},
								{Kind: "send_text", TemplateCode: "cart_recovery_nudge"},
								{Kind: "set_stage", StageID: "cart_recovery"},
							},
						},
					},
				},
				{
					Name:               "plan_choice_annual",
					AllowedPriorStages: []string{"warm"},
					Keywords:           KeywordSpecConfig{Any: []string{"annual", "yearly", "anual"}},
					Actions: []ActionConfig{
						{Kind: "send_text", TemplateCode: "checkout_annual"},
						{Kind: "set_stage", StageID: "hot"},
						{
							Kind:          "schedule",
							ScheduleKey:   "cart_recovery_30m",
							ScheduleDelay: "30m",
							ScheduledActions: []ActionConfig{
								{Kind: "send_audio", AssetID: "recovery"},
								{Kind: "send_text", TemplateCode: "cart_recovery_nudge"},
								{Kind: "set_stage", StageID: "cart_recovery"},
							},
						},
					},
				},
				{
					// A contact who replies from cart_recovery is, by definition,
					// no longer silent (the dispatcher already cancelled the
					// pending recovery job per §4.9c) — route them back to "warm"
					// so the plan-choice triggers above can re-match.
					Name:               "cart_recovery_reengage",
					AllowedPriorStages: []string{"cart_recovery"},
					Keywords:           KeywordSpecConfig{},
					Actions: []ActionConfig{
						{Kind: "send_text", TemplateCode: "plans_description"},
						{Kind: "set_stage", StageID: "warm"},
					},
				},
			},
		},
		"black_friday": {
			ID:   "black_friday",
			Type: "campaign",
			Stages: []StageConfig{
				{ID: "cold", Order: 0, Phase: "awareness"},
				{ID: "warming", Order: 1, Phase: "interest"},
				{ID: "warm", Order: 2, Phase: "consideration"},
				{ID: "hot", Order: 3, Phase: "decision"},
				{ID: "cart_recovery", Order: 4, Phase: "recovery"},
				{ID: "customer", Order: 5, Phase: "post_purchase"},
			},
			Triggers: []TriggerConfig{
				{
					Name:               "welcome_campaign",
					AllowedPriorStages: []string{"cold"},
					Keywords:           KeywordSpecConfig{},
					Actions: []ActionConfig{
						{Kind: "send_audio", AssetID: "welcome_black_friday"},
						{Kind: "send_text", TemplateCode: "black_friday_offer"},
						{Kind: "set_stage", StageID: "warming"},
					},
				},
				{
					Name:               "plans_interest",
					AllowedPriorStages: []string{"warming"},
					Keywords:           KeywordSpecConfig{Any: []string{"price", "cost", "how much", "discount", "promo 50"}},
					Actions: []ActionConfig{
						{Kind: "send_text", TemplateCode: "plans_description"},
						{Kind: "set_stage", StageID: "warm"},
					},
				},
			},
		},
	}
}

// initBuiltinDetection returns the default Funnel Detector configuration
// (§4.6): campaign keywords beat product keywords beat the primary default.
func initBuiltinDetection() DetectionConfig {
	return DetectionConfig{
		Campaigns: []DetectionRuleConfig{
			{
				FunnelID: "black_friday",
				StageID:  "cold",
				Keywords: []string{"black friday", "promo 50", "black friday sale"},
				Source:   "campaign:black_friday",
			},
		},
		Products: []DetectionRuleConfig{},
		Default: DetectionRuleConfig{
			FunnelID: "primary",
			StageID:  "cold",
			Source:   "default",
		},
		Tags: []TagRuleConfig{
			{Tag: "price_sensitive", Keywords: []string{"discount", "promo", "cheap", "barato", "descuento"}},
			{Tag: "urgent", Keywords: []string{"today", "asap", "urgent", "urgente", "hoy"}},
		},
	}
}

// initBuiltinMaskingPatterns returns the built-in PII regex patterns: phone
// numbers and e-mail addresses (SUPPLEMENTED FEATURES: PII masking in logs).
func initBuiltinMaskingPatterns() map[string]MaskingPattern {
	return map[string]MaskingPattern{
		"email": {
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Replacement: `[MASKED_EMAIL]`,
			Description: "Email addresses",
		},
		"phone": {
			Pattern:     `\+?[0-9][0-9\s().-]{7,14}[0-9]`,
			Replacement: `[MASKED_PHONE]`,
			Description: "E.164-ish phone numbers",
		},
	}
}

// initBuiltinPatternGroups returns predefined groups of masking patterns.
func initBuiltinPatternGroups() map[string][]string {
	return map[string][]string{
		"pii": {"email", "phone"},
		"all": {"email", "phone"},
	}
}
