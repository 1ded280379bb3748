// Package trigger implements the Trigger Engine (§4.7): the deterministic
// brain that owns each funnel's stage state machine. Given a thread's
// current funnel/stage and its inbound text, it decides whether a
// configured trigger fires and, if so, what action list to run — it never
// executes a side effect itself.
package trigger

import (
	"time"

	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/textmatch"
)

// Match is the engine's verdict: the name of the trigger that fired and
// the action list the Response Processor should execute.
type Match struct {
	TriggerName string
	Actions     models.ActionList
}

// Engine is the Trigger Engine: an immutable view over every loaded
// funnel's triggers. Built once at startup from validated configuration —
// pkg/config/validator.go has already rejected triggers placed after a
// catch-all and dangling stage/asset references, so Match itself never
// needs to return an error (§4.7: "pure, cannot fail"). Keyword triggers
// whose keyword lists overlap are not rejected; Match returns the first
// declared one that matches.
type Engine struct {
	funnels map[string]*config.FunnelConfig
}

// NewEngine builds an Engine from the funnel registry.
func NewEngine(funnels map[string]*config.FunnelConfig) *Engine {
	return &Engine{funnels: funnels}
}

// Match evaluates the thread's current funnel against inboundText.
// Triggers are tried in declaration order; the first whose
// AllowedPriorStages contains the thread's current stage and whose
// keyword spec matches wins (§4.7). Returns false if the thread's funnel
// is unknown or no trigger matches.
func (e *Engine) Match(thread *models.Thread, inboundText string) (Match, bool) {
	funnel, ok := e.funnels[thread.FunnelID()]
	if !ok {
		return Match{}, false
	}

	for _, trig := range funnel.Triggers {
		if !containsStage(trig.AllowedPriorStages, thread.LeadStage) {
			continue
		}
		if !matchesKeywordSpec(trig.Keywords, inboundText) {
			continue
		}
		return Match{
			TriggerName: trig.Name,
			Actions:     convertActions(trig.Actions),
		}, true
	}

	return Match{}, false
}

func containsStage(stages []string, stageID string) bool {
	for _, s := range stages {
		if s == stageID {
			return true
		}
	}
	return false
}

// matchesKeywordSpec implements the required-any (OR) / required-all (AND)
// / forbidden (NOT) semantics of §4.7. A spec with neither Any nor All is
// a catch-all that matches any text not excluded by Forbidden.
func matchesKeywordSpec(spec config.KeywordSpecConfig, text string) bool {
	for _, kw := range spec.Forbidden {
		if textmatch.ContainsWord(text, kw) {
			return false
		}
	}

	if len(spec.Any) > 0 {
		matched := false
		for _, kw := range spec.Any {
			if textmatch.ContainsWord(text, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, kw := range spec.All {
		if !textmatch.ContainsWord(text, kw) {
			return false
		}
	}

	return true
}

// convertActions translates a trigger's validated YAML action list into
// the runtime models.ActionList the Response Processor consumes.
func convertActions(actions []config.ActionConfig) models.ActionList {
	out := make(models.ActionList, len(actions))
	for i, a := range actions {
		out[i] = convertAction(a)
	}
	return out
}

func convertAction(a config.ActionConfig) models.Action {
	delay, _ := time.ParseDuration(a.ScheduleDelay)
	return models.Action{
		Kind:             models.ActionKind(a.Kind),
		AssetID:          a.AssetID,
		AssetIDs:         a.AssetIDs,
		Literal:          a.Literal,
		TemplateCode:     a.TemplateCode,
		StageID:          a.StageID,
		ScheduleKey:      a.ScheduleKey,
		ScheduleDelay:    delay,
		ScheduledActions: convertActions(a.ScheduledActions),
		CancelKeyPrefix:  a.CancelKeyPrefix,
	}
}
