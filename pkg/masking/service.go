// Package masking redacts PII (phone numbers, e-mail addresses) from text
// before it reaches a slog line or an LLM-bound log of conversation
// content. Grounded on the teacher's pkg/masking: the same
// compiled-pattern-registry architecture (named regexes, grouped into
// pattern groups, resolved and applied in one pass), narrowed from the
// teacher's MCP-tool-result/Kubernetes-Secret masking to this domain's
// phone/e-mail redaction.
package masking

import (
	"log/slog"

	"github.com/salesbroker/funnelbroker/pkg/config"
)

// DefaultGroup is the pattern group applied by Redact. "all" is the built-in
// group of the built-in email and phone patterns
// (config.initBuiltinPatternGroups); the loader adds no operator-supplied
// pattern to it or to any other group.
const DefaultGroup = "all"

// Service applies PII redaction using a fixed set of compiled patterns
// resolved once at startup from the merged built-in + operator-configured
// pattern registry. Safe for concurrent use; holds no mutable state after
// construction.
type Service struct {
	patterns      map[string]*CompiledPattern
	patternGroups map[string][]string
}

// NewService compiles patterns and builds a Service. patterns and groups are
// normally config.Config.MaskingPatterns / config.Config.PatternGroups —
// already merged from the built-in set with any operator YAML overrides.
func NewService(patterns map[string]config.MaskingPattern, groups map[string][]string) *Service {
	s := &Service{
		patterns:      compilePatterns(patterns),
		patternGroups: groups,
	}
	slog.Info("masking: service initialized", "patterns", len(s.patterns), "groups", len(groups))
	return s
}

// Redact applies every pattern in DefaultGroup to text and returns the
// result. Unknown pattern names in the group are silently skipped (already
// logged at compile time); Redact never errors — a masking failure must
// never block the log line it's protecting.
func (s *Service) Redact(text string) string {
	return s.RedactGroup(text, DefaultGroup)
}

// RedactGroup applies every pattern named in patternGroups[group] to text.
// An unknown group returns text unchanged.
func (s *Service) RedactGroup(text, group string) string {
	names, ok := s.patternGroups[group]
	if !ok {
		return text
	}
	masked := text
	for _, name := range names {
		cp, ok := s.patterns[name]
		if !ok {
			continue
		}
		masked = cp.Regex.ReplaceAllString(masked, cp.Replacement)
	}
	return masked
}
