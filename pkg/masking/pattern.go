package masking

import (
	"log/slog"
	"regexp"

	"github.com/salesbroker/funnelbroker/pkg/config"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// compilePatterns compiles every named pattern in patterns. Invalid regexes
// are logged and skipped rather than failing service construction — a typo
// in one operator-supplied pattern should not take PII redaction down
// entirely for the rest.
func compilePatterns(patterns map[string]config.MaskingPattern) map[string]*CompiledPattern {
	compiled := make(map[string]*CompiledPattern, len(patterns))
	for name, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("masking: failed to compile pattern, skipping", "pattern", name, "error", err)
			continue
		}
		compiled[name] = &CompiledPattern{Name: name, Regex: re, Replacement: p.Replacement}
	}
	return compiled
}
