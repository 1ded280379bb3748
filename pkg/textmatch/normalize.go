// Package textmatch holds the case- and diacritic-insensitive keyword
// matching primitives shared by the Support Detector (§4.5), Funnel
// Detector (§4.6) and Trigger Engine (§4.7) — all three match a curated
// lexicon against inbound text under the same normalization rules, so
// rather than triplicate it, it lives in one small shared package.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases text and strips combining diacritical marks, so
// "cancelár", "CANCELAR" and "cancelar" all normalize identically.
func Normalize(text string) string {
	folded := strings.ToLower(text)
	out, _, err := transform.String(stripDiacritics, folded)
	if err != nil {
		return folded
	}
	return out
}

// ContainsWord reports whether normalized phrase occurs in normalized text
// on word boundaries. Multi-word phrases match as substrings (§4.7), so a
// phrase containing internal spaces is checked verbatim rather than
// token-by-token; single-word phrases are checked for boundary alignment so
// "plan" doesn't match inside "planning".
func ContainsWord(text, phrase string) bool {
	normText := Normalize(text)
	normPhrase := Normalize(phrase)
	if normPhrase == "" {
		return false
	}
	if strings.Contains(normPhrase, " ") {
		return strings.Contains(normText, normPhrase)
	}

	idx := 0
	for {
		at := strings.Index(normText[idx:], normPhrase)
		if at == -1 {
			return false
		}
		start := idx + at
		end := start + len(normPhrase)
		beforeOK := start == 0 || !isWordRune(rune(normText[start-1]))
		afterOK := end == len(normText) || !isWordRune(rune(normText[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
