package detect

import "github.com/salesbroker/funnelbroker/pkg/textmatch"

// Rule is one funnel-detection candidate: if any of Keywords appears in the
// first inbound message, the thread seeds into (FunnelID, StageID) tagged
// with Source.
type Rule struct {
	FunnelID string
	StageID  string
	Keywords []string
	Source   string
}

// TagRule extracts an additional tag when any of Keywords appears. Unlike
// funnel rules, tag rules are not first-match-wins: every matching rule
// contributes its tag (§4.6, "multi-match permitted").
type TagRule struct {
	Tag      string
	Keywords []string
}

// Match is the Funnel Detector's verdict for a new thread.
type Match struct {
	FunnelID       string
	InitialStageID string
	Source         string
	Tags           []string
}

// Detector is the Funnel Detector (§4.6): a pure function of its
// configuration and the first inbound text. Campaign rules are tried
// before product rules; if neither matches, Default is used. Built once at
// startup from the loaded FunnelDefinition and never mutated.
type Detector struct {
	campaigns []Rule
	products  []Rule
	def       Rule
	tags      []TagRule
}

// NewDetector builds a Detector from funnel-definition configuration.
// campaigns and products are tried in the given order; the first match in
// each tier wins over any later rule in the same tier.
func NewDetector(campaigns, products []Rule, def Rule, tags []TagRule) *Detector {
	return &Detector{campaigns: campaigns, products: products, def: def, tags: tags}
}

// Detect classifies the first inbound message of a new thread. Priority:
// campaign keywords, then product-name keywords, then the default funnel
// (§4.6). Re-running on the same text always returns the same Match.
func (d *Detector) Detect(firstText string) Match {
	if r, ok := firstMatch(d.campaigns, firstText); ok {
		return d.buildMatch(r, firstText)
	}
	if r, ok := firstMatch(d.products, firstText); ok {
		return d.buildMatch(r, firstText)
	}
	return d.buildMatch(d.def, firstText)
}

func (d *Detector) buildMatch(r Rule, firstText string) Match {
	return Match{
		FunnelID:       r.FunnelID,
		InitialStageID: r.StageID,
		Source:         r.Source,
		Tags:           d.extractTags(firstText),
	}
}

func (d *Detector) extractTags(text string) []string {
	var tags []string
	for _, tr := range d.tags {
		if anyKeywordMatches(tr.Keywords, text) {
			tags = append(tags, tr.Tag)
		}
	}
	return tags
}

func firstMatch(rules []Rule, text string) (Rule, bool) {
	for _, r := range rules {
		if anyKeywordMatches(r.Keywords, text) {
			return r, true
		}
	}
	return Rule{}, false
}

func anyKeywordMatches(keywords []string, text string) bool {
	for _, kw := range keywords {
		if textmatch.ContainsWord(text, kw) {
			return true
		}
	}
	return false
}
