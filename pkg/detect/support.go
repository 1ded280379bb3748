// Package detect implements the Support Detector (§4.5) and Funnel
// Detector (§4.6): two pure, side-effect-free classifiers consulted by the
// Ingress Dispatcher before any trigger or LLM logic runs.
package detect

import "github.com/salesbroker/funnelbroker/pkg/textmatch"

// supportLexicon is the curated set of support/service markers. False
// positives are acceptable — the detector fails open to human handoff
// (§4.5) — so the list favors recall over precision.
var supportLexicon = []string{
	"login", "log in", "log into", "can't log in", "cant log in",
	"password", "reset my password", "forgot my password",
	"cancel my", "cancelar", "cancel subscription", "cancelacion",
	"refund", "reembolso", "chargeback",
	"billing issue", "double charged", "charged twice",
	"account access", "locked out", "acceso a mi cuenta",
	"not working", "error", "bug", "crash", "technical issue", "doesn't work",
	"speak to a human", "talk to a person", "real person", "human agent",
	"complaint", "complaint about", "queja",
}

// IsSupport classifies text as a support/service request. Matching is
// case- and diacritic-insensitive and returns true on any single hit; there
// is no scoring or threshold.
func IsSupport(text string) bool {
	for _, marker := range supportLexicon {
		if textmatch.ContainsWord(text, marker) {
			return true
		}
	}
	return false
}
