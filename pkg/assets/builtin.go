package assets

import "strconv"

// BuiltinDefinitions returns the default asset set referenced by the
// built-in funnels (config.GetBuiltinConfig) plus the fixed assets the
// Ingress Dispatcher and billing webhook reach for directly: the support
// hand-off text (§4.5) and the post-purchase welcome text (§6). Mirrors
// the shape of config.initBuiltinFunnels: a literal, hand-maintained table
// rather than a generated one, since audio/image paths are filesystem
// facts no generator could derive.
func BuiltinDefinitions() []Definition {
	defs := []Definition{
		{ID: "welcome", Kind: KindAudio, Path: "/audio/welcome.opus"},
		{ID: "welcome_black_friday", Kind: KindAudio, Path: "/audio/welcome_black_friday.opus"},
		{ID: "pain_generic", Kind: KindAudio, Path: "/audio/pain_generic.opus"},
		{ID: "plans", Kind: KindAudio, Path: "/audio/plans.opus"},
		{ID: "recovery", Kind: KindAudio, Path: "/audio/recovery.opus"},
		{ID: "plans_description", Kind: KindText, Template: "Here's our plan, {name}: monthly or annual — {link}"},
		{ID: "checkout_monthly", Kind: KindText, Template: "Your monthly checkout link, {name}: {link}"},
		{ID: "checkout_annual", Kind: KindText, Template: "Your annual checkout link, {name}: {link}"},
		{ID: "cart_recovery_nudge", Kind: KindText, Template: "Still there, {name}? Your plan is waiting: {link}"},
		{ID: "black_friday_offer", Kind: KindText, Template: "Black Friday: 50% off for the next 48h, {name}: {link}"},
		{ID: "support_handoff", Kind: KindText, Template: "Thanks for reaching out — I'm connecting you with a teammate who can help with that."},
		{ID: "welcome_customer", Kind: KindText, Template: "Thanks for your purchase, {name}! We'll be in touch with your onboarding details."},
	}
	for i := 1; i <= 8; i++ {
		defs = append(defs, Definition{ID: symptomID(i), Kind: KindImage, Path: symptomPath(i)})
	}
	return defs
}

func symptomID(n int) string {
	return "symptom_" + strconv.Itoa(n)
}

func symptomPath(n int) string {
	return "/images/symptom_" + strconv.Itoa(n) + ".jpg"
}
