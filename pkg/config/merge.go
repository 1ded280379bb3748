package config

// mergeFunnels merges built-in and user-defined funnels. A user-defined
// funnel overrides the built-in funnel with the same id wholesale (not
// field-by-field) — a funnel's stages and triggers form one coherent state
// machine, so a partial merge would risk silently stitching together an
// incoherent one.
func mergeFunnels(builtinFunnels map[string]FunnelConfig, userFunnels map[string]FunnelConfig) map[string]*FunnelConfig {
	result := make(map[string]*FunnelConfig, len(builtinFunnels)+len(userFunnels))

	for id, funnel := range builtinFunnels {
		funnelCopy := funnel
		result[id] = &funnelCopy
	}

	for id, funnel := range userFunnels {
		funnelCopy := funnel
		result[id] = &funnelCopy
	}

	return result
}

// mergeDetection merges built-in and user-supplied Funnel Detector
// configuration. A present user DetectionConfig replaces the built-in one
// wholesale, since campaign/product priority order is meaningful across
// the whole rule set.
func mergeDetection(builtin DetectionConfig, user *DetectionConfig) DetectionConfig {
	if user == nil {
		return builtin
	}
	return *user
}

// mergeMaskingPatterns merges built-in and user-defined masking patterns.
// User-defined patterns override built-in patterns with the same name.
func mergeMaskingPatterns(builtinPatterns map[string]MaskingPattern, userPatterns map[string]MaskingPattern) map[string]MaskingPattern {
	result := make(map[string]MaskingPattern, len(builtinPatterns)+len(userPatterns))
	for name, p := range builtinPatterns {
		result[name] = p
	}
	for name, p := range userPatterns {
		result[name] = p
	}
	return result
}
