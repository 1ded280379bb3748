package dispatch

import (
	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/detect"
)

// BuildDetector adapts a loaded config.DetectionConfig into a
// detect.Detector, keeping the Funnel Detector's own package free of any
// dependency on the YAML configuration shape.
func BuildDetector(cfg config.DetectionConfig) *detect.Detector {
	return detect.NewDetector(
		convertRules(cfg.Campaigns),
		convertRules(cfg.Products),
		convertRule(cfg.Default),
		convertTagRules(cfg.Tags),
	)
}

func convertRules(rules []config.DetectionRuleConfig) []detect.Rule {
	out := make([]detect.Rule, len(rules))
	for i, r := range rules {
		out[i] = convertRule(r)
	}
	return out
}

func convertRule(r config.DetectionRuleConfig) detect.Rule {
	return detect.Rule{
		FunnelID: r.FunnelID,
		StageID:  r.StageID,
		Keywords: r.Keywords,
		Source:   r.Source,
	}
}

func convertTagRules(rules []config.TagRuleConfig) []detect.TagRule {
	out := make([]detect.TagRule, len(rules))
	for i, r := range rules {
		out[i] = detect.TagRule{Tag: r.Tag, Keywords: r.Keywords}
	}
	return out
}
