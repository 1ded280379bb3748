package llmclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResponseType tags the kind of structured action descriptor the LLM
// returned, per §4.4's discriminated-union Design Note.
type ResponseType string

const (
	ResponseAudio    ResponseType = "audio"
	ResponseTemplate ResponseType = "template"
	ResponseText     ResponseType = "text"
)

// StructuredOutput is the LLM's structured action descriptor.
type StructuredOutput struct {
	ResponseType ResponseType `json:"response_type"`
	AssetID      string       `json:"asset_id,omitempty"`
	TemplateCode string       `json:"template_code,omitempty"`
	Message      string       `json:"message,omitempty"`
	NextStage    string       `json:"next_stage,omitempty"`
}

// Output is the result of Generate: exactly one of Text or Structured is set.
type Output struct {
	Text       string
	Structured *StructuredOutput
}

// ParseOutput defensively parses the model's raw text: if it contains a
// JSON object, that object takes precedence over any surrounding prose
// (§4.4). A JSON object that parses but fails the per-response_type
// required-field check is rejected outright rather than silently
// degraded to free text — a strict parser, per the Design Notes'
// "reject partial/ambiguous forms" guidance.
func ParseOutput(text string) (*Output, error) {
	candidate, ok := extractJSONObject(text)
	if !ok {
		return &Output{Text: strings.TrimSpace(text)}, nil
	}

	var so StructuredOutput
	if err := json.Unmarshal([]byte(candidate), &so); err != nil {
		// Not actually structured output — a stray brace in free-form
		// prose. Fall back to the whole string as plain text.
		return &Output{Text: strings.TrimSpace(text)}, nil
	}

	if err := validateStructuredOutput(&so); err != nil {
		return nil, fmt.Errorf("malformed structured output: %w", err)
	}
	return &Output{Structured: &so}, nil
}

func validateStructuredOutput(so *StructuredOutput) error {
	switch so.ResponseType {
	case ResponseAudio:
		if so.AssetID == "" {
			return fmt.Errorf("response_type=%q requires asset_id", so.ResponseType)
		}
	case ResponseTemplate:
		if so.TemplateCode == "" {
			return fmt.Errorf("response_type=%q requires template_code", so.ResponseType)
		}
	case ResponseText:
		if so.Message == "" {
			return fmt.Errorf("response_type=%q requires message", so.ResponseType)
		}
	default:
		return fmt.Errorf("unknown response_type %q", so.ResponseType)
	}
	return nil
}

// extractJSONObject finds the first balanced {...} substring in text,
// respecting quoted strings so braces inside string values don't
// prematurely close the object.
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
			// inside a string, braces don't count
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
