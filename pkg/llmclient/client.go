// Package llmclient implements the LLM Client (§4.4): given a bounded
// conversation history and structured context, it asks the opaque LLM
// backend for either a free-form reply or a structured action
// descriptor. Modeled on the Anthropic-adapter shape used across the
// retrieved pack (a thin interface wrapping *anthropic.MessageService so
// a mock can stand in for tests), backed concretely by
// github.com/anthropics/anthropic-sdk-go.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrLLMUnavailable covers timeout, malformed output, or a backend error —
// never a trigger (§4.4, §7). The dispatcher records it as a system-message
// and sends the contact nothing: no fallback text is sent and the stage is
// left unchanged.
var ErrLLMUnavailable = errors.New("llmclient: backend unavailable")

// messagesClient captures the subset of the Anthropic SDK used here, so a
// mock can be substituted in tests without a live API key.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Context is the structured context accompanying every request: current
// stage, funnel id, and contact name, per §4.4.
type Context struct {
	Stage       string
	FunnelID    string
	ContactName string
}

// HistoryMessage is one bounded-window conversation turn fed to the model.
type HistoryMessage struct {
	Role    string // "user", "assistant", or "system"
	Content string
}

// Input is the full request to Generate.
type Input struct {
	History []HistoryMessage
	Context Context
}

// Client is the concrete LLM Client backend.
type Client struct {
	msg           messagesClient
	model         string
	systemPrompt  string
	historyWindow int
	maxTokens     int64
	timeout       time.Duration
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithMaxTokens overrides the default completion token cap.
func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTimeout overrides the default per-call timeout (§4.10: LLM ≤ 30s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient builds a Client backed by the real Anthropic API.
func NewClient(apiKey, model, systemPrompt string, historyWindow int, opts ...Option) *Client {
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return newClient(&ac.Messages, model, systemPrompt, historyWindow, opts...)
}

// newClientWithMessages builds a Client over an injected messagesClient,
// used by tests to avoid any network call.
func newClientWithMessages(msg messagesClient, model, systemPrompt string, historyWindow int, opts ...Option) *Client {
	return newClient(msg, model, systemPrompt, historyWindow, opts...)
}

func newClient(msg messagesClient, model, systemPrompt string, historyWindow int, opts ...Option) *Client {
	c := &Client{
		msg:           msg,
		model:         model,
		systemPrompt:  systemPrompt,
		historyWindow: historyWindow,
		maxTokens:     1024,
		timeout:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate calls the LLM backend with the bounded history and structured
// context and returns either a free-text reply or a parsed structured
// action descriptor. Failures of any kind collapse to ErrLLMUnavailable.
func (c *Client) Generate(ctx context.Context, input Input) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := c.buildParams(input)
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}

	text := extractText(msg)
	out, err := ParseOutput(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}
	return out, nil
}

func (c *Client) buildParams(input Input) sdk.MessageNewParams {
	history := input.History
	if c.historyWindow > 0 && len(history) > c.historyWindow {
		history = history[len(history)-c.historyWindow:]
	}

	return sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    buildSystemBlocks(c.systemPrompt, input.Context),
		Messages:  encodeHistory(history),
	}
}

func extractText(msg *sdk.Message) string {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}
