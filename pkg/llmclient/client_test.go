package llmclient

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestClient_Generate_PlainText(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "Sure, I can help with that."}},
	}}
	c := newClientWithMessages(stub, "claude-3-5-sonnet-latest", "You are a sales assistant.", 20)

	out, err := c.Generate(context.Background(), Input{
		History: []HistoryMessage{{Role: "user", Content: "what can you do?"}},
		Context: Context{Stage: "cold", FunnelID: "primary", ContactName: "Maria"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Sure, I can help with that.", out.Text)
	assert.Nil(t, out.Structured)
}

func TestClient_Generate_StructuredOutput(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: `{"response_type":"text","message":"here is your link","next_stage":"warm"}`}},
	}}
	c := newClientWithMessages(stub, "claude-3-5-sonnet-latest", "You are a sales assistant.", 20)

	out, err := c.Generate(context.Background(), Input{Context: Context{Stage: "warming"}})
	require.NoError(t, err)
	require.NotNil(t, out.Structured)
	assert.Equal(t, ResponseText, out.Structured.ResponseType)
	assert.Equal(t, "warm", out.Structured.NextStage)
}

func TestClient_Generate_MalformedStructuredOutputIsUnavailable(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: `{"response_type":"audio"}`}},
	}}
	c := newClientWithMessages(stub, "claude-3-5-sonnet-latest", "sys", 20)

	_, err := c.Generate(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrLLMUnavailable)
}

func TestClient_Generate_BackendErrorIsUnavailable(t *testing.T) {
	stub := &stubMessagesClient{err: errors.New("network blip")}
	c := newClientWithMessages(stub, "claude-3-5-sonnet-latest", "sys", 20)

	_, err := c.Generate(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrLLMUnavailable)
}

func TestClient_Generate_TruncatesHistoryToWindow(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}}}
	c := newClientWithMessages(stub, "claude-3-5-sonnet-latest", "sys", 2)

	history := []HistoryMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}
	_, err := c.Generate(context.Background(), Input{History: history})
	require.NoError(t, err)
	assert.Len(t, stub.lastParams.Messages, 2)
}
