package llmclient

import (
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/salesbroker/funnelbroker/pkg/models"
)

// buildSystemBlocks assembles the constant-per-deployment system prompt
// plus the per-request structured context (current stage, funnel id,
// contact name), adapted in miniature from the teacher's "assemble
// system prompt + structured context" prompt-builder shape.
func buildSystemBlocks(systemPrompt string, ctx Context) []sdk.TextBlockParam {
	contextBlock := fmt.Sprintf(
		"Conversation context:\n- funnel: %s\n- stage: %s\n- contact name: %s\n\n"+
			"If you intend a deterministic action (send an asset, change stage), respond with a single JSON "+
			"object of the form {\"response_type\":\"audio\"|\"template\"|\"text\",\"asset_id\":\"...\","+
			"\"template_code\":\"...\",\"message\":\"...\",\"next_stage\":\"...\"}. Otherwise reply in plain text.",
		ctx.FunnelID, ctx.Stage, ctx.ContactName,
	)
	return []sdk.TextBlockParam{
		{Text: systemPrompt},
		{Text: contextBlock},
	}
}

func encodeHistory(history []HistoryMessage) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(history))
	for _, m := range history {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case string(models.RoleUser):
			out = append(out, sdk.NewUserMessage(block))
		case string(models.RoleAssistant):
			out = append(out, sdk.NewAssistantMessage(block))
		default:
			// System-role history entries (e.g. a recorded stage-change
			// note) are surfaced to the model as assistant context rather
			// than dropped, since the Anthropic Messages API has no
			// mid-conversation system turn.
			out = append(out, sdk.NewAssistantMessage(block))
		}
	}
	return out
}
