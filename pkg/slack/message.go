package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

// BuildHumanTakeoverMessage creates Block Kit blocks for a human-takeover
// notification: a thread has had automated replies disabled and now needs an
// operator to carry the conversation.
func BuildHumanTakeoverMessage(input HumanTakeoverInput, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":raised_hand: *Human takeover requested*\nThread `%s` (%s) needs an operator.",
		input.ThreadID, input.Channel)
	if input.Reason != "" {
		text += fmt.Sprintf("\n*Reason:* %s", truncateForSlack(input.Reason))
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
	if url := threadURL(input.ThreadID, dashboardURL); url != "" {
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Thread", false, false))
		btn.URL = url
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}
	return blocks
}

// BuildStageReachedMessage creates Block Kit blocks for a lead reaching the
// `hot` or `customer` stage.
func BuildStageReachedMessage(input StageReachedInput, dashboardURL string) []goslack.Block {
	emoji := ":fire:"
	if input.Stage == "customer" {
		emoji = ":tada:"
	}
	text := fmt.Sprintf("%s *Lead reached stage `%s`*\nThread `%s` (%s), funnel `%s`.",
		emoji, input.Stage, input.ThreadID, input.Channel, input.FunnelID)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
	if url := threadURL(input.ThreadID, dashboardURL); url != "" {
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Thread", false, false))
		btn.URL = url
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}
	return blocks
}

func threadURL(threadID, dashboardURL string) string {
	if dashboardURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/threads/%s", dashboardURL, threadID)
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
