package slack

import (
	"strings"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHumanTakeoverMessage(t *testing.T) {
	input := HumanTakeoverInput{
		ThreadID: "thread-123",
		Channel:  "whatsapp",
		Reason:   "customer asked for a human",
	}
	blocks := BuildHumanTakeoverMessage(input, "https://ops.example.com")

	require.Len(t, blocks, 2)
	section, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, ":raised_hand:")
	assert.Contains(t, section.Text.Text, "thread-123")
	assert.Contains(t, section.Text.Text, "customer asked for a human")

	action := blocks[1].(*goslack.ActionBlock)
	btn := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	assert.Contains(t, btn.URL, "https://ops.example.com/threads/thread-123")
}

func TestBuildHumanTakeoverMessage_NoDashboardURL(t *testing.T) {
	blocks := BuildHumanTakeoverMessage(HumanTakeoverInput{ThreadID: "t1", Channel: "sms"}, "")
	require.Len(t, blocks, 1, "no button block when there's no dashboard URL to link to")
}

func TestBuildStageReachedMessage_Hot(t *testing.T) {
	input := StageReachedInput{ThreadID: "thread-1", Channel: "whatsapp", FunnelID: "course-launch", Stage: "hot"}
	blocks := BuildStageReachedMessage(input, "https://ops.example.com")

	section := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, section.Text.Text, ":fire:")
	assert.Contains(t, section.Text.Text, "`hot`")
	assert.Contains(t, section.Text.Text, "course-launch")
}

func TestBuildStageReachedMessage_Customer(t *testing.T) {
	input := StageReachedInput{ThreadID: "thread-2", Channel: "whatsapp", FunnelID: "course-launch", Stage: "customer"}
	blocks := BuildStageReachedMessage(input, "https://ops.example.com")

	section := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, section.Text.Text, ":tada:")
	assert.Contains(t, section.Text.Text, "`customer`")
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateForSlack("hello"))
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength)
		assert.Equal(t, text, truncateForSlack(text))
	})

	t.Run("over limit truncated", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength+100)
		result := truncateForSlack(text)
		assert.True(t, len(result) < len(text))
		assert.Contains(t, result, "truncated")
	})
}
