package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdatabase "github.com/salesbroker/funnelbroker/test/database"

	"github.com/salesbroker/funnelbroker/pkg/assets"
	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/dispatch"
	"github.com/salesbroker/funnelbroker/pkg/llmclient"
	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/response"
	"github.com/salesbroker/funnelbroker/pkg/sender"
	"github.com/salesbroker/funnelbroker/pkg/store"
	"github.com/salesbroker/funnelbroker/pkg/threadlock"
	"github.com/salesbroker/funnelbroker/pkg/trigger"
)

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendText(_ context.Context, _, body string) (string, error) {
	f.sent = append(f.sent, body)
	return "msg-id", nil
}

func (f *fakeSender) SendMedia(_ context.Context, _, url string, _ sender.MediaKind) (string, error) {
	f.sent = append(f.sent, url)
	return "msg-id", nil
}

type stubLLM struct {
	out *llmclient.Output
	err error
}

func (s *stubLLM) Generate(_ context.Context, _ llmclient.Input) (*llmclient.Output, error) {
	return s.out, s.err
}

func testFunnels() map[string]*config.FunnelConfig {
	return map[string]*config.FunnelConfig{
		"primary": {
			ID: "primary",
			Stages: []config.StageConfig{
				{ID: "cold", Order: 0},
				{ID: "warming", Order: 1},
			},
			Triggers: []config.TriggerConfig{
				{
					Name:               "pain_point",
					AllowedPriorStages: []string{"cold"},
					Keywords:           config.KeywordSpecConfig{Any: []string{"pain"}},
					Actions: []config.ActionConfig{
						{Kind: "send_audio", AssetID: "pain_generic"},
						{Kind: "set_stage", StageID: "warming"},
					},
				},
				{
					Name:               "welcome",
					AllowedPriorStages: []string{"cold"},
					Keywords:           config.KeywordSpecConfig{},
					Actions: []config.ActionConfig{
						{Kind: "send_audio", AssetID: "welcome"},
					},
				},
			},
		},
	}
}

func testDetection() config.DetectionConfig {
	return config.DetectionConfig{
		Default: config.DetectionRuleConfig{FunnelID: "primary", StageID: "cold", Source: "default"},
	}
}

func testLibrary() *assets.Library {
	return assets.New(assets.BuiltinDefinitions())
}

func setup(t *testing.T, llm dispatch.LLMClient) (*dispatch.Dispatcher, *store.Store, *fakeSender) {
	t.Helper()
	client := testdatabase.NewTestClient(t)
	st := store.New(client.DB())
	snd := &fakeSender{}
	proc := response.New(st, snd, testLibrary(), testFunnels(), "https://cdn.example.com")
	locks := threadlock.New()
	eng := trigger.NewEngine(testFunnels())
	det := dispatch.BuildDetector(testDetection())
	d := dispatch.New(st, proc, locks, eng, det, llm, "https://cdn.example.com", nil)
	return d, st, snd
}

func TestHandleInbound_NewThreadSeedsFunnelAndWelcomes(t *testing.T) {
	d, st, snd := setup(t, &stubLLM{})
	ctx := context.Background()

	err := d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230000", "hello there", "", "", time.Now())
	require.NoError(t, err)

	require.Len(t, snd.sent, 1, "catch-all welcome trigger should fire")

	contact, err := st.GetOrCreateContact(ctx, "+15551230000")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(ctx, contact.ID, "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, "primary", th.FunnelID())
	assert.Equal(t, "cold", th.LeadStage)
}

func TestHandleInbound_TriggerMatchSkipsLLM(t *testing.T) {
	d, st, snd := setup(t, &stubLLM{err: assert.AnError})
	ctx := context.Background()

	err := d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230001", "I have pain in my stomach", "", "", time.Now())
	require.NoError(t, err)

	require.Len(t, snd.sent, 1)

	contact, err := st.GetOrCreateContact(ctx, "+15551230001")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(ctx, contact.ID, "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, "warming", th.LeadStage, "pain_point trigger should have advanced the stage")
}

func TestHandleInbound_SupportTextTriggersHumanTakeover(t *testing.T) {
	d, st, snd := setup(t, &stubLLM{})
	ctx := context.Background()

	err := d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230002", "I can't log in, forgot my password", "", "", time.Now())
	require.NoError(t, err)

	require.Len(t, snd.sent, 1)

	contact, err := st.GetOrCreateContact(ctx, "+15551230002")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(ctx, contact.ID, "whatsapp")
	require.NoError(t, err)
	assert.True(t, th.HumanTakeover)
}

func TestHandleInbound_HumanTakeoverSuppressesFurtherProcessing(t *testing.T) {
	d, st, snd := setup(t, &stubLLM{})
	ctx := context.Background()

	contact, err := st.GetOrCreateContact(ctx, "+15551230003")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(ctx, contact.ID, "whatsapp")
	require.NoError(t, err)
	require.NoError(t, st.SetHumanTakeover(ctx, th.ID, true))

	err = d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230003", "anything at all", "", "", time.Now())
	require.NoError(t, err)

	assert.Empty(t, snd.sent, "no automated reply once a human has taken over")
}

func TestHandleInbound_CancelsPendingCartRecoveryOnAnyInbound(t *testing.T) {
	d, st, _ := setup(t, &stubLLM{})
	ctx := context.Background()

	contact, err := st.GetOrCreateContact(ctx, "+15551230004")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(ctx, contact.ID, "whatsapp")
	require.NoError(t, err)
	th, err = st.UpdateThreadMetaAndStage(ctx, th.ID, "cold", map[string]any{models.MetaFunnelID: "primary"})
	require.NoError(t, err)

	payload := models.SchedulePayload{Actions: models.ActionList{{Kind: models.ActionSendAudio, AssetID: "recovery"}}}
	_, err = st.ScheduleJob(ctx, th.ID, "cart_recovery_30m", time.Now().Add(time.Hour), string(models.ActionSchedule), payload)
	require.NoError(t, err)

	err = d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230004", "still thinking", "", "", time.Now())
	require.NoError(t, err)

	jobs, err := st.DueJobs(ctx, time.Now().Add(2*time.Hour), time.Minute, 10)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.NotEqual(t, th.ID, j.ThreadID, "cart-recovery job should have been cancelled by the new inbound")
	}
}

func TestHandleInbound_LLMFallbackWhenNoTriggerMatches(t *testing.T) {
	out := &llmclient.Output{Text: "Sure, tell me more."}
	d, st, snd := setup(t, &stubLLM{out: out})
	ctx := context.Background()

	contact, err := st.GetOrCreateContact(ctx, "+15551230005")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(ctx, contact.ID, "whatsapp")
	require.NoError(t, err)
	_, err = st.UpdateThreadMetaAndStage(ctx, th.ID, "warming", map[string]any{models.MetaFunnelID: "primary"})
	require.NoError(t, err)

	err = d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230005", "what do you think about that", "", "", time.Now())
	require.NoError(t, err)

	require.Len(t, snd.sent, 1)
	assert.Equal(t, "Sure, tell me more.", snd.sent[0])
}

func TestHandleInbound_DropsRedeliveredWebhookByMessageID(t *testing.T) {
	d, _, snd := setup(t, &stubLLM{})
	ctx := context.Background()

	err := d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230006", "hello there", "", "provider-msg-1", time.Now())
	require.NoError(t, err)
	require.Len(t, snd.sent, 1)

	err = d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230006", "hello there", "", "provider-msg-1", time.Now())
	require.NoError(t, err)
	assert.Len(t, snd.sent, 1, "redelivered webhook with the same provider message id must not be reprocessed")
}

func TestHandleInbound_DropsRedeliveredWebhookByFallbackKey(t *testing.T) {
	d, _, snd := setup(t, &stubLLM{})
	ctx := context.Background()
	sentAt := time.Now()

	err := d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230007", "hello there", "", "", sentAt)
	require.NoError(t, err)
	require.Len(t, snd.sent, 1)

	err = d.HandleInbound(ctx, "whatsapp", "whatsapp:+15551230007", "hello there", "", "", sentAt)
	require.NoError(t, err)
	assert.Len(t, snd.sent, 1, "redelivery with no message id but identical thread/timestamp/text must fall back to the composite key")
}
