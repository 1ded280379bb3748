package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdatabase "github.com/salesbroker/funnelbroker/test/database"

	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/store"
)

func testConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		ScheduledJobRetentionDays: 30,
		WebhookDedupTTL:           48 * time.Hour,
		CleanupInterval:           time.Hour,
	}
}

func TestService_PurgesOldTerminalScheduledJobs(t *testing.T) {
	client := testdatabase.NewTestClient(t)
	st := store.New(client.DB())
	ctx := context.Background()

	contact, err := st.GetOrCreateContact(ctx, "+15550001234")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(ctx, contact.ID, "whatsapp")
	require.NoError(t, err)

	payload := models.SchedulePayload{Actions: models.ActionList{{Kind: models.ActionSendAudio, AssetID: "recovery"}}}
	job, err := st.ScheduleJob(ctx, th.ID, "cart_recovery_30m", time.Now().Add(-60*24*time.Hour), string(models.ActionSchedule), payload)
	require.NoError(t, err)
	require.NoError(t, st.MarkJobFired(ctx, job.ID))

	svc := NewService(testConfig(), st)
	svc.runAll(ctx)

	due, err := st.DueJobs(ctx, time.Now(), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "fired jobs don't reappear as due regardless of purge")

	count, err := st.PurgeOldScheduledJobs(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, count, "already purged by runAll")
}

func TestService_PreservesRecentTerminalScheduledJobs(t *testing.T) {
	client := testdatabase.NewTestClient(t)
	st := store.New(client.DB())
	ctx := context.Background()

	contact, err := st.GetOrCreateContact(ctx, "+15550005678")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(ctx, contact.ID, "whatsapp")
	require.NoError(t, err)

	payload := models.SchedulePayload{Actions: models.ActionList{{Kind: models.ActionSendAudio, AssetID: "recovery"}}}
	job, err := st.ScheduleJob(ctx, th.ID, "cart_recovery_30m", time.Now().Add(-time.Hour), string(models.ActionSchedule), payload)
	require.NoError(t, err)
	require.NoError(t, st.MarkJobFired(ctx, job.ID))

	svc := NewService(testConfig(), st)
	svc.runAll(ctx)

	count, err := st.PurgeOldScheduledJobs(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a job fired an hour ago is well within the 30-day retention window, so runAll kept it")
}

func TestService_PurgesExpiredWebhookDedupRows(t *testing.T) {
	client := testdatabase.NewTestClient(t)
	st := store.New(client.DB())
	ctx := context.Background()

	seen, err := st.WebhookSeen(ctx, "whatsapp", "old-message-id", nil)
	require.NoError(t, err)
	assert.False(t, seen)

	cfg := testConfig()
	cfg.WebhookDedupTTL = 0 // every row older than "now" is expired immediately
	svc := NewService(cfg, st)
	svc.runAll(ctx)

	// A purged dedup key is treated as never having been seen.
	seenAgain, err := st.WebhookSeen(ctx, "whatsapp", "old-message-id", nil)
	require.NoError(t, err)
	assert.False(t, seenAgain, "dedup row should have been purged, allowing reinsertion")
}
