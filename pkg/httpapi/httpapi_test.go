package httpapi_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdatabase "github.com/salesbroker/funnelbroker/test/database"

	"github.com/salesbroker/funnelbroker/pkg/assets"
	"github.com/salesbroker/funnelbroker/pkg/billing"
	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/detect"
	"github.com/salesbroker/funnelbroker/pkg/dispatch"
	"github.com/salesbroker/funnelbroker/pkg/httpapi"
	"github.com/salesbroker/funnelbroker/pkg/llmclient"
	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/response"
	"github.com/salesbroker/funnelbroker/pkg/sender"
	"github.com/salesbroker/funnelbroker/pkg/store"
	"github.com/salesbroker/funnelbroker/pkg/threadlock"
	"github.com/salesbroker/funnelbroker/pkg/trigger"
)

const billingSecret = "test-secret"

type fakeSender struct{ sent []string }

func (f *fakeSender) SendText(_ context.Context, _, body string) (string, error) {
	f.sent = append(f.sent, body)
	return "msg-id", nil
}

func (f *fakeSender) SendMedia(_ context.Context, _, url string, _ sender.MediaKind) (string, error) {
	f.sent = append(f.sent, url)
	return "msg-id", nil
}

type stubLLM struct{}

func (stubLLM) Generate(_ context.Context, _ llmclient.Input) (*llmclient.Output, error) {
	return &llmclient.Output{Text: "fallback"}, nil
}

func testFunnels() map[string]*config.FunnelConfig {
	return map[string]*config.FunnelConfig{
		"primary": {
			ID: "primary",
			Stages: []config.StageConfig{
				{ID: "cold", Order: 0},
				{ID: "customer", Order: 5},
			},
			Triggers: []config.TriggerConfig{
				{
					Name:               "welcome",
					AllowedPriorStages: []string{"cold"},
					Keywords:           config.KeywordSpecConfig{},
					Actions:            []config.ActionConfig{{Kind: "send_audio", AssetID: "welcome"}},
				},
			},
		},
	}
}

func setup(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := testdatabase.NewTestClient(t)
	st := store.New(client.DB())
	snd := &fakeSender{}
	lib := assets.New(assets.BuiltinDefinitions())
	proc := response.New(st, snd, lib, testFunnels(), "https://cdn.example.com")
	locks := threadlock.New()

	det := detect.NewDetector(nil, nil, detect.Rule{FunnelID: "primary", StageID: "cold", Source: "default"}, nil)
	triggers := trigger.NewEngine(testFunnels())
	d := dispatch.New(st, proc, locks, triggers, det, stubLLM{}, "https://cdn.example.com", nil)

	recipient := func(ctx context.Context, th *models.Thread) (string, error) {
		c, err := st.GetContact(ctx, th.ContactID)
		if err != nil {
			return "", err
		}
		return c.Phone, nil
	}
	billingSvc := billing.New(st, proc, locks, recipient, nil, 30*time.Minute)

	srv := httpapi.NewServer(st, client.DB(), d, billingSvc, billingSecret, nil, nil, config.ConfigStats{Funnels: 1})
	return httpapi.NewRouter(srv), st
}

func hmacSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandleHealth_ReportsHealthy(t *testing.T) {
	router, _ := setup(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleMessagingWebhook_DispatchesInboundMessage(t *testing.T) {
	router, st := setup(t)

	form := url.Values{"From": {"+15551230000"}, "Body": {"hi there"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messaging/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	contact, err := st.FindContactByEmailOrPhone(context.Background(), nil, strPtr("+15551230000"))
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(context.Background(), contact.ID, "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, "cold", th.LeadStage)
}

func TestHandleBillingWebhook_SignatureMismatchReturns401NoSideEffects(t *testing.T) {
	router, st := setup(t)

	body := []byte(`{"event":"sale.approved","order_id":"ord-http-1","buyer_phone":"+15551230001","value":9.99}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(string(body)))
	req.Header.Set("X-Webhook-Signature", "bogus")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	exists, err := st.SalesEventExists(context.Background(), "billing", "sale.approved", "ord-http-1")
	require.NoError(t, err)
	assert.False(t, exists, "a mismatched signature must not persist a SalesEvent")
}

func TestHandleBillingWebhook_ValidSignaturePersistsEvent(t *testing.T) {
	router, st := setup(t)

	body := []byte(`{"event":"sale.approved","order_id":"ord-http-2","buyer_phone":"+15551230002","value":9.99}`)
	sig := hmacSignature(billingSecret, body)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(string(body)))
	req.Header.Set("X-Webhook-Signature", sig)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	exists, err := st.SalesEventExists(context.Background(), "billing", "sale.approved", "ord-http-2")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHandleListThreads_ReturnsCreatedThread(t *testing.T) {
	router, st := setup(t)

	contact, err := st.GetOrCreateContact(context.Background(), "+15551230003")
	require.NoError(t, err)
	_, err = st.GetOrCreateThread(context.Background(), contact.ID, "whatsapp")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/threads?limit=10", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var result models.ThreadListResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.GreaterOrEqual(t, result.TotalCount, 1)
}

func TestHandleSetHumanTakeover_TogglesGate(t *testing.T) {
	router, st := setup(t)

	contact, err := st.GetOrCreateContact(context.Background(), "+15551230004")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(context.Background(), contact.ID, "whatsapp")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/threads/"+th.ID.String()+"/human-takeover", strings.NewReader(`{"enabled":true}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	updated, err := st.GetThread(context.Background(), th.ID)
	require.NoError(t, err)
	assert.True(t, updated.HumanTakeover)
}

func TestHandlePostHumanMessage_RecordsIsHumanMessage(t *testing.T) {
	router, st := setup(t)

	contact, err := st.GetOrCreateContact(context.Background(), "+15551230005")
	require.NoError(t, err)
	th, err := st.GetOrCreateThread(context.Background(), contact.ID, "whatsapp")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/threads/"+th.ID.String()+"/messages", strings.NewReader(`{"content":"an operator typed this"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	msgs, err := st.ListMessages(context.Background(), th.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsHuman)
	assert.Equal(t, models.RoleAssistant, msgs[0].Role)
}

func strPtr(s string) *string { return &s }
