package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/salesbroker/funnelbroker/pkg/billing"
	"github.com/salesbroker/funnelbroker/pkg/response"
)

// messagingWebhookForm is the inbound messaging provider payload (§6): "POST,
// form-encoded or JSON, carrying at minimum From, Body, and optional media
// attachments." MediaURL0/MessageSid follow the Twilio-style convention the
// rest of the pack's messaging-provider examples use.
type messagingWebhookForm struct {
	From       string `form:"From" binding:"required"`
	Body       string `form:"Body"`
	MediaURL0  string `form:"MediaUrl0"`
	MessageSid string `form:"MessageSid"`
}

// handleMessagingWebhook is the Ingress Dispatcher's HTTP boundary. It binds
// either form-encoded or JSON depending on Content-Type, delegates the full
// decide-and-act pipeline to dispatch.Dispatcher.HandleInbound, and returns
// 200 on success or on an action-list abort (response.ErrAborted has already
// been recorded as a system-message by the time it reaches here). Any other
// error from HandleInbound becomes a 500: a StoreError, but also a From
// address that does not normalize to a phone number.
func (s *Server) handleMessagingWebhook(c *gin.Context) {
	channel := c.Param("channel")

	var form messagingWebhookForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	media := ""
	if form.MediaURL0 != "" {
		media = "[media]"
	}

	err := s.dispatcher.HandleInbound(c.Request.Context(), channel, form.From, form.Body, media, form.MessageSid, time.Now())
	if err != nil && !errors.Is(err, response.ErrAborted) {
		slog.Error("httpapi: inbound dispatch failed", "channel", channel, "body", s.redact(form.Body), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Status(http.StatusOK)
}

// handleBillingWebhook verifies the X-Webhook-Signature header over the raw
// body (see pkg/billing.VerifySignature's doc comment for why the header,
// not the body's `signature` field, is authoritative) before parsing
// anything — a mismatched signature returns 401 with no side effects (§7).
func (s *Server) handleBillingWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	sig := c.GetHeader("X-Webhook-Signature")
	if !billing.VerifySignature(s.billingSecret, body, sig) {
		slog.Warn("httpapi: billing webhook signature mismatch")
		c.Status(http.StatusUnauthorized)
		return
	}

	evt, err := billing.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	if err := s.billing.Process(c.Request.Context(), evt); err != nil {
		slog.Error("httpapi: billing event processing failed", "event", evt.EventKind, "order_id", evt.OrderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Status(http.StatusOK)
}
