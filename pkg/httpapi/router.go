// Package httpapi is the Gin HTTP boundary (§6 External Interfaces): the
// inbound messaging and billing webhooks, the boundary-only read-model
// endpoints, and a health check. Grounded on cmd/tarsy/main.go's
// gin.Default()+gin.H health-check shape, generalized from a single inline
// handler into a router package carrying the rest of §6's surface.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/salesbroker/funnelbroker/pkg/billing"
	"github.com/salesbroker/funnelbroker/pkg/config"
	"github.com/salesbroker/funnelbroker/pkg/database"
	"github.com/salesbroker/funnelbroker/pkg/dispatch"
	"github.com/salesbroker/funnelbroker/pkg/masking"
	"github.com/salesbroker/funnelbroker/pkg/slack"
	"github.com/salesbroker/funnelbroker/pkg/store"
)

// Server holds the collaborators every handler needs.
type Server struct {
	store         *store.Store
	db            *sql.DB
	dispatcher    *dispatch.Dispatcher
	billing       *billing.Service
	billingSecret string
	masker        *masking.Service
	notifier      *slack.Service
	stats         config.ConfigStats
}

// NewServer builds a Server bound to its collaborators. masker and notifier
// may both be nil (PII redaction and Slack notifications are then skipped).
func NewServer(st *store.Store, db *sql.DB, d *dispatch.Dispatcher, b *billing.Service, billingSecret string, masker *masking.Service, notifier *slack.Service, stats config.ConfigStats) *Server {
	return &Server{store: st, db: db, dispatcher: d, billing: b, billingSecret: billingSecret, masker: masker, notifier: notifier, stats: stats}
}

// redact masks PII out of text destined for a log line, tolerating a nil
// Server.masker (e.g. in tests that don't construct one).
func (s *Server) redact(text string) string {
	if s.masker == nil {
		return text
	}
	return s.masker.Redact(text)
}

// NewRouter builds the Gin engine (gin.Default) and registers every route.
func NewRouter(s *Server) *gin.Engine {
	router := gin.Default()

	router.GET("/health", s.handleHealth)

	router.POST("/webhooks/messaging/:channel", s.handleMessagingWebhook)
	router.POST("/webhooks/billing", s.handleBillingWebhook)

	router.GET("/threads", s.handleListThreads)
	router.GET("/threads/:id/messages", s.handleListMessages)
	router.PATCH("/threads/:id", s.handlePatchThread)
	router.PUT("/threads/:id/human-takeover", s.handleSetHumanTakeover)
	router.POST("/threads/:id/messages", s.handlePostHumanMessage)

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.db)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
		"configuration": gin.H{
			"funnels":          s.stats.Funnels,
			"triggers":         s.stats.Triggers,
			"masking_patterns": s.stats.MaskingPatterns,
		},
	})
}
