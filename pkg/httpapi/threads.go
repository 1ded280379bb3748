package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/salesbroker/funnelbroker/pkg/models"
	"github.com/salesbroker/funnelbroker/pkg/slack"
	"github.com/salesbroker/funnelbroker/pkg/store"
)

// handleListThreads implements the "list threads" read-model endpoint (§6),
// filterable by funnel_id, lead_stage, and human_takeover, paginated via
// limit/offset.
func (s *Server) handleListThreads(c *gin.Context) {
	filter := models.ThreadFilter{
		FunnelID:  c.Query("funnel_id"),
		LeadStage: c.Query("lead_stage"),
		Limit:     queryInt(c, "limit", 0),
		Offset:    queryInt(c, "offset", 0),
	}
	if raw := c.Query("human_takeover"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "human_takeover must be a bool"})
			return
		}
		filter.HumanTakeover = &v
	}

	result, err := s.store.ListThreads(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleListMessages implements "list messages per thread" (§6).
func (s *Server) handleListMessages(c *gin.Context) {
	threadID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 50)

	msgs, err := s.store.ListMessages(c.Request.Context(), threadID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// patchThreadRequest is the body for "patch thread meta (forced stage
// override)" (§6): a human operator overriding lead_stage directly, bypassing
// the Trigger Engine/LLM next_stage legality check the way the billing
// service's exogenous stage sets already do (pkg/config/validator.go's
// validateReachability comment).
type patchThreadRequest struct {
	Stage *string        `json:"stage"`
	Meta  map[string]any `json:"meta"`
}

func (s *Server) handlePatchThread(c *gin.Context) {
	threadID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req patchThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	th, err := s.store.GetThread(c.Request.Context(), threadID)
	if err != nil {
		respondThreadLookupError(c, err)
		return
	}

	stage := th.LeadStage
	if req.Stage != nil {
		stage = *req.Stage
	}

	updated, err := s.store.UpdateThreadMetaAndStage(c.Request.Context(), threadID, stage, req.Meta)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

type humanTakeoverRequest struct {
	Enabled bool `json:"enabled"`
}

// handleSetHumanTakeover implements "enable/disable human_takeover" (§6) —
// the same gate the support handoff flips automatically
// (pkg/dispatch.handleSupportHandoff), but here under direct operator
// control. Enabling it also best-effort notifies Slack, mirroring the
// automatic handoff path.
func (s *Server) handleSetHumanTakeover(c *gin.Context) {
	threadID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req humanTakeoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	th, err := s.store.GetThread(c.Request.Context(), threadID)
	if err != nil {
		respondThreadLookupError(c, err)
		return
	}

	if err := s.store.SetHumanTakeover(c.Request.Context(), threadID, req.Enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if req.Enabled {
		s.notifier.NotifyHumanTakeover(c.Request.Context(), slack.HumanTakeoverInput{
			ThreadID: th.ID.String(),
			Channel:  th.Channel,
			Reason:   "operator-initiated takeover",
		})
	}
	c.Status(http.StatusNoContent)
}

type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// handlePostHumanMessage implements "post a human-authored message" (§6): an
// operator typing directly into a thread under human_takeover, recorded as
// an assistant message with IsHuman=true so it's distinguishable in the
// transcript from an automated send.
func (s *Server) handlePostHumanMessage(c *gin.Context) {
	threadID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	msg, err := s.store.AppendMessage(c.Request.Context(), threadID, models.RoleAssistant, req.Content, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func respondThreadLookupError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a uuid"})
		return uuid.UUID{}, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
