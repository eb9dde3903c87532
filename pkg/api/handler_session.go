package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pairium/experimentd/pkg/models"
	"github.com/pairium/experimentd/pkg/runtime"
)

// authFromRequest builds a runtime.AuthContext from the request: an
// optional X-User-Id header for platform-authenticated callers, or a
// Prolific identity supplied in the body. Neither present means
// anonymous, which Runtime.Start rejects when the target config
// requires auth.
func authFromRequest(c *gin.Context, prolific *models.ProlificInfo) runtime.AuthContext {
	return runtime.AuthContext{
		UserID:   c.GetHeader("X-User-Id"),
		Prolific: prolific,
	}
}

// startHandler handles POST /sessions/start.
func (s *Server) startHandler(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}

	auth := authFromRequest(c, req.Prolific)
	snap, err := s.runtime.Start(c.Request.Context(), req.ConfigID, auth)
	if err != nil {
		writeError(c, err)
		return
	}

	if snap.Status == runtime.StatusBlocked {
		c.JSON(http.StatusConflict, blockedResponse())
		return
	}
	c.JSON(http.StatusOK, snapshotResponse(snap))
}

// getSessionHandler handles GET /sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	snap, err := s.runtime.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotResponse(snap))
}

// advanceHandler handles POST /sessions/:id/advance.
func (s *Server) advanceHandler(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}
	snap, err := s.runtime.Advance(c.Request.Context(), c.Param("id"), req.Target, req.IdempotencyKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotResponse(snap))
}

// updateStateHandler handles POST /sessions/:id/state.
func (s *Server) updateStateHandler(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}
	if err := s.runtime.UpdateState(c.Request.Context(), c.Param("id"), req.Updates, req.IdempotencyKey); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// submitEventHandler handles POST /sessions/:id/events.
func (s *Server) submitEventHandler(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}

	ev := &models.Event{
		Type:           req.Type,
		ComponentType:  req.ComponentType,
		ComponentID:    req.ComponentID,
		PageID:         req.PageID,
		SessionID:      c.Param("id"),
		Data:           req.Data,
		IdempotencyKey: req.IdempotencyKey,
	}
	id, dup, err := s.runtime.SubmitEvent(c.Request.Context(), ev)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{"eventId": id}
	if dup {
		body["deduplicated"] = true
	}
	c.JSON(http.StatusOK, body)
}

// randomizeHandler handles POST /sessions/:id/randomize.
func (s *Server) randomizeHandler(c *gin.Context) {
	var req randomizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}
	result, err := s.runtime.Randomize(c.Request.Context(), c.Param("id"), req.AssignmentType, req.Conditions, req.StateKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"condition": result.Condition, "existing": result.Existing})
}
