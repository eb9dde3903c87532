package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pairium/experimentd/pkg/matchmaking"
)

// matchmakeHandler handles POST /sessions/:id/matchmake.
func (s *Server) matchmakeHandler(c *gin.Context) {
	var req matchmakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}

	sessionID := c.Param("id")
	snap, err := s.runtime.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	cfg := matchmaking.PoolConfig{
		NumUsers:       req.NumUsers,
		TimeoutSeconds: req.TimeoutSeconds,
		TimeoutTarget:  req.TimeoutTarget,
	}
	if req.Assignment != nil {
		cfg.Assignment = &matchmaking.AssignmentSpec{
			Strategy:   req.Assignment.Strategy,
			Candidates: req.Assignment.Candidates,
		}
	}

	result, err := s.matchmaker.Enqueue(c.Request.Context(), sessionID, snap.ConfigID, req.PoolID, cfg)
	if err != nil {
		writeError(c, err)
		return
	}

	switch result.Status {
	case matchmaking.StatusMatched:
		c.JSON(http.StatusOK, gin.H{"status": result.Status, "groupId": result.GroupID, "treatment": result.Treatment})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": result.Status, "position": result.Position})
	}
}

// matchmakeCancelHandler handles POST /sessions/:id/matchmake/cancel.
func (s *Server) matchmakeCancelHandler(c *gin.Context) {
	var req matchmakeCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}
	status := s.matchmaker.Remove(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": status})
}
