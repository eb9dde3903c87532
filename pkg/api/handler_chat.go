package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pairium/experimentd/pkg/models"
)

// chatSendHandler handles POST /chat/:groupId/send.
func (s *Server) chatSendHandler(c *gin.Context) {
	var req chatSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}

	senderType := models.SenderParticipant
	if req.SenderType != "" {
		senderType = models.SenderType(req.SenderType)
	}

	result, err := s.chat.Send(c.Request.Context(), c.Param("groupId"), req.SessionID, req.Content, senderType, req.IdempotencyKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatMessageResponse(result.Message, result.Deduplicated))
}

// chatHistoryHandler handles GET /chat/:groupId/history.
func (s *Server) chatHistoryHandler(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "sessionId query parameter is required"})
		return
	}
	msgs, err := s.chat.History(c.Request.Context(), c.Param("groupId"), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatHistoryResponse(msgs))
}

// chatStartAgentsHandler handles POST /chat/:groupId/start-agents.
func (s *Server) chatStartAgentsHandler(c *gin.Context) {
	var req chatStartAgentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}
	if err := s.chat.StartAgents(c.Request.Context(), c.Param("groupId"), req.SessionID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
