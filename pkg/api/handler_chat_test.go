package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestChatSendHandlerRejectsMissingContent(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{"sessionId":"sess-1"}`, gin.Params{{Key: "groupId", Value: "g1"}})
	s.chatSendHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatSendHandlerRejectsMissingSessionID(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{"content":"hi"}`, gin.Params{{Key: "groupId", Value: "g1"}})
	s.chatSendHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHistoryHandlerRequiresSessionIDQueryParam(t *testing.T) {
	s := &Server{}
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/chat/g1/history", nil)
	c.Params = gin.Params{{Key: "groupId", Value: "g1"}}
	s.chatHistoryHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatStartAgentsHandlerRejectsMissingSessionID(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{}`, gin.Params{{Key: "groupId", Value: "g1"}})
	s.chatStartAgentsHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
