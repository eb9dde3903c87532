package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMatchmakeHandlerRejectsMissingPoolID(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{"num_users":2,"timeoutSeconds":30}`, gin.Params{{Key: "id", Value: "sess-1"}})
	s.matchmakeHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchmakeHandlerRejectsZeroNumUsers(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{"poolId":"p","num_users":0,"timeoutSeconds":30}`, gin.Params{{Key: "id", Value: "sess-1"}})
	s.matchmakeHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchmakeCancelHandlerRejectsMissingPoolID(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{}`, gin.Params{{Key: "id", Value: "sess-1"}})
	s.matchmakeCancelHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
