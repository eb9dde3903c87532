package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestContext builds a gin.Context around a recorded request, the same
// shape the teacher's handler tests use with echo.Context to test binding
// validation ahead of the service call (happy paths need a real runtime.Runtime
// backed by Postgres and are not exercised by these tests).
func newTestContext(method, body string, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	return c, rec
}

func TestStartHandlerRejectsMissingConfigID(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{}`, nil)
	s.startHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_input")
}

func TestAdvanceHandlerRejectsMissingTarget(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{"idempotencyKey":"k1"}`, gin.Params{{Key: "id", Value: "sess-1"}})
	s.advanceHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvanceHandlerRejectsMissingIdempotencyKey(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{"target":"outro"}`, gin.Params{{Key: "id", Value: "sess-1"}})
	s.advanceHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStateHandlerRejectsMissingUpdates(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{"idempotencyKey":"k1"}`, gin.Params{{Key: "id", Value: "sess-1"}})
	s.updateStateHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitEventHandlerRejectsMissingType(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext(http.MethodPost, `{}`, gin.Params{{Key: "id", Value: "sess-1"}})
	s.submitEventHandler(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
