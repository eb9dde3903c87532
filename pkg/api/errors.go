package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pairium/experimentd/pkg/apperr"
)

// writeError maps an apperr.Kind to an HTTP status and a JSON body per
// §7's taxonomy table, the way the teacher's mapServiceError
// (pkg/api/errors.go) maps services.ValidationError/ErrNotFound/etc to
// echo.HTTPError — generalized here to gin and this core's own taxonomy.
func writeError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.Error("api: unexpected error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	status, code := statusFor(err, appErr.Kind)
	body := gin.H{"error": code}
	if appErr.Message != "" && appErr.Message != code {
		body["message"] = appErr.Message
	}
	if status >= 500 {
		slog.Error("api: internal error", "error", appErr)
	}
	c.JSON(status, body)
}

// statusFor maps a Kind to its HTTP status, preferring an exact §6 error
// code for sentinels that name one (config_not_found vs the generic
// not_found) over the taxonomy-wide default.
func statusFor(err error, kind apperr.Kind) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrConfigNotFound):
		return http.StatusNotFound, "config_not_found"
	case errors.Is(err, apperr.ErrNotAMember):
		return http.StatusForbidden, "not_a_member"
	}

	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound, "not_found"
	case apperr.KindAuthRequired:
		return http.StatusUnauthorized, "authentication_required"
	case apperr.KindSessionBlocked:
		return http.StatusConflict, "session_blocked"
	case apperr.KindForbidden:
		return http.StatusForbidden, "not_a_member"
	case apperr.KindInvalidInput:
		return http.StatusBadRequest, "invalid_input"
	case apperr.KindDuplicate:
		return http.StatusOK, "duplicate"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
