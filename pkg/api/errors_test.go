package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pairium/experimentd/pkg/apperr"
)

func TestStatusForPrefersSentinelOverGenericKind(t *testing.T) {
	status, code := statusFor(apperr.ErrConfigNotFound, apperr.KindNotFound)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "config_not_found", code)

	status, code = statusFor(apperr.ErrNotAMember, apperr.KindForbidden)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not_a_member", code)
}

func TestStatusForFallsBackToKindTable(t *testing.T) {
	// apperr.ErrSessionNotFound isn't one of statusFor's named sentinels,
	// so every case here exercises the generic Kind table instead.
	cases := []struct {
		kind       apperr.Kind
		wantStatus int
		wantCode   string
	}{
		{apperr.KindNotFound, http.StatusNotFound, "not_found"},
		{apperr.KindAuthRequired, http.StatusUnauthorized, "authentication_required"},
		{apperr.KindSessionBlocked, http.StatusConflict, "session_blocked"},
		{apperr.KindForbidden, http.StatusForbidden, "not_a_member"},
		{apperr.KindInvalidInput, http.StatusBadRequest, "invalid_input"},
		{apperr.KindDuplicate, http.StatusOK, "duplicate"},
	}
	for _, tc := range cases {
		status, code := statusFor(apperr.ErrSessionNotFound, tc.kind)
		assert.Equal(t, tc.wantStatus, status)
		assert.Equal(t, tc.wantCode, code)
	}
}

func TestStatusForUnknownKindIsInternalError(t *testing.T) {
	status, code := statusFor(nil, apperr.Kind("something_unmapped"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)
}
