package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"drawspace-backend/pkg/apperr"
)

func TestConstructors_CarryCodeAndStatus(t *testing.T) {
	tests := []struct {
		err    *apperr.Error
		code   apperr.Code
		status int
	}{
		{apperr.CanvasNotFound("c1"), apperr.CodeCanvasNotFound, http.StatusNotFound},
		{apperr.PermissionDenied("nope"), apperr.CodePermissionDenied, http.StatusForbidden},
		{apperr.VersionConflict(3, 5), apperr.CodeVersionConflict, http.StatusConflict},
		{apperr.TokenExpired(), apperr.CodeTokenExpired, http.StatusGone},
		{apperr.TokenExhausted(), apperr.CodeTokenExhausted, http.StatusGone},
		{apperr.RoomFull(20), apperr.CodeRoomFull, http.StatusTooManyRequests},
		{apperr.CollaboratorExists(), apperr.CodeCollaboratorExists, http.StatusConflict},
		{apperr.CapacityExceeded(20), apperr.CodeCapacityExceeded, http.StatusConflict},
		{apperr.CannotModifyOwner(), apperr.CodeCannotModifyOwner, http.StatusForbidden},
		{apperr.InvalidInput("bad"), apperr.CodeInvalidInput, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.True(t, apperr.Is(tt.err, tt.code))
		})
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.Internal(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIs_WorksThroughWrapping(t *testing.T) {
	err := fmt.Errorf("joining room: %w", apperr.RoomFull(5))
	assert.True(t, apperr.Is(err, apperr.CodeRoomFull))
	assert.False(t, apperr.Is(err, apperr.CodeCanvasNotFound))
	assert.Equal(t, http.StatusTooManyRequests, apperr.HTTPStatus(err))
}

func TestHTTPStatus_UnknownErrorIs500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(errors.New("plain")))
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(errors.New("plain")))
}
