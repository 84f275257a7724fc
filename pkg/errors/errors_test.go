package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSessionNotActive = errors.New("session is not active")

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   &AppError{Code: CodeNotFound, Message: "Session not found"},
			expected: "NOT_FOUND: Session not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "Failed to end session",
				Err:     errors.New("connection reset"),
			},
			expected: "INTERNAL_ERROR: Failed to end session (caused by: connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestConstructors_StatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFound("Person"), CodeNotFound, http.StatusNotFound},
		{"not found with id", NotFoundWithID("Session", "s1"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad scan", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("token is required"), CodeInvalidInput, http.StatusBadRequest},
		{"unauthorized", Unauthorized("missing credential"), CodeUnauthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden("role not allowed"), CodeForbidden, http.StatusForbidden},
		{"conflict", Conflict("Equipment is not available"), CodeConflict, http.StatusConflict},
		{"policy blocked", PolicyBlocked("Please wait", time.Minute), CodePolicyBlocked, http.StatusTooManyRequests},
		{"internal", Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
		{"timeout", Timeout("too slow"), CodeTimeout, http.StatusGatewayTimeout},
		{"unavailable", Unavailable("Record store"), CodeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode())
		})
	}
}

func TestNotFoundWithID_Details(t *testing.T) {
	err := NotFoundWithID("Session", "abc")

	assert.Equal(t, "Session not found", err.Message)
	assert.Equal(t, "abc", err.Details["id"])
	assert.Equal(t, "Session", err.Details["resource"])
}

func TestPolicyBlocked_RoundsRemainingUp(t *testing.T) {
	err := PolicyBlocked("Please wait 12 more minutes", 11*time.Minute+500*time.Millisecond)

	assert.Equal(t, int64(661), err.Details[DetailRemainingSeconds])
}

func TestRemainingSeconds(t *testing.T) {
	assert.Equal(t, int64(0), RemainingSeconds(-time.Second))
	assert.Equal(t, int64(0), RemainingSeconds(0))
	assert.Equal(t, int64(1), RemainingSeconds(time.Millisecond))
	assert.Equal(t, int64(90), RemainingSeconds(90*time.Second))
}

func TestWithCause_ExposesSentinel(t *testing.T) {
	err := Conflict("Session is not active").WithCause(errSessionNotActive)

	assert.ErrorIs(t, err, errSessionNotActive)
}

func TestAsAppError(t *testing.T) {
	appErr := NotFound("Person")
	assert.Same(t, appErr, AsAppError(appErr))

	wrapped := fmt.Errorf("resolve: %w", appErr)
	assert.Same(t, appErr, AsAppError(wrapped))

	regular := errors.New("regular error")
	result := AsAppError(regular)
	assert.Equal(t, CodeInternal, result.Code)
	assert.Same(t, regular, result.Err)
}

func TestIsAppErrorAndHasCode(t *testing.T) {
	wrapped := fmt.Errorf("tx: %w", Conflict("No copies available"))

	assert.True(t, IsAppError(wrapped))
	assert.True(t, HasCode(wrapped, CodeConflict))
	assert.False(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, IsAppError(errors.New("plain")))
}

func TestAppError_ToJSON(t *testing.T) {
	body := string(NotFoundWithID("Book", "ACC001234").ToJSON())

	require.NotEmpty(t, body)
	assert.Contains(t, body, `"code":"NOT_FOUND"`)
	assert.Contains(t, body, `"id":"ACC001234"`)
}
