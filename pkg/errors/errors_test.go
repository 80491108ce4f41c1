package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFound("Thread", nil), CodeNotFound, http.StatusNotFound},
		{"invalid argument", InvalidArgument("bad", nil), CodeInvalidArgument, http.StatusBadRequest},
		{"invalid operation", InvalidOperation("nope"), CodeInvalidOperation, http.StatusBadRequest},
		{"unauthorized", Unauthorized("who", nil), CodeUnauthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden("no", nil), CodeForbidden, http.StatusForbidden},
		{"internal", Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
		{"too many requests", TooManyRequests("slow down", time.Second), CodeTooManyRequests, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "Listing not found", NotFound("Listing", nil).Message)
}

func TestIsFollowsWrapping(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	wrapped := fmt.Errorf("open thread: %w", Internal("Failed", cause))

	assert.True(t, Is(wrapped, CodeInternal))
	assert.False(t, Is(wrapped, CodeNotFound))
	assert.False(t, Is(cause, CodeInternal))
	assert.ErrorIs(t, wrapped, cause)
}
