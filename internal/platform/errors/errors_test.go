package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", ValidationError("question is required"), TypeValidation, http.StatusBadRequest},
		{"not found", NotFoundError("poll not found"), TypeNotFound, http.StatusNotFound},
		{"conflict", ConflictError("already voted"), TypeConflict, http.StatusConflict},
		{"gone", GoneError("poll has expired"), TypeGone, http.StatusGone},
		{"rate limited", RateLimitedError("slow down"), TypeRateLimited, http.StatusTooManyRequests},
		{"internal", InternalError("hub unavailable", nil), TypeInternal, http.StatusInternalServerError},
		{"external", ExternalError("upstream", nil), TypeExternal, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus())
			assert.NotNil(t, tt.err.Context)
			assert.Contains(t, tt.err.Error(), string(tt.wantType))
		})
	}
}

func TestHTTPStatus_UnknownType(t *testing.T) {
	err := &Error{Type: ErrorType("unknown")}
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestInternalError_CauseInMessage(t *testing.T) {
	cause := fmt.Errorf("command timed out")
	err := InternalError("hub unavailable", cause)

	assert.Contains(t, err.Error(), "command timed out")
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestInternalErrorWithoutCause(t *testing.T) {
	err := InternalError("something went wrong", nil)
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestWithFieldChaining(t *testing.T) {
	err := NotFoundError("poll not found").
		WithCode("POLL_NOT_FOUND").
		WithField("poll_id", "abc").
		WithField("voter", "v1")

	assert.Equal(t, "POLL_NOT_FOUND", err.Code)
	assert.Len(t, err.Context, 2)
	assert.Equal(t, "abc", err.Context["poll_id"])
}

func TestWithFieldNilMap(t *testing.T) {
	err := &Error{Type: TypeValidation, Message: "test"}
	err = err.WithField("key", "value")
	assert.Equal(t, "value", err.Context["key"])
}

func TestToResponse(t *testing.T) {
	err := ConflictError("You have already voted in this poll").
		WithCode("ALREADY_VOTED").
		WithField("poll_id", "p1")

	resp := err.ToResponse(false)
	assert.False(t, resp.Success)
	assert.Equal(t, "You have already voted in this poll", resp.Error)
	assert.Equal(t, TypeConflict, resp.Type)
	assert.Equal(t, "ALREADY_VOTED", resp.Code)
	assert.Equal(t, "p1", resp.Context["poll_id"])
}

func TestToResponse_RedactsInternal(t *testing.T) {
	err := InternalError("engine exploded at line 42", errors.New("secret")).
		WithField("detail", "stack")

	resp := err.ToResponse(true)
	assert.Equal(t, "internal server error", resp.Error)
	assert.Nil(t, resp.Context)

	unredacted := err.ToResponse(false)
	assert.Equal(t, "engine exploded at line 42", unredacted.Error)
}

func TestToResponse_RedactKeepsClientErrors(t *testing.T) {
	err := ValidationError("question is required").WithField("field", "question")
	resp := err.ToResponse(true)
	assert.Equal(t, "question is required", resp.Error)
	assert.Equal(t, "question", resp.Context["field"])
}

func TestAsStructuredError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})

	t.Run("structured", func(t *testing.T) {
		original := ValidationError("original")
		assert.Same(t, original, AsStructuredError(original))
	})

	t.Run("wrapped structured", func(t *testing.T) {
		wrapped := fmt.Errorf("wrapped: %w", NotFoundError("poll not found"))
		result := AsStructuredError(wrapped)
		require.NotNil(t, result)
		assert.Equal(t, TypeNotFound, result.Type)
	})

	t.Run("plain", func(t *testing.T) {
		original := fmt.Errorf("standard error")
		result := AsStructuredError(original)
		assert.Equal(t, TypeInternal, result.Type)
		assert.Equal(t, "internal server error", result.Message)
		assert.Equal(t, original, result.Cause)
	})
}
