package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPollNotFound        = errors.New("poll not found")
	ErrPollExpired         = errors.New("poll has expired")
	ErrInvalidOption       = errors.New("invalid option")
	ErrAlreadyVoted        = errors.New("already voted in this poll")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrHubStopped          = errors.New("hub stopped")
	ErrBadRequest          = errors.New("bad request")
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Machine-readable error codes shared by the push and HTTP surfaces.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodePollNotFound        = "POLL_NOT_FOUND"
	CodePollExpired         = "POLL_EXPIRED"
	CodeInvalidOption       = "INVALID_OPTION"
	CodeAlreadyVoted        = "ALREADY_VOTED"
	CodeParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	CodeRateLimited         = "RATE_LIMITED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrorCode maps err to its stable code. Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return CodeValidation
	case errors.Is(err, ErrPollNotFound):
		return CodePollNotFound
	case errors.Is(err, ErrPollExpired):
		return CodePollExpired
	case errors.Is(err, ErrInvalidOption):
		return CodeInvalidOption
	case errors.Is(err, ErrAlreadyVoted):
		return CodeAlreadyVoted
	case errors.Is(err, ErrParticipantNotFound):
		return CodeParticipantNotFound
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
