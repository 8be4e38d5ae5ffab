package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/pscheid92/classpoll/internal/platform/correlation"
	apperrors "github.com/pscheid92/classpoll/internal/platform/errors"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromInbound(c.Request().Header.Get(correlation.Header))
		c.Response().Header().Set(correlation.Header, id)
		c.SetRequest(c.Request().WithContext(correlation.WithID(c.Request().Context(), id)))
		return next(c)
	}
}

// ErrorHandlingMiddleware renders returned errors as JSON error responses.
// With redact set, internal causes never reach the client.
func ErrorHandlingMiddleware(redact bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			return writeError(c, AsHTTPError(err), redact)
		}
	}
}

// AsHTTPError maps domain errors onto structured errors with stable codes.
func AsHTTPError(err error) *apperrors.Error {
	var structuredErr *apperrors.Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	code := domain.ErrorCode(err)
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return apperrors.ValidationError(validationErr.Message).WithCode(code).WithField("field", validationErr.Field)
	case errors.Is(err, domain.ErrPollNotFound):
		return apperrors.NotFoundError("poll not found").WithCode(code)
	case errors.Is(err, domain.ErrPollExpired):
		return apperrors.GoneError("this poll has expired and is no longer accepting votes").WithCode(code)
	case errors.Is(err, domain.ErrInvalidOption):
		return apperrors.ValidationError("invalid option selected").WithCode(code)
	case errors.Is(err, domain.ErrAlreadyVoted):
		return apperrors.ConflictError("you have already voted in this poll").WithCode(code)
	case errors.Is(err, domain.ErrRateLimited):
		return apperrors.RateLimitedError("rate limit exceeded").WithCode(code)
	case errors.Is(err, domain.ErrBadRequest):
		return apperrors.ValidationError(err.Error()).WithCode(code)
	case errors.Is(err, domain.ErrHubStopped):
		return apperrors.ExternalError("service unavailable", err).WithCode(domain.CodeInternal)
	default:
		return apperrors.InternalError("internal server error", err).WithCode(domain.CodeInternal)
	}
}

func writeError(c echo.Context, err *apperrors.Error, redact bool) error {
	logError(c, err)
	if err := c.JSON(err.HTTPStatus(), err.ToResponse(redact)); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"code", err.Code,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict, apperrors.TypeGone:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Dependency unavailable", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// HandleError writes err directly, for handlers that run outside the error middleware.
func HandleError(c echo.Context, err error, redact bool) error {
	if err == nil {
		return nil
	}
	return writeError(c, AsHTTPError(err), redact)
}

// WrapHTTPError converts an echo.HTTPError to a structured error.
func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := "internal server error"
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest:
		errType = apperrors.TypeValidation
	case http.StatusNotFound:
		errType = apperrors.TypeNotFound
	case http.StatusConflict:
		errType = apperrors.TypeConflict
	case http.StatusTooManyRequests:
		errType = apperrors.TypeRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		errType = apperrors.TypeExternal
	default:
		errType = apperrors.TypeInternal
	}

	return &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
		Cause:   httpErr.Internal,
	}
}
