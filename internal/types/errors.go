package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants.
// Handlers and services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidTime     ErrorCode = "validation_invalid_time"
	ErrCodeValidationInvalidWeekdays ErrorCode = "validation_invalid_weekdays"
	ErrCodeValidationInvalidTimezone ErrorCode = "validation_invalid_timezone"
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationFieldTooLong    ErrorCode = "validation_field_too_long"
	ErrCodeValidationInvalidPayload  ErrorCode = "validation_invalid_payload"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"

	// Permission (403)
	ErrCodePermissionDenied ErrorCode = "permission_denied"

	// Not Found (404)
	ErrCodeNotFoundNotification ErrorCode = "not_found_notification"
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"
	ErrCodeNotFoundTask         ErrorCode = "not_found_task"

	// Conflict (409)
	ErrCodeConflictJobLocked ErrorCode = "conflict_job_locked"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeInternalConfig        ErrorCode = "internal_configuration_error"
	ErrCodeUpstreamPush          ErrorCode = "upstream_push_unavailable"
	ErrCodeUpstreamQueue         ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamCallback      ErrorCode = "upstream_callback_failed"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamInvalidTarget ErrorCode = "upstream_invalid_target"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type.
// Domain and handler errors are expressed as AppError so that formatting,
// HTTP status mapping and error chains stay consistent.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// IsNotFound reports whether err is an AppError in the not_found_ family.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return strings.HasPrefix(string(appErr.Code), "not_found_")
	}
	return false
}
