package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// Is matches errors carrying the same code, so errors.Is(err, ErrNotMember)
// works for copies produced by WithMessage and friends.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// ToEchoError converts the app error to an echo.HTTPError
func (e *Error) ToEchoError() *echo.HTTPError {
	return echo.NewHTTPError(e.HTTPStatus, map[string]any{"error": e.body()})
}

func (e *Error) body() map[string]any {
	body := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return body
}

func (e *Error) clone() *Error {
	c := *e
	return &c
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	c := e.clone()
	c.Internal = err
	return c
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	c := e.clone()
	c.Message = message
	return c
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	c := e.clone()
	c.Details = details
	return c
}

// New creates a new application error
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

var (
	// Authentication / authorization
	ErrUnauthorized = New(http.StatusUnauthorized, "unauthorized", "Authentication required")
	ErrInvalidToken = New(http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
	ErrForbidden    = New(http.StatusForbidden, "forbidden", "Access denied")
	ErrRateLimited  = New(http.StatusTooManyRequests, "rate_limited", "Too many requests")

	// Resources
	ErrNotFound = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrConflict = New(http.StatusConflict, "conflict", "Resource already exists")

	// Validation
	ErrBadRequest        = New(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrInvalidRange      = New(http.StatusBadRequest, "invalid_range", "End date must be after start date")
	ErrInvalidGuestCount = New(http.StatusBadRequest, "invalid_guest_count", "Number of people must be at least 1")
	ErrInvalidStart      = New(http.StatusBadRequest, "invalid_start", "Booking cannot start in the past")
	ErrPayloadTooLarge   = New(http.StatusRequestEntityTooLarge, "payload_too_large", "Upload exceeds the size limit")

	// Booking and membership state
	ErrSchedulingConflict = New(http.StatusConflict, "scheduling_conflict", "Booking overlaps an accepted booking")
	ErrAlreadyAccepted    = New(http.StatusConflict, "already_accepted", "There is already an accepted booking in this time frame")
	ErrInvalidTransition  = New(http.StatusConflict, "invalid_transition", "Booking status cannot change this way")
	ErrNotMember          = New(http.StatusConflict, "not_member", "User is not member of group")

	// Server
	ErrTransient = New(http.StatusServiceUnavailable, "transient_failure", "The operation could not complete, please retry")
	ErrInternal  = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
	ErrDatabase  = New(http.StatusInternalServerError, "database_error", "Database operation failed")
)

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// NewBadRequest creates a bad request error with a custom message
func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// NewNotFound creates a not found error for a resource type
func NewNotFound(resourceType string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s not found", resourceType))
}

// NewForbidden creates a forbidden error with a custom message
func NewForbidden(message string) *Error {
	return ErrForbidden.WithMessage(message)
}

// NewInternal creates an internal error with a message and wrapped error
func NewInternal(message string, err error) *Error {
	return ErrInternal.WithMessage(message).WithInternal(err)
}
