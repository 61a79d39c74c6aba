package core

import (
	"errors"
	"fmt"
)

// Error represents a gateway or engagement error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s: %s (session: %s)", e.Type, e.Message, e.SessionID)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrOverloaded means the global admission ceiling is full.
	ErrOverloaded ErrorType = "overloaded_error"
	// ErrSessionBusy means another turn for the same session holds the lock.
	ErrSessionBusy ErrorType = "session_busy_error"
	// ErrTimeout means the turn exceeded its processing budget.
	ErrTimeout ErrorType = "timeout_error"
	// ErrStore means the session store failed; the turn was not committed.
	ErrStore ErrorType = "store_error"
	// ErrProvider marks a degraded inference or speech provider. Turns
	// recover from these internally; they do not cross the engagement
	// boundary.
	ErrProvider ErrorType = "provider_error"

	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
)

// NewOverloadedError creates an overloaded error.
func NewOverloadedError(message string) *Error {
	return &Error{
		Type:    ErrOverloaded,
		Message: message,
	}
}

// NewSessionBusyError creates a session busy error.
func NewSessionBusyError(sessionID string) *Error {
	return &Error{
		Type:      ErrSessionBusy,
		Message:   "another turn is in flight for this session",
		SessionID: sessionID,
	}
}

// NewTimeoutError creates a turn timeout error.
func NewTimeoutError(sessionID string, message string) *Error {
	return &Error{
		Type:      ErrTimeout,
		Message:   message,
		SessionID: sessionID,
	}
}

// NewStoreError wraps a session store failure.
func NewStoreError(sessionID string, underlying error) *Error {
	return &Error{
		Type:      ErrStore,
		Message:   fmt.Sprintf("session store: %v", underlying),
		SessionID: sessionID,
		cause:     underlying,
	}
}

// NewProviderError wraps a degraded provider failure.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:    ErrProvider,
		Message: fmt.Sprintf("%s: %v", provider, underlying),
		cause:   underlying,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{
		Type:       ErrRateLimit,
		Message:    message,
		RetryAfter: &retryAfter,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// IsRetryable returns true if the caller may retry the same submission.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrOverloaded, ErrSessionBusy, ErrRateLimit:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.cause
}

// TypeOf returns the ErrorType of err, or ErrAPI for foreign errors.
func TypeOf(err error) ErrorType {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrAPI
}
