package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Workflow error codes
const (
	ErrWorkflowNotFound          ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrStepExecutionFailed       ErrorCode = "STEP_EXECUTION_FAILED"
	ErrInvalidInput              ErrorCode = "INVALID_INPUT"
	ErrUnauthorized              ErrorCode = "UNAUTHORIZED"
	ErrTimeout                   ErrorCode = "TIMEOUT"
	ErrConditionEvaluationFailed ErrorCode = "CONDITION_EVALUATION_FAILED"
	ErrMaxRetriesExceeded        ErrorCode = "MAX_RETRIES_EXCEEDED"
)

// Engine bookkeeping error codes
const (
	ErrInvalidDefinition  ErrorCode = "INVALID_DEFINITION"
	ErrCircularDependency ErrorCode = "CIRCULAR_DEPENDENCY"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	ErrCancelled          ErrorCode = "CANCELLED"
	ErrExecutionNotFound  ErrorCode = "EXECUTION_NOT_FOUND"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Retryable  bool           `json:"retryable"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
// HTTPStatus defaults to the status mapped for the code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: StatusForCode(code)}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithDetail attaches a key/value detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// WrapError wraps err into a *Error unless it already is one.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(code, message).WithCause(err)
}

// StatusForCode maps an error code to its HTTP status.
func StatusForCode(code ErrorCode) int {
	switch code {
	case ErrWorkflowNotFound, ErrExecutionNotFound:
		return http.StatusNotFound
	case ErrInvalidInput, ErrInvalidDefinition, ErrCircularDependency:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrCircuitOpen:
		return http.StatusServiceUnavailable
	case ErrCancelled:
		return http.StatusConflict
	case "":
		return 0
	default:
		return http.StatusInternalServerError
	}
}
