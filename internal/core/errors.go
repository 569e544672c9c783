package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatConfig     ErrorCategory = "config"     // Missing or invalid startup settings
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent modification
	ErrCatLock       ErrorCategory = "lock"       // Lease contention or loss
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatBackend    ErrorCategory = "backend"    // Store, queue or bus failure
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Predefined error codes
const (
	CodeOptimisticConflict      = "OPTIMISTIC_CONFLICT"
	CodeLockUnavailable         = "LOCK_UNAVAILABLE"
	CodeLockLost                = "LOCK_LOST"
	CodeDurationParse           = "DURATION_PARSE"
	CodeMissingSetting          = "MISSING_SETTING"
	CodeInvalidSetting          = "INVALID_SETTING"
	CodeInvalidMode             = "INVALID_MODE"
	CodeInvalidPayload          = "INVALID_PAYLOAD"
	CodeWorkflowAlreadyResolved = "WORKFLOW_ALREADY_RESOLVED"
	CodeNotFound                = "NOT_FOUND"
)

// ErrConditionFailed is returned by backend ports when a conditional write
// does not match the stored record. Services translate it into a DomainError.
var ErrConditionFailed = errors.New("conditional check failed")

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrConfiguration creates an error for a missing or invalid startup setting.
func ErrConfiguration(code, setting, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConfig,
		Code:      code,
		Message:   fmt.Sprintf("%s: %s", setting, message),
		Retryable: false,
		Details:   map[string]interface{}{"setting": setting},
	}
}

// ErrOptimisticConflict creates the error returned when a save loses a
// version race. Callers reload and retry.
func ErrOptimisticConflict(actorID string, expected int64) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      CodeOptimisticConflict,
		Message:   fmt.Sprintf("actor %s changed since version %d", actorID, expected),
		Retryable: true,
		Details: map[string]interface{}{
			"actor_id":         actorID,
			"expected_version": expected,
		},
	}
}

// ErrLockUnavailable creates the error used when a lease is held elsewhere.
func ErrLockUnavailable(actorID string) *DomainError {
	return &DomainError{
		Category:  ErrCatLock,
		Code:      CodeLockUnavailable,
		Message:   fmt.Sprintf("lock on actor %s is held by another holder", actorID),
		Retryable: true,
		Details:   map[string]interface{}{"actor_id": actorID},
	}
}

// ErrLockLost creates the error used when a lease was reclaimed or removed.
// The current critical section must be aborted.
func ErrLockLost(actorID, holder string) *DomainError {
	return &DomainError{
		Category:  ErrCatLock,
		Code:      CodeLockLost,
		Message:   fmt.Sprintf("lock on actor %s is no longer held by %s", actorID, holder),
		Retryable: false,
		Details: map[string]interface{}{
			"actor_id": actorID,
			"holder":   holder,
		},
	}
}

// ErrDurationParse creates the error for a malformed delay string.
func ErrDurationParse(input string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeDurationParse,
		Message:   fmt.Sprintf("bad duration: %q", input),
		Retryable: false,
	}
}

// ErrWorkflowAlreadyResolved creates the error for a second, different
// resolution of a workflow.
func ErrWorkflowAlreadyResolved(workflowID string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      CodeWorkflowAlreadyResolved,
		Message:   fmt.Sprintf("workflow %s was already resolved with a different output", workflowID),
		Retryable: false,
		Details:   map[string]interface{}{"workflow_id": workflowID},
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeNotFound,
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrBackend wraps a store, queue or bus failure.
func ErrBackend(op string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatBackend,
		Code:      "BACKEND_FAILURE",
		Message:   op,
		Retryable: true,
		Cause:     cause,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsCode checks if err is a DomainError carrying code.
func IsCode(err error, code string) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code == code
	}
	return false
}
