package engine

import (
	"errors"
	"fmt"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// SyncError represents a failure detected while queueing or draining
// mutations.
//
// Sync errors include:
//   - Validation rejection: server refused the payload (terminal)
//   - Transport failure: network/timeout (retried up to a bound)
//   - Dependency failure: a mutation this one depends on failed (terminal)
//   - Structural error: cycle or dangling dependency in the graph, or a
//     violated registry invariant - a client bug, logged distinctly from
//     user-facing errors
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// MutationID identifies the affected mutation, if any.
	MutationID int64

	// Entity identifies the affected entity, if any.
	Entity entity.Ref
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeValidationRejected indicates the server refused the payload.
	ErrCodeValidationRejected SyncErrorCode = "VALIDATION_REJECTED"

	// ErrCodeTransportFailed indicates a network-level failure.
	ErrCodeTransportFailed SyncErrorCode = "TRANSPORT_FAILED"

	// ErrCodeDependencyFailed indicates a dependency of this mutation failed.
	ErrCodeDependencyFailed SyncErrorCode = "DEPENDENCY_FAILED"

	// ErrCodeStructural indicates a cycle, dangling dependency, or violated
	// registry invariant. Should never occur in correct operation.
	ErrCodeStructural SyncErrorCode = "STRUCTURAL_ERROR"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.MutationID != 0 && e.Entity.ID != "" {
		return fmt.Sprintf("%s: %s (mutation=%d, entity=%s)", e.Code, e.Message, e.MutationID, e.Entity)
	}
	if e.MutationID != 0 {
		return fmt.Sprintf("%s: %s (mutation=%d)", e.Code, e.Message, e.MutationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStructuralError returns true if the error is a structural graph or
// registry invariant violation. Uses errors.As to handle wrapped errors.
func IsStructuralError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeStructural
	}
	return false
}

// NewStructuralError creates a SyncError for a graph or registry invariant
// violation.
func NewStructuralError(message string, mutationID int64, ref entity.Ref) *SyncError {
	return &SyncError{
		Code:       ErrCodeStructural,
		Message:    message,
		MutationID: mutationID,
		Entity:     ref,
	}
}

// ExecutorError is the classifiable failure surface of the external
// mutation executor. The core only distinguishes validation rejections
// (non-retryable) from transport failures (retryable); everything else
// about the backend error is opaque.
type ExecutorError struct {
	// Retryable is true for transport-level failures (timeout, connection
	// refused) and false for validation rejections.
	Retryable bool

	// Reason is the backend's reported reason, surfaced to the user.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("executor: %s: %v", e.Reason, e.Err)
	}
	return "executor: " + e.Reason
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// classifyExecutorError extracts the ExecutorError from an executor
// failure. Errors the executor did not classify are treated as transport
// failures: they are retried, and the bounded attempt budget converts a
// persistent unknown failure to terminal anyway.
func classifyExecutorError(err error) *ExecutorError {
	var ee *ExecutorError
	if errors.As(err, &ee) {
		return ee
	}
	return &ExecutorError{Retryable: true, Reason: err.Error(), Err: err}
}
