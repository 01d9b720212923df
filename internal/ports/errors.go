package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during storage
// interactions.
var (
	// ErrServiceUnavailable indicates that the storage layer is
	// unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that a storage operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrTransactionConflict indicates that an atomically-isolated
	// update could not commit and was aborted by the storage layer.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// StoreError represents a failure of a storage operation, carrying the
// operation name and the statement it targeted.
type StoreError struct {
	// Operation is the name of the storage operation that failed.
	Operation string

	// StatementID is the statement the operation targeted, when known.
	StatementID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: operation=%s, statement=%s, err=%v", e.Operation, e.StatementID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary. Retry, if any, is
// the delivery channel's responsibility, not this engine's; the flag
// exists for the channel's benefit.
func (e *StoreError) IsRetryable() bool {
	return errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout) ||
		errors.Is(e.Err, ErrTransactionConflict)
}

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(operation, statementID string, err error) *StoreError {
	return &StoreError{
		Operation:   operation,
		StatementID: statementID,
		Err:         err,
	}
}
