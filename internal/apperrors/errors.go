package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates that the operation conflicts with the current state of the resource.
var ErrConflict = errors.New("conflict with current resource state")

// ErrInternal indicates an unexpected internal failure.
var ErrInternal = errors.New("internal error")

// ErrUnbalancedTransaction indicates a transaction whose debit lines do not
// sum to its credit lines in base currency. Wrapped errors name the delta.
var ErrUnbalancedTransaction = errors.New("transaction debits and credits do not balance")

// ErrInvalidReference indicates a line referencing an unknown or inactive
// account, instrument, or lot.
var ErrInvalidReference = errors.New("invalid account, instrument, or lot reference")

// ErrInsufficientQuantity indicates a close request exceeding the open
// quantity for a position. Positions are never allowed to go negative.
var ErrInsufficientQuantity = errors.New("insufficient open quantity")

// ErrDependentState indicates that later transactions or lot mutations
// depend on the state an unpost would revert.
var ErrDependentState = errors.New("dependent state exists")

// ErrAlreadyProcessed indicates a corporate action that has already been
// processed; processing is terminal and happens exactly once.
var ErrAlreadyProcessed = errors.New("corporate action already processed")

// ErrReconciliationMismatch indicates lot inventory disagreeing with the
// journal replay. This is data corruption: the mutating operation must halt
// and the mismatch must surface loudly, never be auto-corrected.
var ErrReconciliationMismatch = errors.New("reconciliation mismatch")

// AppError wraps a lower-level error with a status code and message, used
// by repositories to report infrastructure failures.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError wrapping err.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}
