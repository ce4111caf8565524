package dbx

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrParameter is matched by every ParameterError.
	ErrParameter = errors.New("dbx: invalid query parameters")

	// ErrTypeConversion is matched by every TypeConversionError.
	ErrTypeConversion = errors.New("dbx: no conversion for value")

	// ErrUnsupported is matched by every UnsupportedOperationError.
	ErrUnsupported = errors.New("dbx: operation not supported by dialect")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("dbx: cannot start a transaction within a transaction")

	// ErrTxDone is returned when a transaction is used after commit or rollback.
	ErrTxDone = errors.New("dbx: transaction has already been committed or rolled back")

	// ErrTransient is matched by every TransientConnectionError.
	ErrTransient = errors.New("dbx: transient connection failure")
)

// ParameterError reports a query whose placeholders and arguments cannot be
// reconciled. It is raised before any statement reaches the driver.
type ParameterError struct {
	msg string
}

// Error returns the error string.
func (e *ParameterError) Error() string {
	return "dbx: parameter: " + e.msg
}

// Is reports whether the target error matches ParameterError.
func (e *ParameterError) Is(err error) bool {
	return err == ErrParameter
}

// NewParameterError returns a new ParameterError with a formatted message.
func NewParameterError(format string, args ...any) *ParameterError {
	return &ParameterError{msg: fmt.Sprintf(format, args...)}
}

// IsParameterError returns true if the error is a ParameterError.
func IsParameterError(err error) bool {
	if err == nil {
		return false
	}
	var e *ParameterError
	return errors.As(err, &e)
}

// TypeConversionError represents a value that has no coercion for the target dialect.
type TypeConversionError struct {
	Value   any
	Dialect string
	Reason  string
}

// Error returns the error string.
func (e *TypeConversionError) Error() string {
	msg := fmt.Sprintf("dbx: cannot convert %T for %s", e.Value, e.Dialect)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports whether the target error matches TypeConversionError.
func (e *TypeConversionError) Is(err error) bool {
	return err == ErrTypeConversion
}

// NewTypeConversionError returns a new TypeConversionError.
func NewTypeConversionError(value any, dialect, reason string) *TypeConversionError {
	return &TypeConversionError{Value: value, Dialect: dialect, Reason: reason}
}

// IsTypeConversionError returns true if the error is a TypeConversionError.
func IsTypeConversionError(err error) bool {
	if err == nil {
		return false
	}
	var e *TypeConversionError
	return errors.As(err, &e)
}

// UnsupportedOperationError is returned when a dialect lacks a capability
// that an operation requires. No emulation is attempted.
type UnsupportedOperationError struct {
	Op      string
	Dialect string
}

// Error returns the error string.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("dbx: %s is not supported by %s", e.Op, e.Dialect)
}

// Is reports whether the target error matches UnsupportedOperationError.
func (e *UnsupportedOperationError) Is(err error) bool {
	return err == ErrUnsupported
}

// NewUnsupportedOperationError returns a new UnsupportedOperationError.
func NewUnsupportedOperationError(op, dialect string) *UnsupportedOperationError {
	return &UnsupportedOperationError{Op: op, Dialect: dialect}
}

// IsUnsupported returns true if the error is an UnsupportedOperationError.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedOperationError
	return errors.As(err, &e)
}

// TransactionError represents misuse of a transaction: nesting without opt-in,
// or commit/rollback on a finished transaction.
type TransactionError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e *TransactionError) Error() string {
	if e.wrap != nil {
		return fmt.Sprintf("dbx: transaction: %s: %v", e.msg, e.wrap)
	}
	return "dbx: transaction: " + e.msg
}

// Unwrap returns the underlying error.
func (e *TransactionError) Unwrap() error {
	return e.wrap
}

// NewTransactionError returns a new TransactionError.
func NewTransactionError(msg string, wrap error) *TransactionError {
	return &TransactionError{msg: msg, wrap: wrap}
}

// IsTransactionError returns true if the error is a TransactionError.
func IsTransactionError(err error) bool {
	if err == nil {
		return false
	}
	var e *TransactionError
	return errors.As(err, &e)
}

// TransientConnectionError is surfaced once the retry budget is spent.
// It wraps the last failure observed.
type TransientConnectionError struct {
	Attempts int
	Err      error
}

// Error returns the error string.
func (e *TransientConnectionError) Error() string {
	return fmt.Sprintf("dbx: transient failure after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *TransientConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches TransientConnectionError.
func (e *TransientConnectionError) Is(err error) bool {
	return err == ErrTransient
}

// NewTransientConnectionError returns a new TransientConnectionError.
func NewTransientConnectionError(attempts int, err error) *TransientConnectionError {
	return &TransientConnectionError{Attempts: attempts, Err: err}
}

// IsTransient returns true if the error is a TransientConnectionError.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *TransientConnectionError
	return errors.As(err, &e)
}

// IntegrityError represents a database constraint violation.
// The driver error is kept unchanged as the wrapped cause.
type IntegrityError struct {
	Kind string // unique, foreign_key, check, not_null
	wrap error
}

// Error returns the error string.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("dbx: %s constraint failed: %v", e.Kind, e.wrap)
}

// Unwrap returns the underlying error.
func (e *IntegrityError) Unwrap() error {
	return e.wrap
}

// NewIntegrityError returns a new IntegrityError of the given kind.
func NewIntegrityError(kind string, wrap error) *IntegrityError {
	return &IntegrityError{Kind: kind, wrap: wrap}
}

// IsIntegrityError returns true if the error is an IntegrityError
// (including UniqueViolationError).
func IsIntegrityError(err error) bool {
	if err == nil {
		return false
	}
	var e *IntegrityError
	if errors.As(err, &e) {
		return true
	}
	var u *UniqueViolationError
	return errors.As(err, &u)
}

// UniqueViolationError is an IntegrityError caused by a unique or primary key constraint.
type UniqueViolationError struct {
	IntegrityError
}

// NewUniqueViolationError returns a new UniqueViolationError.
func NewUniqueViolationError(wrap error) *UniqueViolationError {
	return &UniqueViolationError{IntegrityError{Kind: "unique", wrap: wrap}}
}

// IsUniqueViolation returns true if the error is a UniqueViolationError.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var e *UniqueViolationError
	return errors.As(err, &e)
}

// RollbackError wraps a failed unit of work whose rollback also failed.
type RollbackError struct {
	Err         error // Original error that triggered rollback
	RollbackErr error
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("dbx: %v: rollback failed: %v", e.Err, e.RollbackErr)
}

// Unwrap returns both underlying errors.
func (e *RollbackError) Unwrap() []error {
	return []error{e.Err, e.RollbackErr}
}

// Rollback combines the error that aborted a transaction with the error
// returned by its rollback. A nil rollback error returns err unchanged.
func Rollback(err, rerr error) error {
	if rerr == nil {
		return err
	}
	return &RollbackError{Err: err, RollbackErr: rerr}
}

// Null is a marker bound in place of a value to request SQL NULL explicitly.
var Null = null{}

type null struct{}

// String implements fmt.Stringer.
func (null) String() string { return "NULL" }
