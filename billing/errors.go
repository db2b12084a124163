/*
errors.go - Centralized error types for the billing engine

ERROR CATEGORIES (see also api/handlers.go for the HTTP mapping):
  ValidationError     bad/missing input, unknown id        -> 422
  AuthorizationError  actor lacks role/department scope    -> 403
  ErrNotFound         no such entry/statement              -> 404
  StateError          operation illegal for current status -> 409
  InfraError          transaction/storage failure          -> 500 (opaque)

Validation, authorization and state errors are caller-recoverable;
infrastructure errors carry a correlation id instead of raw detail.
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entry, statement, quarter
	// or rule does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is the base of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrAuthorization is the base of all scope/permission failures.
	ErrAuthorization = errors.New("not authorized")

	// ErrState is the base of all illegal-transition failures.
	ErrState = errors.New("illegal state transition")

	// ErrInfra is the base of storage and transaction failures.
	ErrInfra = errors.New("infrastructure failure")

	// ErrEntryLinked is returned by Store.LinkEntry when the entry already
	// belongs to a statement (or no longer exists). A racing assembly that
	// lost the entry sees this instead of silently stealing the link.
	ErrEntryLinked = errors.New("entry already linked")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError carries a caller-facing message about invalid input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AuthorizationError carries a caller-facing message about missing scope.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }
func (e *AuthorizationError) Unwrap() error { return ErrAuthorization }

// Authorizationf builds an AuthorizationError from a format string.
func Authorizationf(format string, args ...any) error {
	return &AuthorizationError{Msg: fmt.Sprintf(format, args...)}
}

// StateError reports an operation attempted against an entity whose
// current ledger status does not permit it. The current status is echoed
// back to the caller.
type StateError struct {
	Op      string
	Current Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: current status is %s (%d)", e.Op, e.Current, int(e.Current))
}
func (e *StateError) Unwrap() error { return ErrState }

// InfraError wraps a storage/transaction failure. The wrapped cause is
// for logs only; callers see an opaque message plus a correlation id.
type InfraError struct {
	Op    string
	Cause error
}

func (e *InfraError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Cause) }
func (e *InfraError) Unwrap() error { return ErrInfra }

// Infra wraps err as an InfraError unless it already belongs to the
// caller-recoverable taxonomy, which must pass through untouched so the
// HTTP layer maps it correctly.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsAuthorization(err) || IsState(err) || IsNotFound(err) {
		return err
	}
	return &InfraError{Op: op, Cause: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsAuthorization(err error) bool { return errors.Is(err, ErrAuthorization) }
func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsState(err error) bool         { return errors.Is(err, ErrState) }
func IsInfra(err error) bool         { return errors.Is(err, ErrInfra) }
