package escrow

import (
	"errors"
	"fmt"

	"github.com/xraph/escrow/config"
	"github.com/xraph/escrow/journal"
	"github.com/xraph/escrow/oracle"
	"github.com/xraph/escrow/swap"
	"github.com/xraph/escrow/types"
)

// Sentinel errors grouped by taxonomy. Every error aborts the whole
// operation; nothing is committed.
var (
	// Authorization errors
	ErrUnauthorized = errors.New("escrow: unauthorized")

	// Validation errors
	ErrInvalidInput    = errors.New("escrow: invalid input")
	ErrZeroAmount      = errors.New("escrow: amount must be greater than zero")
	ErrZeroAddress     = errors.New("escrow: address must not be empty")
	ErrInvalidDuration = errors.New("escrow: lock duration out of range")
	ErrInvalidConfig   = config.ErrInvalid
	ErrInvalidRole     = errors.New("escrow: unknown role")
	ErrInvalidOp       = errors.New("escrow: unknown operation")
	ErrLengthMismatch  = errors.New("escrow: batch length mismatch")
	ErrEmptyBatch      = errors.New("escrow: empty batch")
	ErrEngineAccount   = errors.New("escrow: engine accounts cannot be used here")
	ErrOverflow        = types.ErrOverflow

	// State errors
	ErrLockNotFound   = errors.New("escrow: lock not found")
	ErrAlreadySettled = errors.New("escrow: lock already settled")
	ErrLockNotMatured = errors.New("escrow: lock has not reached its unlock time")
	ErrLastAdmin      = errors.New("escrow: cannot revoke the last admin")
	ErrNotStarted     = errors.New("escrow: engine not started")
	ErrNoGenesis      = errors.New("escrow: empty journal and no genesis configured")

	// Economic errors
	ErrInsufficientBalance   = errors.New("escrow: insufficient balance")
	ErrInsufficientAllowance = errors.New("escrow: insufficient spending allowance")
	ErrExceedsCeiling        = errors.New("escrow: amount exceeds spend ceiling")
	ErrExceedsLock           = errors.New("escrow: spent amount exceeds locked amount")
	ErrSlippage              = errors.New("escrow: output below minimum")
	ErrInsufficientReserve   = errors.New("escrow: insufficient swap reserve")
	ErrNoFees                = errors.New("escrow: no accrued fees")

	// Oracle errors
	ErrStalePrice   = oracle.ErrStalePrice
	ErrInvalidPrice = oracle.ErrInvalidPrice

	// Safety errors
	ErrPaused         = errors.New("escrow: paused")
	ErrFunctionPaused = errors.New("escrow: operation paused")
	ErrReentrantCall  = errors.New("escrow: reentrant call")

	// Swap errors
	ErrSwapNotConfigured = errors.New("escrow: swap not configured")
	ErrExchangeFailed    = errors.New("escrow: exchange failed")
	ErrOutputOverflow    = swap.ErrOutputOverflow

	// Store errors
	ErrNotFound        = errors.New("escrow: not found")
	ErrJournalConflict = errors.New("escrow: journal sequence conflict")
	ErrJournalCorrupt  = journal.ErrCorrupt
	ErrStoreClosed     = errors.New("escrow: store is closed")
	ErrMigrationFailed = errors.New("escrow: migration failed")
	ErrInvariant       = errors.New("escrow: book invariant violated")
)

// UnauthorizedError names the role the caller was missing.
type UnauthorizedError struct {
	Role   string
	Caller string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("escrow: unauthorized: %s requires role %s", e.Caller, e.Role)
}

// Unwrap makes every UnauthorizedError match ErrUnauthorized.
func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("escrow: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel, or ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "escrow: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("escrow: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// ErrorOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsAuthorization reports whether the caller lacked a required role.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation reports whether the request itself was malformed.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrZeroAmount) ||
		errors.Is(err, ErrZeroAddress) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidOp) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrEngineAccount) ||
		errors.Is(err, ErrOverflow)
}

// IsState reports whether the target lock or role set is in the wrong state.
func IsState(err error) bool {
	return errors.Is(err, ErrLockNotFound) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrLockNotMatured) ||
		errors.Is(err, ErrLastAdmin)
}

// IsEconomic reports whether funds, allowance or price limits were exceeded.
func IsEconomic(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrExceedsCeiling) ||
		errors.Is(err, ErrExceedsLock) ||
		errors.Is(err, ErrSlippage) ||
		errors.Is(err, ErrInsufficientReserve) ||
		errors.Is(err, ErrNoFees)
}

// IsOracle reports whether the price feed was unusable.
func IsOracle(err error) bool {
	return errors.Is(err, ErrStalePrice) || errors.Is(err, ErrInvalidPrice)
}

// IsSafety reports whether a circuit breaker or the reentrancy guard fired.
func IsSafety(err error) bool {
	return errors.Is(err, ErrPaused) ||
		errors.Is(err, ErrFunctionPaused) ||
		errors.Is(err, ErrReentrantCall)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrLockNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be
// retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrJournalConflict) ||
		errors.Is(err, ErrStalePrice) ||
		errors.Is(err, ErrExchangeFailed)
}
