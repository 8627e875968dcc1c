package subvault

import (
	"errors"
	"fmt"
)

// Error categories. Every sentinel below wraps exactly one of them, so
// callers can match a specific failure or a whole class with errors.Is.
var (
	ErrValidation   = errors.New("subvault: validation failed")
	ErrUnauthorized = errors.New("subvault: unauthorized")
	ErrNotFound     = errors.New("subvault: not found")
	ErrConflict     = errors.New("subvault: state conflict")
	ErrFunds        = errors.New("subvault: funds movement failed")
)

// Sentinel errors for specific failure scenarios.
var (
	// Not found
	ErrProviderNotFound = kind(ErrNotFound, "provider not found")
	ErrPlanNotFound     = kind(ErrNotFound, "plan not found")
	ErrUserNotFound     = kind(ErrNotFound, "user not found")
	ErrGroupNotFound    = kind(ErrNotFound, "no records with provider")
	ErrRecordNotFound   = kind(ErrNotFound, "subscription record not found")
	ErrUsernameNotFound = kind(ErrNotFound, "username not found")
	ErrBucketNotFound   = kind(ErrNotFound, "ledger bucket not found")

	// Validation
	ErrWrongPayment     = kind(ErrValidation, "payment does not match plan price")
	ErrInsufficientFee  = kind(ErrValidation, "payment below registration fee")
	ErrPlanDisabled     = kind(ErrValidation, "plan is disabled")
	ErrMetadataMismatch = kind(ErrValidation, "metadata does not match plan characteristics")
	ErrInvalidTerms     = kind(ErrValidation, "invalid plan terms")
	ErrInvalidUsername  = kind(ErrValidation, "invalid username")
	ErrMissingIdentity  = kind(ErrValidation, "missing account identity")

	// Authorization
	ErrNotProvider      = kind(ErrUnauthorized, "caller is not a registered provider")
	ErrWrongPassphrase  = kind(ErrUnauthorized, "passphrase does not match")
	ErrUsernameNotOwned = kind(ErrUnauthorized, "username belongs to another account")

	// State conflict
	ErrAlreadyActive  = kind(ErrConflict, "subscription already active")
	ErrNotRenewable   = kind(ErrConflict, "subscription cannot be renewed")
	ErrNotRefundable  = kind(ErrConflict, "subscription cannot be refunded")
	ErrProviderExists = kind(ErrConflict, "provider already registered")
	ErrUsernameTaken  = kind(ErrConflict, "username already taken")

	// Funds
	ErrSettlementFailed = kind(ErrFunds, "settlement failed")

	// Store
	ErrStoreClosed       = errors.New("subvault: store is closed")
	ErrTransactionFailed = errors.New("subvault: transaction failed")
	ErrMigrationFailed   = errors.New("subvault: migration failed")
	ErrLedgerCorrupt     = errors.New("subvault: ledger corrupt")
)

type kindError struct {
	msg    string
	parent error
}

func kind(parent error, msg string) error {
	return &kindError{msg: "subvault: " + msg, parent: parent}
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("subvault: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap places every ValidationError in the validation category.
func (e ValidationError) Unwrap() error { return ErrValidation }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "subvault: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("subvault: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

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

// Err returns nil when empty, the lone error when there is one, and the
// MultiError otherwise.
func (e MultiError) Err() error {
	switch len(e.Errors) {
	case 0:
		return nil
	case 1:
		return e.Errors[0]
	default:
		return e
	}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation returns true if the error rejects the shape of a request.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsUnauthorized returns true if the caller may not perform the action.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsConflict returns true if the request contradicts the current state.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsFunds returns true if a settlement was rejected.
func IsFunds(err error) bool { return errors.Is(err, ErrFunds) }

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}
