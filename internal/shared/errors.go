package shared

import "errors"

var (
	// ErrNotFound indicates resource not found, or hidden from the caller.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller may know the record exists but may not act on it.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed or missing input fields.
	ErrValidation = errors.New("validation failed")
	// ErrParentNotFound indicates a required parent reference could not be resolved.
	ErrParentNotFound = errors.New("parent record not found")
	// ErrDuplicate indicates a unique constraint conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage returns an error message that can be surfaced to clients
// without leaking internals.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "record not found"
	case errors.Is(err, ErrForbidden):
		return "you do not have access to this record"
	case errors.Is(err, ErrValidation):
		return "invalid input"
	case errors.Is(err, ErrDuplicate):
		return "a record with the same identifier already exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid credentials"
	default:
		return "internal error"
	}
}
