package shared

import "errors"

var (
	// ErrNotFound indicates the id does not resolve to a record.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates malformed or out-of-policy input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates the operation is not permitted for the
	// entity's current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrForbidden indicates the caller is neither the resource owner nor
	// an administrator.
	ErrForbidden = errors.New("forbidden")
	// ErrDuplicate indicates a unique-key collision on creation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
