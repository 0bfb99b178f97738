package services

import "errors"

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")

	ErrWeakPassword     = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrInvalidInput     = errors.New("invalid input")

	ErrNotInvited     = errors.New("email is not invited")
	ErrAlreadyInvited = errors.New("email already invited")
	ErrAccountExists  = errors.New("account already exists")

	ErrCodeSpaceExhausted = errors.New("code already exists, retry")

	// ErrConfirmationRequired is returned for destructive operations the
	// caller has not confirmed yet. Nothing has been changed.
	ErrConfirmationRequired = errors.New("confirmation required")
)
