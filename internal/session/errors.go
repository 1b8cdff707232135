package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential is returned when an operation needs a stored credential and there is none.
	ErrNoCredential = errors.New("no credential")
	// ErrWeakPassword wraps the password validator's rejection on sign-up.
	ErrWeakPassword = errors.New("password too weak")
	// ErrInvalidAge is returned when the sign-up age is not an integer.
	ErrInvalidAge = errors.New("invalid age")
	// ErrMissingEmail is returned when a password reset is requested without an email.
	ErrMissingEmail = errors.New("email is required")
)

// AuthError reports that the backend rejected a sign-in or sign-up attempt.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
