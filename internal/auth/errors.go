package auth

import "errors"

var (
	// ErrInvalidCredentials indicates a login attempt with the wrong
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid indicates a JWT that failed signature, expiry, or
	// shape validation.
	ErrTokenInvalid = errors.New("invalid token")
)
