package session

import "errors"

// Sentinel errors for the session package.
var (
	// ErrSessionNotFound is returned when sending to a session that does
	// not exist or has been evicted.
	ErrSessionNotFound = errors.New("session not found")
)
