package adb

import "errors"

var (
	// ErrNoDevice indicates no online device was found to run against.
	ErrNoDevice = errors.New("no online device found")

	// ErrAmbiguousDevice indicates multiple online devices were found and
	// no serial was configured to pick between them.
	ErrAmbiguousDevice = errors.New("multiple online devices, device id required")

	// ErrDeviceOffline indicates the requested device exists but is not
	// in the "device" state (offline, unauthorized, etc).
	ErrDeviceOffline = errors.New("device is not online")

	// ErrInvalidKeyEvent indicates a key event name failed validation.
	ErrInvalidKeyEvent = errors.New("invalid key event")

	// ErrInvalidComponent indicates a package or activity name contains
	// characters outside the allowed set.
	ErrInvalidComponent = errors.New("invalid package or activity name")
)
