// Package adb wraps the Android Debug Bridge command-line tool.
//
// The client shells out to the adb binary rather than speaking the adb
// server protocol directly: adb is already a hard runtime dependency for
// the automation engine, and the binary handles device tracking, transport
// negotiation, and authorization state far more reliably than a
// reimplementation would.
//
// Input that ends up on a device shell is validated here. Key events must
// match a strict pattern, package and activity names are restricted to the
// charset Android permits, and free text is quoted before injection. A rule
// of thumb for callers: if a user-supplied string reaches a device, it goes
// through one of these methods, never through Shell directly.
package adb
