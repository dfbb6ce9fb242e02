// Package database provides SQLite storage for the core service.
//
// It wraps database/sql with connection setup (WAL mode, busy timeout,
// restrictive file permissions) and an embedded-migration runner. Schema
// migrations live in the top-level migrations package and are compiled
// into the binary, so a deployment is a single executable plus its
// config file.
//
// SQLite runs with a single pooled connection: the service is the only
// writer and the busy timeout covers any short-lived contention from
// concurrent reads.
package database
