// Package api implements the HTTP REST API and WebSocket server for the
// automation service.
//
// This package provides:
//   - REST endpoints for task CRUD and immediate task execution
//   - Schedule CRUD with computed next-run times
//   - Engine process control (start, stop, status, logs, stdin input)
//   - Interactive session endpoints over the shared engine log
//   - Connected device listing via adb
//   - A WebSocket endpoint streaming the engine log live
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//
// # Security
//
// The service has a single operator account. POST /auth/login verifies the
// password against the argon2id hash in the security config and returns a
// JWT; every other endpoint except the health check requires that token as
// a bearer header. The WebSocket endpoint accepts the token as a query
// parameter since browsers cannot set headers on websocket upgrades.
package api
