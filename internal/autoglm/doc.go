// Package autoglm supervises the external AutoGLM engine process.
//
// The engine is a separate program that drives a phone through a language
// model. This package owns its lifecycle: spawning it with the configured
// model parameters, tracking it through a pid file that survives service
// restarts, tailing its log, feeding its stdin, and tearing it down with
// escalating signals.
//
// Two identities matter here. An engine this service spawned has a live
// stdin pipe and can receive tasks; an engine inherited from a previous
// service instance is visible through the pid file and can be observed or
// stopped, but its stdin is unreachable (ErrHandleUnavailable). Callers
// that need to send input recover by stopping and restarting the engine.
//
// All engine output, plus audit lines appended by task execution, lands in
// a single append-only log file. Readers address it by byte offset via
// TailLog, which clamps out-of-range offsets rather than erroring, so
// pollers survive truncation.
package autoglm
