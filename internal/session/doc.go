// Package session provides interactive exchange channels with the engine.
//
// Sessions are a thin view over the shared engine log: each one remembers
// where the log ended when it was created and reads forward from there,
// so two sessions never see each other's history. State is in-memory
// only; a service restart drops all sessions, which is fine because the
// engine they were talking to was restarted too.
package session
