// Package task defines tasks, their steps, and the runner that executes
// them against a device and the engine.
//
// A task is an ordered step list. Execution is fail-fast: the first step
// that fails halts the run, and the results up to and including the
// failure are returned. Steps never run out of order and a failed step is
// never skipped over.
//
// String fields support {key} placeholders rendered from run parameters.
// Rendering fails closed (see Render), so a typo in a template reaches
// the device as literal text rather than as a half-built command.
package task
