// Package schedule fires tasks on six-field cron expressions with
// second resolution.
//
// Expressions evaluate in a fixed UTC+8 timezone regardless of the host
// zone. Schedules live in a JSON file that is re-read every tick and
// rewritten atomically, so they can be edited while the service runs and
// survive crashes untorn.
//
// The scheduler deliberately does not persist a "missed runs" backlog: a
// schedule that should have fired while the service was down simply fires
// at its next matching second after startup.
package schedule
