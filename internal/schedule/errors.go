package schedule

import "errors"

var (
	// ErrInvalidCron indicates a cron expression failed to parse.
	ErrInvalidCron = errors.New("invalid cron expression")

	// ErrNoUpcomingRun indicates no matching time exists within the
	// search horizon.
	ErrNoUpcomingRun = errors.New("no upcoming run within horizon")

	// ErrScheduleNotFound indicates no schedule exists with the given ID.
	ErrScheduleNotFound = errors.New("schedule not found")
)
