package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Location is the fixed timezone all cron expressions evaluate in. Devices
// and their owners live in UTC+8; evaluating schedules in server-local
// time would shift every run when the host timezone changes.
var Location = time.FixedZone("UTC+8", 8*60*60)

// horizon bounds the forward scan in NextRun. Any satisfiable expression
// matches within 31 days; one that doesn't is treated as never firing.
const horizon = 31 * 24 * time.Hour

// fieldSpec describes one cron field's position and value range.
type fieldSpec struct {
	name string
	min  int
	max  int
}

var fieldSpecs = [6]fieldSpec{
	{"second", 0, 59},
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 7},
}

// Expression is a parsed six-field cron expression:
//
//	second minute hour day-of-month month day-of-week
//
// Each field accepts *, a value, a range (a-b), a list (a,b,c), and an
// optional /step suffix on * or a range. Day-of-week runs Sunday=0 with 7
// accepted as an alias for Sunday.
type Expression struct {
	raw    string
	fields [6]map[int]bool
}

// Parse compiles a cron expression. Every error wraps ErrInvalidCron.
func Parse(expr string) (*Expression, error) {
	parts := strings.Fields(expr)
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: want 6 fields, got %d", ErrInvalidCron, len(parts))
	}

	e := &Expression{raw: expr}
	for i, part := range parts {
		spec := fieldSpecs[i]
		values, err := parseField(part, spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %q: %v", ErrInvalidCron, spec.name, part, err)
		}
		e.fields[i] = values
	}

	// 7 is Sunday too.
	if e.fields[5][7] {
		e.fields[5][0] = true
		delete(e.fields[5], 7)
	}
	return e, nil
}

// String returns the original expression text.
func (e *Expression) String() string { return e.raw }

// Matches reports whether t, viewed in the schedule timezone, satisfies
// the expression at second resolution.
func (e *Expression) Matches(t time.Time) bool {
	t = t.In(Location)
	return e.fields[0][t.Second()] &&
		e.fields[1][t.Minute()] &&
		e.fields[2][t.Hour()] &&
		e.fields[3][t.Day()] &&
		e.fields[4][int(t.Month())] &&
		e.fields[5][int(t.Weekday())]
}

// NextRun returns the first matching time strictly after ref, scanning
// second by second up to the horizon.
func (e *Expression) NextRun(ref time.Time) (time.Time, error) {
	t := ref.In(Location).Truncate(time.Second).Add(time.Second)
	end := t.Add(horizon)

	for ; t.Before(end); t = t.Add(time.Second) {
		if e.Matches(t) {
			return t, nil
		}
	}
	return time.Time{}, ErrNoUpcomingRun
}

// Validate checks an expression without keeping the parse result.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// parseField expands one field into its matching value set. An expansion
// yielding no values (e.g. a backwards range) is an error, never an
// always-false match.
func parseField(part string, spec fieldSpec) (map[int]bool, error) {
	values := make(map[int]bool)

	for _, item := range strings.Split(part, ",") {
		if item == "" {
			return nil, fmt.Errorf("empty list item")
		}

		item, step, err := splitStep(item)
		if err != nil {
			return nil, err
		}

		lo, hi := spec.min, spec.max
		switch {
		case item == "*":
			// full range
		case strings.Contains(item, "-"):
			bounds := strings.SplitN(item, "-", 2)
			if lo, err = parseValue(bounds[0], spec); err != nil {
				return nil, err
			}
			if hi, err = parseValue(bounds[1], spec); err != nil {
				return nil, err
			}
			if lo > hi {
				return nil, fmt.Errorf("range %d-%d is backwards", lo, hi)
			}
		default:
			// A step on a single value degenerates to that value: "5/2"
			// matches only 5.
			v, err := parseValue(item, spec)
			if err != nil {
				return nil, err
			}
			lo, hi = v, v
		}

		for v := lo; v <= hi; v += step {
			values[v] = true
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("expands to no values")
	}
	return values, nil
}

func splitStep(item string) (string, int, error) {
	base, stepStr, found := strings.Cut(item, "/")
	if !found {
		return item, 1, nil
	}
	step, err := strconv.Atoi(stepStr)
	if err != nil || step <= 0 {
		return "", 0, fmt.Errorf("bad step %q", stepStr)
	}
	return base, step, nil
}

func parseValue(s string, spec fieldSpec) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, spec.min, spec.max)
	}
	return v, nil
}
