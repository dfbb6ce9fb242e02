package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	valid := []string{
		"* * * * * *",
		"0 */5 * * * *",
		"30 0 12 * * *",
		"0 0 12 * * 0",
		"0 0 12 * * 7",
		"0 15,45 9-17 * * 1-5",
		"0 0 */2 1,15 * *",
		"0-59/10 * * * * *",
		"5/2 * * * * *",
	}
	for _, expr := range valid {
		if _, err := Parse(expr); err != nil {
			t.Errorf("Parse(%q) error = %v, want nil", expr, err)
		}
	}

	invalid := []string{
		"",
		"* * * * *",
		"* * * * * * *",
		"60 * * * * *",
		"* 60 * * * *",
		"* * 24 * * *",
		"* * * 0 * *",
		"* * * 32 * *",
		"* * * * 13 *",
		"* * * * * 8",
		"5-1 * * * * *",
		"*/0 * * * * *",
		"a * * * * *",
		"1,,2 * * * * *",
		"5/x * * * * *",
	}
	for _, expr := range invalid {
		if _, err := Parse(expr); !errors.Is(err, ErrInvalidCron) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidCron", expr, err)
		}
	}
}

func TestMatches_EveryFiveMinutes(t *testing.T) {
	expr, err := Parse("0 */5 * * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, 8, 29, 10, 0, 0, 0, Location), true},
		{time.Date(2026, 8, 29, 10, 5, 0, 0, Location), true},
		{time.Date(2026, 8, 29, 10, 55, 0, 0, Location), true},
		{time.Date(2026, 8, 29, 10, 5, 1, 0, Location), false},
		{time.Date(2026, 8, 29, 10, 3, 0, 0, Location), false},
	}
	for _, tt := range tests {
		if got := expr.Matches(tt.at); got != tt.want {
			t.Errorf("Matches(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestMatches_StepOnSingleValue(t *testing.T) {
	// "5/2" in the seconds field is just second 5; the step has nothing
	// to stride over.
	expr, err := Parse("5/2 * * * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !expr.Matches(time.Date(2026, 8, 29, 10, 0, 5, 0, Location)) {
		t.Error("second 5 should match")
	}
	for _, sec := range []int{3, 7, 9} {
		if expr.Matches(time.Date(2026, 8, 29, 10, 0, sec, 0, Location)) {
			t.Errorf("second %d should not match", sec)
		}
	}
}

func TestMatches_SundayAliases(t *testing.T) {
	// 2026-08-30 is a Sunday.
	sundayNoon := time.Date(2026, 8, 30, 12, 0, 0, 0, Location)
	mondayNoon := time.Date(2026, 8, 31, 12, 0, 0, 0, Location)

	for _, raw := range []string{"0 0 12 * * 0", "0 0 12 * * 7"} {
		expr, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", raw, err)
		}
		if !expr.Matches(sundayNoon) {
			t.Errorf("%q should match Sunday noon", raw)
		}
		if expr.Matches(mondayNoon) {
			t.Errorf("%q should not match Monday noon", raw)
		}
	}
}

func TestMatches_EvaluatesInFixedZone(t *testing.T) {
	expr, err := Parse("0 0 12 * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// 04:00 UTC is noon in UTC+8.
	if !expr.Matches(time.Date(2026, 8, 29, 4, 0, 0, 0, time.UTC)) {
		t.Error("04:00 UTC should match noon in the schedule zone")
	}
	if expr.Matches(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)) {
		t.Error("12:00 UTC is 20:00 in the schedule zone and should not match")
	}
}

func TestNextRun_StrictlyAfter(t *testing.T) {
	expr, err := Parse("0 0 12 * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// From exactly noon, the next run is tomorrow's noon.
	ref := time.Date(2026, 8, 29, 12, 0, 0, 0, Location)
	next, err := expr.NextRun(ref)
	if err != nil {
		t.Fatalf("NextRun() error = %v", err)
	}
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, Location)
	if !next.Equal(want) {
		t.Errorf("NextRun() = %s, want %s", next, want)
	}
}

func TestNextRun_SecondResolution(t *testing.T) {
	expr, err := Parse("*/15 * * * * *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ref := time.Date(2026, 8, 29, 10, 0, 7, 0, Location)
	next, err := expr.NextRun(ref)
	if err != nil {
		t.Fatalf("NextRun() error = %v", err)
	}
	if next.Second() != 15 {
		t.Errorf("NextRun() second = %d, want 15", next.Second())
	}
}

func TestNextRun_NoMatchWithinHorizon(t *testing.T) {
	// February 31st never exists.
	expr, err := Parse("0 0 12 31 2 *")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	_, err = expr.NextRun(time.Date(2026, 8, 29, 0, 0, 0, 0, Location))
	if !errors.Is(err, ErrNoUpcomingRun) {
		t.Errorf("NextRun() error = %v, want ErrNoUpcomingRun", err)
	}
}
