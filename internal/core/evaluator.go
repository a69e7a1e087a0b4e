package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EvaluationInput is a snapshot of everything the evaluator needs for one
// child at one instant. The evaluator itself performs no reads or writes.
type EvaluationInput struct {
	ChildID          string
	Policy           *ControlPolicy
	UsedMinutes      int
	GrantMinutes     int // active, unexpired grant-time minutes to add to the limit
	HasActiveSession bool
	ReferenceTime    time.Time
}

// LimitEvaluator classifies a child's aggregated usage and the wall-clock
// time against the control policy. Evaluate is a pure function: missing or
// unset policy fields mean "this check does not apply", never an error.
type LimitEvaluator struct {
	timezone *time.Location
}

// NewLimitEvaluator creates a new limit evaluator
func NewLimitEvaluator(timezone *time.Location) *LimitEvaluator {
	if timezone == nil {
		timezone = time.UTC
	}
	return &LimitEvaluator{timezone: timezone}
}

// Evaluate returns zero or more warnings for the given snapshot
func (e *LimitEvaluator) Evaluate(in EvaluationInput) []Warning {
	var warnings []Warning

	if w := e.evaluateDailyLimit(in); w != nil {
		warnings = append(warnings, *w)
	}
	if w := e.evaluateBedtime(in); w != nil {
		warnings = append(warnings, *w)
	}

	return warnings
}

func (e *LimitEvaluator) evaluateDailyLimit(in EvaluationInput) *Warning {
	if in.Policy == nil || !in.Policy.Enabled || in.Policy.DailyLimitMinutes == nil {
		return nil
	}

	limit := *in.Policy.DailyLimitMinutes + in.GrantMinutes
	remaining := limit - in.UsedMinutes

	if remaining <= 0 {
		over := -remaining
		return &Warning{
			Type:     WarningLimitExceeded,
			Severity: SeverityCritical,
			ChildID:  in.ChildID,
			Message:  fmt.Sprintf("Daily screen time limit exceeded by %d minutes", over),
			Minutes:  over,
		}
	}

	if remaining <= in.Policy.Threshold() {
		return &Warning{
			Type:     WarningApproachingLimit,
			Severity: SeverityWarning,
			ChildID:  in.ChildID,
			Message:  fmt.Sprintf("%d minutes of screen time remaining today", remaining),
			Minutes:  remaining,
		}
	}

	return nil
}

func (e *LimitEvaluator) evaluateBedtime(in EvaluationInput) *Warning {
	if in.Policy == nil || in.Policy.BedtimeStart == "" || in.Policy.BedtimeEnd == "" {
		return nil
	}

	start, err := ParseMinuteOfDay(in.Policy.BedtimeStart)
	if err != nil {
		return nil
	}
	end, err := ParseMinuteOfDay(in.Policy.BedtimeEnd)
	if err != nil {
		return nil
	}

	local := in.ReferenceTime.In(e.timezone)
	current := local.Hour()*60 + local.Minute()

	if !InBedtimeWindow(start, end, current) {
		return nil
	}
	if !in.HasActiveSession {
		return nil
	}

	return &Warning{
		Type:     WarningBedtimeViolation,
		Severity: SeverityCritical,
		ChildID:  in.ChildID,
		Message: fmt.Sprintf("Device in use during bedtime (%s - %s)",
			in.Policy.BedtimeStart, in.Policy.BedtimeEnd),
	}
}

// InBedtimeWindow reports whether the current minute-of-day falls inside the
// bedtime window. A window whose end precedes its start crosses midnight:
// in bedtime when current >= start OR current < end. Otherwise the window is
// same-day: start <= current < end.
func InBedtimeWindow(startMinutes, endMinutes, currentMinutes int) bool {
	if endMinutes < startMinutes {
		return currentMinutes >= startMinutes || currentMinutes < endMinutes
	}
	return currentMinutes >= startMinutes && currentMinutes < endMinutes
}

// ParseMinuteOfDay converts an "HH:MM" time-of-day string to minutes since
// midnight. Malformed input fails with ErrInvalidTimeOfDay.
func ParseMinuteOfDay(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	return hour*60 + minute, nil
}
