package core

import (
	"context"
	"fmt"
	"time"
)

// AggregatorStorage defines the storage reads needed for usage aggregation
type AggregatorStorage interface {
	// GetUsageRecord returns the daily aggregate, or a zero-valued record
	// when none exists for that day.
	GetUsageRecord(ctx context.Context, childID string, date time.Time) (*UsageRecord, error)
	ListActiveSessionsByChild(ctx context.Context, childID string) ([]*Session, error)
	ListPauseIntervals(ctx context.Context, sessionID string) ([]*PauseInterval, error)
}

// TodayUsage breaks down a child's consumed time for one day
type TodayUsage struct {
	RecordedMinutes int // from closed daily usage records
	ActiveMinutes   int // elapsed time of currently active sessions
	ActiveSessions  int
	TotalMinutes    int // recorded + active
}

// UsageAggregator computes cumulative usage for "today" by merging closed
// daily records with the elapsed time of in-progress sessions. The result is
// recomputed on every call and never stored.
type UsageAggregator struct {
	storage  AggregatorStorage
	timezone *time.Location
}

// NewUsageAggregator creates a new usage aggregator
func NewUsageAggregator(storage AggregatorStorage, timezone *time.Location) *UsageAggregator {
	if timezone == nil {
		timezone = time.UTC
	}
	return &UsageAggregator{
		storage:  storage,
		timezone: timezone,
	}
}

// ElapsedSeconds calculates how many seconds of a session count toward usage
// at the reference time. While the session is paused the clock is frozen at
// the pause start; resolved pause intervals are subtracted. Never negative.
func ElapsedSeconds(session *Session, intervals []*PauseInterval, ref time.Time) int64 {
	end := ref
	if session.EndTime != nil && session.EndTime.Before(ref) {
		end = *session.EndTime
	}

	var paused time.Duration
	for _, iv := range intervals {
		if iv.IsOpen() {
			// Frozen at pause start; open intervals contribute nothing yet
			if iv.PausedAt.Before(end) {
				end = iv.PausedAt
			}
			continue
		}
		paused += iv.Duration()
	}

	elapsed := end.Sub(session.StartTime) - paused
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / time.Second)
}

// TodayTotal computes the child's consumed minutes for the calendar day of
// the reference time: the stored daily record plus elapsed time of every
// active session.
func (a *UsageAggregator) TodayTotal(ctx context.Context, childID string, ref time.Time) (*TodayUsage, error) {
	date := a.normalizeDate(ref)

	record, err := a.storage.GetUsageRecord(ctx, childID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage record for child %s: %w", childID, err)
	}

	sessions, err := a.storage.ListActiveSessionsByChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions for child %s: %w", childID, err)
	}

	activeMinutes := 0
	for _, session := range sessions {
		intervals, err := a.storage.ListPauseIntervals(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list pause intervals for session %s: %w", session.ID, err)
		}
		activeMinutes += int(ElapsedSeconds(session, intervals, ref) / 60)
	}

	return &TodayUsage{
		RecordedMinutes: record.TotalMinutes,
		ActiveMinutes:   activeMinutes,
		ActiveSessions:  len(sessions),
		TotalMinutes:    record.TotalMinutes + activeMinutes,
	}, nil
}

// TodayTotalMinutes is a convenience wrapper returning only the total
func (a *UsageAggregator) TodayTotalMinutes(ctx context.Context, childID string, ref time.Time) (int, error) {
	usage, err := a.TodayTotal(ctx, childID, ref)
	if err != nil {
		return 0, err
	}
	return usage.TotalMinutes, nil
}

// normalizeDate normalizes a time to start of day in the configured timezone
func (a *UsageAggregator) normalizeDate(t time.Time) time.Time {
	inTZ := t.In(a.timezone)
	year, month, day := inTZ.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, a.timezone)
}
