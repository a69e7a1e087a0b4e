package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenwise/internal/core"
)

type mockSink struct {
	sent     []Notification
	failNext bool
}

func (m *mockSink) Notify(ctx context.Context, n Notification) error {
	if m.failNext {
		m.failNext = false
		return errors.New("sink unavailable")
	}
	m.sent = append(m.sent, n)
	return nil
}

func newWarning(childID string, wt core.WarningType) core.Warning {
	return core.Warning{
		Type:     wt,
		Severity: core.SeverityWarning,
		ChildID:  childID,
		Message:  "test warning",
	}
}

func TestPublish_SendsFirstWarning(t *testing.T) {
	sink := &mockSink{}
	clock := &core.MockClock{CurrentTime: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	deduper := NewDeduper(sink, 5*time.Minute, clock, nil)

	sent, err := deduper.Publish(context.Background(), newWarning("kid_1", core.WarningApproachingLimit))
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "kid_1-approaching_limit", sink.sent[0].DedupKey)
}

func TestPublish_SuppressesInsideCooldown(t *testing.T) {
	sink := &mockSink{}
	clock := &core.MockClock{CurrentTime: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	deduper := NewDeduper(sink, 5*time.Minute, clock, nil)

	w := newWarning("kid_1", core.WarningApproachingLimit)

	sent, err := deduper.Publish(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, sent)

	clock.Advance(2 * time.Minute)
	sent, err = deduper.Publish(context.Background(), w)
	require.NoError(t, err)
	assert.False(t, sent)

	assert.Len(t, sink.sent, 1)
}

func TestPublish_ResendsAfterCooldown(t *testing.T) {
	sink := &mockSink{}
	clock := &core.MockClock{CurrentTime: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	deduper := NewDeduper(sink, 5*time.Minute, clock, nil)

	w := newWarning("kid_1", core.WarningLimitExceeded)

	_, err := deduper.Publish(context.Background(), w)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	sent, err := deduper.Publish(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Len(t, sink.sent, 2)
}

// Suppressed publishes must not slide the cooldown window forward
func TestPublish_SuppressionDoesNotExtendCooldown(t *testing.T) {
	sink := &mockSink{}
	clock := &core.MockClock{CurrentTime: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	deduper := NewDeduper(sink, 5*time.Minute, clock, nil)

	w := newWarning("kid_1", core.WarningApproachingLimit)

	_, err := deduper.Publish(context.Background(), w)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	sent, err := deduper.Publish(context.Background(), w)
	require.NoError(t, err)
	assert.False(t, sent)

	// One minute later the original window has elapsed
	clock.Advance(time.Minute)
	sent, err = deduper.Publish(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestPublish_DistinctKeysIndependent(t *testing.T) {
	sink := &mockSink{}
	clock := &core.MockClock{CurrentTime: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	deduper := NewDeduper(sink, 5*time.Minute, clock, nil)

	warnings := []core.Warning{
		newWarning("kid_1", core.WarningApproachingLimit),
		newWarning("kid_1", core.WarningBedtimeViolation),
		newWarning("kid_2", core.WarningApproachingLimit),
	}

	for _, w := range warnings {
		sent, err := deduper.Publish(context.Background(), w)
		require.NoError(t, err)
		assert.True(t, sent)
	}

	assert.Len(t, sink.sent, 3)
}

// A sink failure leaves the key unmarked so the next cycle retries
func TestPublish_SinkFailureRetries(t *testing.T) {
	sink := &mockSink{failNext: true}
	clock := &core.MockClock{CurrentTime: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	deduper := NewDeduper(sink, 5*time.Minute, clock, nil)

	w := newWarning("kid_1", core.WarningLimitExceeded)

	sent, err := deduper.Publish(context.Background(), w)
	require.Error(t, err)
	assert.False(t, sent)

	// Immediate retry succeeds; no cooldown was recorded for the failure
	sent, err = deduper.Publish(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, sink.sent, 1)
}

func TestNotificationFor_Severity(t *testing.T) {
	routine := notificationFor(core.Warning{
		Type:     core.WarningApproachingLimit,
		Severity: core.SeverityWarning,
		ChildID:  "kid_1",
	})
	assert.Equal(t, "Approaching daily limit", routine.Title)
	assert.False(t, routine.RequireInteraction)

	urgent := notificationFor(core.Warning{
		Type:     core.WarningBedtimeViolation,
		Severity: core.SeverityCritical,
		ChildID:  "kid_1",
	})
	assert.Equal(t, "Bedtime violation", urgent.Title)
	assert.True(t, urgent.RequireInteraction)
}
