package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenwise/internal/core"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	storage, err := New(dbPath, time.UTC)
	require.NoError(t, err)

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

func seedChild(t *testing.T, s *SQLiteStorage, id string) *core.Child {
	t.Helper()
	child := &core.Child{ID: id, ParentID: "parent_1", Name: "Alice", AgeGroup: "6-9"}
	require.NoError(t, s.CreateChild(context.Background(), child))
	return child
}

func seedDevice(t *testing.T, s *SQLiteStorage, id, childID string) *core.Device {
	t.Helper()
	device := &core.Device{ID: id, ChildID: childID, Name: "Tablet", DeviceType: "tablet"}
	require.NoError(t, s.CreateDevice(context.Background(), device))
	return device
}

func TestChildCRUD(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	child := seedChild(t, storage, "kid_1")

	got, err := storage.GetChild(ctx, "kid_1")
	require.NoError(t, err)
	assert.Equal(t, child.Name, got.Name)
	assert.Equal(t, child.ParentID, got.ParentID)

	got.Name = "Alicia"
	require.NoError(t, storage.UpdateChild(ctx, got))

	updated, err := storage.GetChild(ctx, "kid_1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", updated.Name)

	children, err := storage.ListChildren(ctx)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	require.NoError(t, storage.DeleteChild(ctx, "kid_1"))
	_, err = storage.GetChild(ctx, "kid_1")
	assert.ErrorIs(t, err, core.ErrChildNotFound)
}

func TestChild_NotFound(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	_, err := storage.GetChild(ctx, "kid_missing")
	assert.ErrorIs(t, err, core.ErrChildNotFound)

	err = storage.UpdateChild(ctx, &core.Child{ID: "kid_missing", ParentID: "p", Name: "x"})
	assert.ErrorIs(t, err, core.ErrChildNotFound)

	err = storage.DeleteChild(ctx, "kid_missing")
	assert.ErrorIs(t, err, core.ErrChildNotFound)
}

func TestDeviceCRUD(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")
	seedChild(t, storage, "kid_2")
	seedDevice(t, storage, "dev_1", "kid_1")
	seedDevice(t, storage, "dev_2", "kid_2")

	got, err := storage.GetDevice(ctx, "dev_1")
	require.NoError(t, err)
	assert.Equal(t, "kid_1", got.ChildID)
	assert.Equal(t, "tablet", got.DeviceType)

	all, err := storage.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byChild, err := storage.ListDevicesByChild(ctx, "kid_1")
	require.NoError(t, err)
	require.Len(t, byChild, 1)
	assert.Equal(t, "dev_1", byChild[0].ID)

	require.NoError(t, storage.DeleteDevice(ctx, "dev_1"))
	_, err = storage.GetDevice(ctx, "dev_1")
	assert.ErrorIs(t, err, core.ErrDeviceNotFound)
}

func TestSessionRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")
	seedDevice(t, storage, "dev_1", "kid_1")

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	session := &core.Session{
		ID:          "sess_1",
		ChildID:     "kid_1",
		DeviceID:    "dev_1",
		SessionType: core.SessionTypeScreen,
		StartTime:   start,
	}
	require.NoError(t, storage.CreateSession(ctx, session))

	got, err := storage.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.True(t, got.IsActive())
	assert.True(t, got.StartTime.Equal(start))
	assert.Nil(t, got.EndTime)
	assert.Nil(t, got.DurationMinutes)

	// Stop round trip
	end := start.Add(30 * time.Minute)
	duration := 30
	got.EndTime = &end
	got.DurationMinutes = &duration
	require.NoError(t, storage.UpdateSession(ctx, got))

	stopped, err := storage.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.False(t, stopped.IsActive())
	require.NotNil(t, stopped.EndTime)
	assert.True(t, stopped.EndTime.Equal(end))
	require.NotNil(t, stopped.DurationMinutes)
	assert.Equal(t, 30, *stopped.DurationMinutes)
}

func TestSession_ActiveUniqueness(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")
	seedDevice(t, storage, "dev_1", "kid_1")
	seedDevice(t, storage, "dev_2", "kid_1")

	first := &core.Session{
		ID: "sess_1", ChildID: "kid_1", DeviceID: "dev_1",
		SessionType: core.SessionTypeScreen, StartTime: time.Now(),
	}
	require.NoError(t, storage.CreateSession(ctx, first))

	// Second active session for the same pair trips the partial unique index
	dup := &core.Session{
		ID: "sess_2", ChildID: "kid_1", DeviceID: "dev_1",
		SessionType: core.SessionTypeScreen, StartTime: time.Now(),
	}
	err := storage.CreateSession(ctx, dup)
	assert.ErrorIs(t, err, core.ErrSessionConflict)

	// A different device is fine
	other := &core.Session{
		ID: "sess_3", ChildID: "kid_1", DeviceID: "dev_2",
		SessionType: core.SessionTypeScreen, StartTime: time.Now(),
	}
	require.NoError(t, storage.CreateSession(ctx, other))

	// Closing the first allows a new one on dev_1
	end := time.Now()
	duration := 5
	first.EndTime = &end
	first.DurationMinutes = &duration
	require.NoError(t, storage.UpdateSession(ctx, first))

	again := &core.Session{
		ID: "sess_4", ChildID: "kid_1", DeviceID: "dev_1",
		SessionType: core.SessionTypeScreen, StartTime: time.Now(),
	}
	require.NoError(t, storage.CreateSession(ctx, again))
}

func TestGetActiveSession(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")
	seedDevice(t, storage, "dev_1", "kid_1")

	_, err := storage.GetActiveSession(ctx, "kid_1", "dev_1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	session := &core.Session{
		ID: "sess_1", ChildID: "kid_1", DeviceID: "dev_1",
		SessionType: core.SessionTypeScreen, StartTime: time.Now(),
	}
	require.NoError(t, storage.CreateSession(ctx, session))

	got, err := storage.GetActiveSession(ctx, "kid_1", "dev_1")
	require.NoError(t, err)
	assert.Equal(t, "sess_1", got.ID)

	active, err := storage.ListActiveSessionsByChild(ctx, "kid_1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestPauseIntervals(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")
	seedDevice(t, storage, "dev_1", "kid_1")
	session := &core.Session{
		ID: "sess_1", ChildID: "kid_1", DeviceID: "dev_1",
		SessionType: core.SessionTypeScreen, StartTime: time.Now(),
	}
	require.NoError(t, storage.CreateSession(ctx, session))

	pausedAt := time.Date(2024, 3, 15, 10, 10, 0, 0, time.UTC)
	interval := &core.PauseInterval{
		ID:        "pause_1",
		SessionID: "sess_1",
		PausedAt:  pausedAt,
		Reason:    "dinner",
	}
	require.NoError(t, storage.CreatePauseInterval(ctx, interval))

	intervals, err := storage.ListPauseIntervals(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.True(t, intervals[0].IsOpen())
	assert.Equal(t, "dinner", intervals[0].Reason)

	resumedAt := pausedAt.Add(10 * time.Minute)
	intervals[0].ResumedAt = &resumedAt
	require.NoError(t, storage.UpdatePauseInterval(ctx, intervals[0]))

	resolved, err := storage.ListPauseIntervals(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.False(t, resolved[0].IsOpen())
	assert.Equal(t, 10*time.Minute, resolved[0].Duration())
}

func TestUsageRecord_MissingReadsAsZero(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")

	record, err := storage.GetUsageRecord(ctx, "kid_1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, record.TotalMinutes)
	assert.NotNil(t, record.DeviceTypeMinutes)
}

func TestIncrementUsageRecord(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")
	day := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

	require.NoError(t, storage.IncrementUsageRecord(ctx, "kid_1", day, 30, "tablet"))
	require.NoError(t, storage.IncrementUsageRecord(ctx, "kid_1", day, 15, "tv"))
	require.NoError(t, storage.IncrementUsageRecord(ctx, "kid_1", day, 5, "tablet"))

	record, err := storage.GetUsageRecord(ctx, "kid_1", day)
	require.NoError(t, err)
	assert.Equal(t, 50, record.TotalMinutes)
	assert.Equal(t, 35, record.DeviceTypeMinutes["tablet"])
	assert.Equal(t, 15, record.DeviceTypeMinutes["tv"])

	// A different calendar day is a separate row
	nextDay, err := storage.GetUsageRecord(ctx, "kid_1", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, nextDay.TotalMinutes)
}

func TestUpsertUsageRecord(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	record := &core.UsageRecord{
		ChildID:           "kid_1",
		ActivityDate:      day,
		TotalMinutes:      60,
		DeviceTypeMinutes: map[string]int{"tablet": 60},
	}
	require.NoError(t, storage.UpsertUsageRecord(ctx, record))

	record.TotalMinutes = 90
	require.NoError(t, storage.UpsertUsageRecord(ctx, record))

	got, err := storage.GetUsageRecord(ctx, "kid_1", day)
	require.NoError(t, err)
	assert.Equal(t, 90, got.TotalMinutes)
}

func TestControlPolicy(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")

	_, err := storage.GetControlPolicy(ctx, "kid_1")
	assert.ErrorIs(t, err, core.ErrPolicyNotFound)

	limit := 120
	policy := &core.ControlPolicy{
		ChildID:                 "kid_1",
		Enabled:                 true,
		DailyLimitMinutes:       &limit,
		WarningThresholdMinutes: 10,
		BedtimeStart:            "22:00",
		BedtimeEnd:              "06:00",
	}
	require.NoError(t, storage.UpsertControlPolicy(ctx, policy))

	got, err := storage.GetControlPolicy(ctx, "kid_1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	require.NotNil(t, got.DailyLimitMinutes)
	assert.Equal(t, 120, *got.DailyLimitMinutes)
	assert.Equal(t, "22:00", got.BedtimeStart)

	// Upsert replaces in place
	got.Enabled = false
	got.DailyLimitMinutes = nil
	require.NoError(t, storage.UpsertControlPolicy(ctx, got))

	updated, err := storage.GetControlPolicy(ctx, "kid_1")
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
	assert.Nil(t, updated.DailyLimitMinutes)
}

func TestInstantActions(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")

	expiry := time.Now().Add(30 * time.Minute).UTC()
	duration := 30

	pause := &core.InstantAction{
		ID: "act_1", ChildID: "kid_1",
		ActionType: core.ActionTypePause, IsActive: true, Reason: "homework",
	}
	grant := &core.InstantAction{
		ID: "act_2", ChildID: "kid_1",
		ActionType: core.ActionTypeGrantTime, IsActive: true,
		DurationMinutes: &duration, ExpiresAt: &expiry,
	}
	require.NoError(t, storage.CreateInstantAction(ctx, pause))
	require.NoError(t, storage.CreateInstantAction(ctx, grant))

	all, err := storage.ListInstantActions(ctx, "kid_1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pauses, err := storage.ListActiveInstantActions(ctx, "kid_1", core.ActionTypePause)
	require.NoError(t, err)
	require.Len(t, pauses, 1)
	assert.Equal(t, "act_1", pauses[0].ID)

	grants, err := storage.ListActiveInstantActions(ctx, "kid_1", core.ActionTypeGrantTime)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.NotNil(t, grants[0].DurationMinutes)
	assert.Equal(t, 30, *grants[0].DurationMinutes)
	require.NotNil(t, grants[0].ExpiresAt)

	require.NoError(t, storage.DeactivateInstantAction(ctx, "act_1"))

	pauses, err = storage.ListActiveInstantActions(ctx, "kid_1", core.ActionTypePause)
	require.NoError(t, err)
	assert.Empty(t, pauses)

	// The row survives deactivation for history
	all, err = storage.ListInstantActions(ctx, "kid_1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteChildCascades(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	seedChild(t, storage, "kid_1")
	seedDevice(t, storage, "dev_1", "kid_1")

	session := &core.Session{
		ID: "sess_1", ChildID: "kid_1", DeviceID: "dev_1",
		SessionType: core.SessionTypeScreen, StartTime: time.Now(),
	}
	require.NoError(t, storage.CreateSession(ctx, session))

	require.NoError(t, storage.DeleteChild(ctx, "kid_1"))

	_, err := storage.GetDevice(ctx, "dev_1")
	assert.ErrorIs(t, err, core.ErrDeviceNotFound)
	_, err = storage.GetSession(ctx, "sess_1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}
