package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"screenwise/internal/idgen"
)

// LifecycleStorage defines the storage operations the lifecycle manager needs
type LifecycleStorage interface {
	GetChild(ctx context.Context, id string) (*Child, error)
	GetDevice(ctx context.Context, id string) (*Device, error)

	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// GetActiveSession returns the active session for a (child, device) pair,
	// or ErrSessionNotFound when there is none.
	GetActiveSession(ctx context.Context, childID, deviceID string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error

	CreatePauseInterval(ctx context.Context, interval *PauseInterval) error
	ListPauseIntervals(ctx context.Context, sessionID string) ([]*PauseInterval, error)
	UpdatePauseInterval(ctx context.Context, interval *PauseInterval) error

	IncrementUsageRecord(ctx context.Context, childID string, date time.Time, minutes int, deviceType string) error
}

// SessionLifecycle starts, stops, pauses and resumes device-usage sessions.
//
// The "one active session per (child, device)" invariant is enforced twice:
// starts for the same pair serialize on a per-pair mutex before the
// read-check, and the storage layer carries a matching uniqueness constraint
// so concurrent writers from other processes also fail with ErrSessionConflict.
type SessionLifecycle struct {
	storage LifecycleStorage
	clock   Clock
	logger  *slog.Logger

	mu         sync.Mutex
	startLocks map[string]*sync.Mutex
}

// NewSessionLifecycle creates a new session lifecycle manager
func NewSessionLifecycle(storage LifecycleStorage, clock Clock, logger *slog.Logger) *SessionLifecycle {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionLifecycle{
		storage:    storage,
		clock:      clock,
		logger:     logger,
		startLocks: make(map[string]*sync.Mutex),
	}
}

// pairLock returns the mutex serializing starts for one (child, device) pair
func (l *SessionLifecycle) pairLock(childID, deviceID string) *sync.Mutex {
	key := childID + "|" + deviceID

	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.startLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.startLocks[key] = lock
	}
	return lock
}

// Start begins a new session for a child on one of their devices.
// Fails with ErrSessionConflict when an active session already exists for the
// pair, and with ErrDeviceOwnership when the device belongs to another child.
func (l *SessionLifecycle) Start(ctx context.Context, childID, deviceID string, sessionType SessionType) (*Session, error) {
	if childID == "" {
		return nil, ErrInvalidChildID
	}
	if deviceID == "" {
		return nil, ErrInvalidDeviceID
	}
	if sessionType == "" {
		sessionType = SessionTypeScreen
	}

	child, err := l.storage.GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get child %s: %w", childID, err)
	}

	device, err := l.storage.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	if device.ChildID != child.ID {
		return nil, ErrDeviceOwnership
	}

	lock := l.pairLock(childID, deviceID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.storage.GetActiveSession(ctx, childID, deviceID)
	if err == nil {
		return nil, fmt.Errorf("%w: session %s", ErrSessionConflict, existing.ID)
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check active sessions: %w", err)
	}

	session := &Session{
		ID:          idgen.NewSession(),
		ChildID:     childID,
		DeviceID:    deviceID,
		SessionType: sessionType,
		StartTime:   l.clock.Now(),
	}

	if err := l.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	l.logger.Info("Session started",
		"session_id", session.ID,
		"child_id", childID,
		"device_id", deviceID,
		"session_type", string(sessionType),
	)

	return session, nil
}

// Stop ends an active session. The transition is terminal: a stopped session
// is never reopened, and stopping twice fails with ErrSessionAlreadyStopped
// instead of overwriting the recorded duration. Any open pause interval is
// resolved at the stop instant, and the billed duration subtracts all pauses.
func (l *SessionLifecycle) Stop(ctx context.Context, sessionID string) (*Session, error) {
	session, err := l.storage.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !session.IsActive() {
		return nil, ErrSessionAlreadyStopped
	}

	now := l.clock.Now()

	intervals, err := l.storage.ListPauseIntervals(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pause intervals for session %s: %w", sessionID, err)
	}

	for _, iv := range intervals {
		if iv.IsOpen() {
			resumedAt := now
			iv.ResumedAt = &resumedAt
			if err := l.storage.UpdatePauseInterval(ctx, iv); err != nil {
				return nil, fmt.Errorf("failed to resolve pause interval %s: %w", iv.ID, err)
			}
		}
	}

	duration := int(ElapsedSeconds(session, intervals, now) / 60)

	session.EndTime = &now
	session.DurationMinutes = &duration

	if err := l.storage.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	// Fold the closed session into the daily aggregate so "today" reads stay
	// a cheap record lookup plus active sessions.
	deviceType := ""
	if device, err := l.storage.GetDevice(ctx, session.DeviceID); err == nil {
		deviceType = device.DeviceType
	}
	if err := l.storage.IncrementUsageRecord(ctx, session.ChildID, now, duration, deviceType); err != nil {
		return nil, fmt.Errorf("failed to record usage for session %s: %w", sessionID, err)
	}

	l.logger.Info("Session stopped",
		"session_id", session.ID,
		"child_id", session.ChildID,
		"duration_minutes", duration,
	)

	return session, nil
}

// Pause freezes an active session's usage clock by opening a pause interval.
// Fails with ErrSessionAlreadyPaused when an interval is already open.
func (l *SessionLifecycle) Pause(ctx context.Context, sessionID, reason string) (*PauseInterval, error) {
	session, err := l.storage.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, ErrSessionAlreadyStopped
	}

	intervals, err := l.storage.ListPauseIntervals(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pause intervals for session %s: %w", sessionID, err)
	}
	for _, iv := range intervals {
		if iv.IsOpen() {
			return nil, ErrSessionAlreadyPaused
		}
	}

	interval := &PauseInterval{
		ID:        idgen.NewPauseInterval(),
		SessionID: sessionID,
		PausedAt:  l.clock.Now(),
		Reason:    reason,
	}

	if err := l.storage.CreatePauseInterval(ctx, interval); err != nil {
		return nil, fmt.Errorf("failed to save pause interval: %w", err)
	}

	l.logger.Info("Session paused",
		"session_id", sessionID,
		"reason", reason,
	)

	return interval, nil
}

// Resume closes the open pause interval so the usage clock counts again.
// Fails with ErrSessionNotPaused when there is no open interval.
func (l *SessionLifecycle) Resume(ctx context.Context, sessionID string) (*PauseInterval, error) {
	session, err := l.storage.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, ErrSessionAlreadyStopped
	}

	intervals, err := l.storage.ListPauseIntervals(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pause intervals for session %s: %w", sessionID, err)
	}

	for _, iv := range intervals {
		if iv.IsOpen() {
			resumedAt := l.clock.Now()
			iv.ResumedAt = &resumedAt
			if err := l.storage.UpdatePauseInterval(ctx, iv); err != nil {
				return nil, fmt.Errorf("failed to resolve pause interval %s: %w", iv.ID, err)
			}

			l.logger.Info("Session resumed", "session_id", sessionID)
			return iv, nil
		}
	}

	return nil, ErrSessionNotPaused
}

// GetSession retrieves a session by ID
func (l *SessionLifecycle) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return l.storage.GetSession(ctx, sessionID)
}
