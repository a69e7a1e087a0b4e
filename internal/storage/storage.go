package storage

import (
	"context"
	"time"

	"screenwise/internal/core"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Children
	CreateChild(ctx context.Context, child *core.Child) error
	GetChild(ctx context.Context, id string) (*core.Child, error)
	ListChildren(ctx context.Context) ([]*core.Child, error)
	UpdateChild(ctx context.Context, child *core.Child) error
	DeleteChild(ctx context.Context, id string) error

	// Devices
	CreateDevice(ctx context.Context, device *core.Device) error
	GetDevice(ctx context.Context, id string) (*core.Device, error)
	ListDevices(ctx context.Context) ([]*core.Device, error)
	ListDevicesByChild(ctx context.Context, childID string) ([]*core.Device, error)
	DeleteDevice(ctx context.Context, id string) error

	// Sessions
	CreateSession(ctx context.Context, session *core.Session) error
	GetSession(ctx context.Context, id string) (*core.Session, error)
	GetActiveSession(ctx context.Context, childID, deviceID string) (*core.Session, error)
	ListActiveSessions(ctx context.Context) ([]*core.Session, error)
	ListActiveSessionsByChild(ctx context.Context, childID string) ([]*core.Session, error)
	ListSessionsByChild(ctx context.Context, childID string) ([]*core.Session, error)
	UpdateSession(ctx context.Context, session *core.Session) error
	DeleteSession(ctx context.Context, id string) error

	// Pause intervals
	CreatePauseInterval(ctx context.Context, interval *core.PauseInterval) error
	ListPauseIntervals(ctx context.Context, sessionID string) ([]*core.PauseInterval, error)
	UpdatePauseInterval(ctx context.Context, interval *core.PauseInterval) error

	// Usage records
	GetUsageRecord(ctx context.Context, childID string, date time.Time) (*core.UsageRecord, error)
	UpsertUsageRecord(ctx context.Context, record *core.UsageRecord) error
	IncrementUsageRecord(ctx context.Context, childID string, date time.Time, minutes int, deviceType string) error

	// Control policies
	GetControlPolicy(ctx context.Context, childID string) (*core.ControlPolicy, error)
	UpsertControlPolicy(ctx context.Context, policy *core.ControlPolicy) error

	// Instant actions
	CreateInstantAction(ctx context.Context, action *core.InstantAction) error
	ListInstantActions(ctx context.Context, childID string) ([]*core.InstantAction, error)
	ListActiveInstantActions(ctx context.Context, childID string, actionType core.ActionType) ([]*core.InstantAction, error)
	DeactivateInstantAction(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}
