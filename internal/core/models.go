package core

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// SessionType categorizes what a session was used for
type SessionType string

const (
	SessionTypeScreen   SessionType = "screen"
	SessionTypeHomework SessionType = "homework"
)

// ActionType identifies the kind of an instant action
type ActionType string

const (
	ActionTypePause     ActionType = "pause"
	ActionTypeGrantTime ActionType = "grant_time"
)

// WarningType classifies a warning raised by the evaluator
type WarningType string

const (
	WarningApproachingLimit WarningType = "approaching_limit"
	WarningLimitExceeded    WarningType = "limit_exceeded"
	WarningBedtimeViolation WarningType = "bedtime_violation"
)

// Severity ranks how urgent a warning is
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DefaultWarningThresholdMinutes is used when a policy has no explicit threshold
const DefaultWarningThresholdMinutes = 15

// Child represents a monitored child profile
type Child struct {
	ID        string
	ParentID  string
	Name      string
	AgeGroup  string
	PINHash   string // optional 4-digit PIN for child self-service (bcrypt)
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Device belongs to exactly one child; type/model/OS are descriptive only
type Device struct {
	ID         string
	ChildID    string
	Name       string
	DeviceType string // "tablet", "phone", "tv", "computer"
	Model      string
	OS         string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session represents one device-usage session.
// EndTime is set iff DurationMinutes is set; while EndTime is nil the session
// is active. At most one active session exists per (child, device) pair.
type Session struct {
	ID              string
	ChildID         string
	DeviceID        string
	SessionType     SessionType
	StartTime       time.Time
	EndTime         *time.Time
	DurationMinutes *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PauseInterval is a persisted pause overlay on an active session.
// Billed duration at stop subtracts the sum of a session's intervals.
type PauseInterval struct {
	ID        string
	SessionID string
	PausedAt  time.Time
	ResumedAt *time.Time
	Reason    string
	CreatedAt time.Time
}

// UsageRecord is a per-child, per-day aggregate of consumed minutes
type UsageRecord struct {
	ChildID           string
	ActivityDate      time.Time // normalized to start of day
	TotalMinutes      int
	DeviceTypeMinutes map[string]int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ControlPolicy holds the standing screen-time rules for one child.
// Nil DailyLimitMinutes means no daily limit; empty bedtime bounds mean no
// bedtime window. Times of day are "HH:MM" strings.
type ControlPolicy struct {
	ChildID                 string
	Enabled                 bool
	DailyLimitMinutes       *int
	WarningThresholdMinutes int
	BedtimeStart            string
	BedtimeEnd              string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// InstantAction is a transient override layered on top of the standing policy
type InstantAction struct {
	ID              string
	ChildID         string
	ActionType      ActionType
	IsActive        bool
	DurationMinutes *int
	ExpiresAt       *time.Time
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Warning is ephemeral: it exists for one evaluation cycle and is never persisted.
// Minutes carries the metric behind the message: minutes remaining for
// approaching_limit, minutes over for limit_exceeded, zero for bedtime_violation.
type Warning struct {
	Type     WarningType
	Severity Severity
	ChildID  string
	Message  string
	Minutes  int
}

// Validation and state errors
var (
	ErrChildNotFound   = errors.New("child not found")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrPolicyNotFound  = errors.New("control policy not found")

	ErrSessionConflict       = errors.New("an active session already exists for this child and device")
	ErrSessionAlreadyStopped = errors.New("session is already stopped")
	ErrSessionAlreadyPaused  = errors.New("session is already paused")
	ErrSessionNotPaused      = errors.New("session is not paused")
	ErrDeviceOwnership       = errors.New("device does not belong to this child")

	ErrInvalidName         = errors.New("name cannot be empty")
	ErrInvalidChildID      = errors.New("child ID cannot be empty")
	ErrInvalidDeviceID     = errors.New("device ID cannot be empty")
	ErrInvalidDeviceType   = errors.New("device type cannot be empty")
	ErrInvalidGrantMinutes = errors.New("grant minutes must be positive")
	ErrInvalidTimeOfDay    = errors.New("time of day must be in HH:MM format")
	ErrInvalidThreshold    = errors.New("warning threshold must be positive")
)

// Validate validates a Child
func (c *Child) Validate() error {
	if c.Name == "" {
		return ErrInvalidName
	}
	if c.ParentID == "" {
		return fmt.Errorf("%w: parent ID is required", ErrInvalidName)
	}
	return nil
}

// SetPIN hashes and stores a PIN for child self-service access
func (c *Child) SetPIN(pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	c.PINHash = string(hash)
	return nil
}

// CheckPIN verifies a PIN against the stored hash
func (c *Child) CheckPIN(pin string) bool {
	if c.PINHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.PINHash), []byte(pin)) == nil
}

// Validate validates a Device
func (d *Device) Validate() error {
	if d.ChildID == "" {
		return ErrInvalidChildID
	}
	if d.Name == "" {
		return ErrInvalidName
	}
	if d.DeviceType == "" {
		return ErrInvalidDeviceType
	}
	return nil
}

// IsActive returns true while the session has not been stopped
func (s *Session) IsActive() bool {
	return s.EndTime == nil
}

// Validate validates a Session
func (s *Session) Validate() error {
	if s.ChildID == "" {
		return ErrInvalidChildID
	}
	if s.DeviceID == "" {
		return ErrInvalidDeviceID
	}
	// EndTime and DurationMinutes are set together at stop time, never separately
	if (s.EndTime == nil) != (s.DurationMinutes == nil) {
		return fmt.Errorf("session %s: end_time and duration_minutes must be set together", s.ID)
	}
	return nil
}

// IsOpen returns true while the pause has not been resumed
func (p *PauseInterval) IsOpen() bool {
	return p.ResumedAt == nil
}

// Duration returns the length of a resolved pause interval, zero while open
func (p *PauseInterval) Duration() time.Duration {
	if p.ResumedAt == nil {
		return 0
	}
	return p.ResumedAt.Sub(p.PausedAt)
}

// Threshold returns the effective warning threshold in minutes
func (p *ControlPolicy) Threshold() int {
	if p.WarningThresholdMinutes <= 0 {
		return DefaultWarningThresholdMinutes
	}
	return p.WarningThresholdMinutes
}

// Validate validates a ControlPolicy
func (p *ControlPolicy) Validate() error {
	if p.ChildID == "" {
		return ErrInvalidChildID
	}
	if p.WarningThresholdMinutes < 0 {
		return ErrInvalidThreshold
	}
	if p.BedtimeStart != "" {
		if _, err := ParseMinuteOfDay(p.BedtimeStart); err != nil {
			return err
		}
	}
	if p.BedtimeEnd != "" {
		if _, err := ParseMinuteOfDay(p.BedtimeEnd); err != nil {
			return err
		}
	}
	return nil
}

// IsExpired reports whether the action's expiry has passed
func (a *InstantAction) IsExpired(now time.Time) bool {
	if a.ExpiresAt == nil {
		return false
	}
	return !now.Before(*a.ExpiresAt)
}

// DedupKey returns the de-duplication identity of a warning
func (w *Warning) DedupKey() string {
	return fmt.Sprintf("%s-%s", w.ChildID, w.Type)
}
