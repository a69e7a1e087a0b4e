package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"screenwise/internal/core"
	"screenwise/internal/storage"
)

var _ storage.Storage = (*SQLiteStorage)(nil)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db       *sql.DB
	timezone *time.Location
}

// New creates a new SQLite storage instance
func New(dbPath string, timezone *time.Location) (*SQLiteStorage, error) {
	if timezone == nil {
		timezone = time.UTC // Fallback to UTC
	}

	// SQLite will store times as UTC strings, we'll convert in app layer
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	storage := &SQLiteStorage{
		db:       db,
		timezone: timezone,
	}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS children (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			age_group TEXT NOT NULL DEFAULT '',
			pin_hash TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			child_id TEXT NOT NULL,
			name TEXT NOT NULL,
			device_type TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			os TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (child_id) REFERENCES children(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			child_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			session_type TEXT NOT NULL DEFAULT 'screen',
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			duration_minutes INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (child_id) REFERENCES children(id) ON DELETE CASCADE,
			FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS pause_intervals (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			paused_at DATETIME NOT NULL,
			resumed_at DATETIME,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS usage_records (
			child_id TEXT NOT NULL,
			activity_date DATE NOT NULL,
			total_minutes INTEGER NOT NULL DEFAULT 0,
			device_type_minutes TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (child_id, activity_date),
			FOREIGN KEY (child_id) REFERENCES children(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS control_policies (
			child_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 1,
			daily_limit_minutes INTEGER,
			warning_threshold_minutes INTEGER NOT NULL DEFAULT 15,
			bedtime_start TEXT NOT NULL DEFAULT '',
			bedtime_end TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (child_id) REFERENCES children(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS instant_actions (
			id TEXT PRIMARY KEY,
			child_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			duration_minutes INTEGER,
			expires_at DATETIME,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (child_id) REFERENCES children(id) ON DELETE CASCADE
		);

		-- One active session per (child, device): the store-level half of the
		-- invariant the lifecycle manager also serializes in process.
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
			ON sessions(child_id, device_id) WHERE end_time IS NULL;

		CREATE INDEX IF NOT EXISTS idx_sessions_child ON sessions(child_id, start_time);
		CREATE INDEX IF NOT EXISTS idx_pause_intervals_session ON pause_intervals(session_id);
		CREATE INDEX IF NOT EXISTS idx_usage_records_date ON usage_records(activity_date);
		CREATE INDEX IF NOT EXISTS idx_instant_actions_active ON instant_actions(child_id, action_type, is_active);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// CreateChild creates a new child
func (s *SQLiteStorage) CreateChild(ctx context.Context, child *core.Child) error {
	if err := child.Validate(); err != nil {
		return err
	}

	now := time.Now()
	child.CreatedAt = now
	child.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO children (id, parent_id, name, age_group, pin_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, child.ID, child.ParentID, child.Name, child.AgeGroup, child.PINHash, child.CreatedAt, child.UpdatedAt)

	return err
}

// GetChild retrieves a child by ID
func (s *SQLiteStorage) GetChild(ctx context.Context, id string) (*core.Child, error) {
	var child core.Child

	err := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, name, age_group, pin_hash, created_at, updated_at
		FROM children WHERE id = ?
	`, id).Scan(&child.ID, &child.ParentID, &child.Name, &child.AgeGroup,
		&child.PINHash, &child.CreatedAt, &child.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, core.ErrChildNotFound
	}
	if err != nil {
		return nil, err
	}

	return &child, nil
}

// ListChildren retrieves all children
func (s *SQLiteStorage) ListChildren(ctx context.Context) ([]*core.Child, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, name, age_group, pin_hash, created_at, updated_at
		FROM children ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []*core.Child
	for rows.Next() {
		var child core.Child
		if err := rows.Scan(&child.ID, &child.ParentID, &child.Name, &child.AgeGroup,
			&child.PINHash, &child.CreatedAt, &child.UpdatedAt); err != nil {
			return nil, err
		}
		children = append(children, &child)
	}

	return children, rows.Err()
}

// UpdateChild updates an existing child
func (s *SQLiteStorage) UpdateChild(ctx context.Context, child *core.Child) error {
	if err := child.Validate(); err != nil {
		return err
	}

	child.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE children
		SET name = ?, age_group = ?, pin_hash = ?, updated_at = ?
		WHERE id = ?
	`, child.Name, child.AgeGroup, child.PINHash, child.UpdatedAt, child.ID)

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrChildNotFound
	}

	return nil
}

// DeleteChild deletes a child; sessions, logs and policies cascade
func (s *SQLiteStorage) DeleteChild(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM children WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrChildNotFound
	}

	return nil
}

// CreateDevice creates a new device
func (s *SQLiteStorage) CreateDevice(ctx context.Context, device *core.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, child_id, name, device_type, model, os, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, device.ID, device.ChildID, device.Name, device.DeviceType, device.Model, device.OS,
		device.CreatedAt, device.UpdatedAt)

	return err
}

// GetDevice retrieves a device by ID
func (s *SQLiteStorage) GetDevice(ctx context.Context, id string) (*core.Device, error) {
	var device core.Device

	err := s.db.QueryRowContext(ctx, `
		SELECT id, child_id, name, device_type, model, os, created_at, updated_at
		FROM devices WHERE id = ?
	`, id).Scan(&device.ID, &device.ChildID, &device.Name, &device.DeviceType,
		&device.Model, &device.OS, &device.CreatedAt, &device.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, core.ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}

	return &device, nil
}

// ListDevices retrieves all devices
func (s *SQLiteStorage) ListDevices(ctx context.Context) ([]*core.Device, error) {
	return s.listDevicesByCondition(ctx, "1=1")
}

// ListDevicesByChild retrieves all devices belonging to a child
func (s *SQLiteStorage) ListDevicesByChild(ctx context.Context, childID string) ([]*core.Device, error) {
	return s.listDevicesByCondition(ctx, "child_id = ?", childID)
}

func (s *SQLiteStorage) listDevicesByCondition(ctx context.Context, condition string, args ...interface{}) ([]*core.Device, error) {
	query := `
		SELECT id, child_id, name, device_type, model, os, created_at, updated_at
		FROM devices WHERE ` + condition + ` ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*core.Device
	for rows.Next() {
		var device core.Device
		if err := rows.Scan(&device.ID, &device.ChildID, &device.Name, &device.DeviceType,
			&device.Model, &device.OS, &device.CreatedAt, &device.UpdatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, &device)
	}

	return devices, rows.Err()
}

// DeleteDevice deletes a device
func (s *SQLiteStorage) DeleteDevice(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrDeviceNotFound
	}

	return nil
}

// CreateSession creates a new session. A second active session for the same
// (child, device) pair trips the partial unique index and is reported as
// core.ErrSessionConflict.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *core.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	var endTime sql.NullTime
	var duration sql.NullInt64
	if session.EndTime != nil {
		endTime = sql.NullTime{Time: *session.EndTime, Valid: true}
	}
	if session.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*session.DurationMinutes), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, child_id, device_id, session_type, start_time,
			end_time, duration_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.ChildID, session.DeviceID, string(session.SessionType),
		session.StartTime, endTime, duration, session.CreatedAt, session.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrSessionConflict
		}
		return err
	}

	return nil
}

// GetSession retrieves a session by ID
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, child_id, device_id, session_type, start_time,
			end_time, duration_minutes, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// GetActiveSession retrieves the active session for a (child, device) pair
func (s *SQLiteStorage) GetActiveSession(ctx context.Context, childID, deviceID string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, child_id, device_id, session_type, start_time,
			end_time, duration_minutes, created_at, updated_at
		FROM sessions WHERE child_id = ? AND device_id = ? AND end_time IS NULL
	`, childID, deviceID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// ListActiveSessions retrieves all active sessions
func (s *SQLiteStorage) ListActiveSessions(ctx context.Context) ([]*core.Session, error) {
	return s.listSessionsByCondition(ctx, "end_time IS NULL")
}

// ListActiveSessionsByChild retrieves a child's active sessions
func (s *SQLiteStorage) ListActiveSessionsByChild(ctx context.Context, childID string) ([]*core.Session, error) {
	return s.listSessionsByCondition(ctx, "child_id = ? AND end_time IS NULL", childID)
}

// ListSessionsByChild retrieves all sessions for a child, newest first
func (s *SQLiteStorage) ListSessionsByChild(ctx context.Context, childID string) ([]*core.Session, error) {
	return s.listSessionsByCondition(ctx, "child_id = ?", childID)
}

// UpdateSession updates an existing session
func (s *SQLiteStorage) UpdateSession(ctx context.Context, session *core.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	session.UpdatedAt = time.Now()

	var endTime sql.NullTime
	var duration sql.NullInt64
	if session.EndTime != nil {
		endTime = sql.NullTime{Time: *session.EndTime, Valid: true}
	}
	if session.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*session.DurationMinutes), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET session_type = ?, end_time = ?, duration_minutes = ?, updated_at = ?
		WHERE id = ?
	`, string(session.SessionType), endTime, duration, session.UpdatedAt, session.ID)

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrSessionNotFound
	}

	return nil
}

// DeleteSession deletes a session
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrSessionNotFound
	}

	return nil
}

// CreatePauseInterval creates a new pause interval
func (s *SQLiteStorage) CreatePauseInterval(ctx context.Context, interval *core.PauseInterval) error {
	now := time.Now()
	interval.CreatedAt = now

	var resumedAt sql.NullTime
	if interval.ResumedAt != nil {
		resumedAt = sql.NullTime{Time: *interval.ResumedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pause_intervals (id, session_id, paused_at, resumed_at, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, interval.ID, interval.SessionID, interval.PausedAt, resumedAt, interval.Reason, interval.CreatedAt)

	return err
}

// ListPauseIntervals retrieves a session's pause intervals, oldest first
func (s *SQLiteStorage) ListPauseIntervals(ctx context.Context, sessionID string) ([]*core.PauseInterval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, paused_at, resumed_at, reason, created_at
		FROM pause_intervals WHERE session_id = ? ORDER BY paused_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []*core.PauseInterval
	for rows.Next() {
		var interval core.PauseInterval
		var resumedAt sql.NullTime

		if err := rows.Scan(&interval.ID, &interval.SessionID, &interval.PausedAt,
			&resumedAt, &interval.Reason, &interval.CreatedAt); err != nil {
			return nil, err
		}

		if resumedAt.Valid {
			interval.ResumedAt = &resumedAt.Time
		}
		intervals = append(intervals, &interval)
	}

	return intervals, rows.Err()
}

// UpdatePauseInterval updates an existing pause interval
func (s *SQLiteStorage) UpdatePauseInterval(ctx context.Context, interval *core.PauseInterval) error {
	var resumedAt sql.NullTime
	if interval.ResumedAt != nil {
		resumedAt = sql.NullTime{Time: *interval.ResumedAt, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE pause_intervals SET resumed_at = ?, reason = ? WHERE id = ?
	`, resumedAt, interval.Reason, interval.ID)

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrSessionNotPaused
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Helper functions

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*core.Session, error) {
	var session core.Session
	var sessionType string
	var endTime sql.NullTime
	var duration sql.NullInt64

	if err := row.Scan(&session.ID, &session.ChildID, &session.DeviceID, &sessionType,
		&session.StartTime, &endTime, &duration, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}

	session.SessionType = core.SessionType(sessionType)
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		session.DurationMinutes = &d
	}

	return &session, nil
}

func (s *SQLiteStorage) listSessionsByCondition(ctx context.Context, condition string, args ...interface{}) ([]*core.Session, error) {
	query := `
		SELECT id, child_id, device_id, session_type, start_time,
			end_time, duration_minutes, created_at, updated_at
		FROM sessions WHERE ` + condition + ` ORDER BY start_time DESC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func (s *SQLiteStorage) normalizeDate(t time.Time) time.Time {
	// Convert to configured timezone and normalize to midnight
	// This ensures dates match the user's local calendar day
	inTZ := t.In(s.timezone)
	year, month, day := inTZ.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, s.timezone)
}
