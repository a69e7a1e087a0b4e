package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"screenwise/internal/core"
)

// GetUsageRecord retrieves a child's usage record for a date. A missing row
// is not an error: a zero-valued record for that date is returned, so "no
// usage yet today" and "zero usage today" read the same.
func (s *SQLiteStorage) GetUsageRecord(ctx context.Context, childID string, date time.Time) (*core.UsageRecord, error) {
	normalized := s.normalizeDate(date)

	var record core.UsageRecord
	var deviceMinutesJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT child_id, activity_date, total_minutes, device_type_minutes, created_at, updated_at
		FROM usage_records WHERE child_id = ? AND activity_date = ?
	`, childID, normalized).Scan(&record.ChildID, &record.ActivityDate, &record.TotalMinutes,
		&deviceMinutesJSON, &record.CreatedAt, &record.UpdatedAt)

	if err == sql.ErrNoRows {
		return &core.UsageRecord{
			ChildID:           childID,
			ActivityDate:      normalized,
			DeviceTypeMinutes: make(map[string]int),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(deviceMinutesJSON), &record.DeviceTypeMinutes); err != nil {
		return nil, fmt.Errorf("failed to decode device minutes for child %s: %w", childID, err)
	}
	if record.DeviceTypeMinutes == nil {
		record.DeviceTypeMinutes = make(map[string]int)
	}

	return &record, nil
}

// UpsertUsageRecord creates or replaces a usage record
func (s *SQLiteStorage) UpsertUsageRecord(ctx context.Context, record *core.UsageRecord) error {
	normalized := s.normalizeDate(record.ActivityDate)
	now := time.Now()

	deviceMinutes := record.DeviceTypeMinutes
	if deviceMinutes == nil {
		deviceMinutes = make(map[string]int)
	}
	deviceMinutesJSON, err := json.Marshal(deviceMinutes)
	if err != nil {
		return fmt.Errorf("failed to encode device minutes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO usage_records (child_id, activity_date, total_minutes, device_type_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(child_id, activity_date) DO UPDATE SET
			total_minutes = excluded.total_minutes,
			device_type_minutes = excluded.device_type_minutes,
			updated_at = excluded.updated_at
	`, record.ChildID, normalized, record.TotalMinutes, string(deviceMinutesJSON), now, now)

	return err
}

// IncrementUsageRecord adds minutes to a child's daily aggregate, creating the
// row if needed. The read-modify-write runs in a transaction so concurrent
// session stops do not lose updates.
func (s *SQLiteStorage) IncrementUsageRecord(ctx context.Context, childID string, date time.Time, minutes int, deviceType string) error {
	normalized := s.normalizeDate(date)
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deviceMinutesJSON string
	deviceMinutes := make(map[string]int)

	err = tx.QueryRowContext(ctx, `
		SELECT device_type_minutes FROM usage_records
		WHERE child_id = ? AND activity_date = ?
	`, childID, normalized).Scan(&deviceMinutesJSON)

	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == nil {
		if err := json.Unmarshal([]byte(deviceMinutesJSON), &deviceMinutes); err != nil {
			return fmt.Errorf("failed to decode device minutes for child %s: %w", childID, err)
		}
		if deviceMinutes == nil {
			deviceMinutes = make(map[string]int)
		}
	}

	if deviceType != "" {
		deviceMinutes[deviceType] += minutes
	}
	updatedJSON, err := json.Marshal(deviceMinutes)
	if err != nil {
		return fmt.Errorf("failed to encode device minutes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO usage_records (child_id, activity_date, total_minutes, device_type_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(child_id, activity_date) DO UPDATE SET
			total_minutes = total_minutes + excluded.total_minutes,
			device_type_minutes = excluded.device_type_minutes,
			updated_at = excluded.updated_at
	`, childID, normalized, minutes, string(updatedJSON), now, now); err != nil {
		return err
	}

	return tx.Commit()
}

// GetControlPolicy retrieves a child's control policy
func (s *SQLiteStorage) GetControlPolicy(ctx context.Context, childID string) (*core.ControlPolicy, error) {
	var policy core.ControlPolicy
	var enabled int
	var dailyLimit sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT child_id, enabled, daily_limit_minutes, warning_threshold_minutes,
			bedtime_start, bedtime_end, created_at, updated_at
		FROM control_policies WHERE child_id = ?
	`, childID).Scan(&policy.ChildID, &enabled, &dailyLimit, &policy.WarningThresholdMinutes,
		&policy.BedtimeStart, &policy.BedtimeEnd, &policy.CreatedAt, &policy.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, core.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}

	policy.Enabled = enabled != 0
	if dailyLimit.Valid {
		limit := int(dailyLimit.Int64)
		policy.DailyLimitMinutes = &limit
	}

	return &policy, nil
}

// UpsertControlPolicy creates or replaces a child's control policy
func (s *SQLiteStorage) UpsertControlPolicy(ctx context.Context, policy *core.ControlPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	now := time.Now()
	policy.UpdatedAt = now

	var dailyLimit sql.NullInt64
	if policy.DailyLimitMinutes != nil {
		dailyLimit = sql.NullInt64{Int64: int64(*policy.DailyLimitMinutes), Valid: true}
	}

	enabled := 0
	if policy.Enabled {
		enabled = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO control_policies (child_id, enabled, daily_limit_minutes,
			warning_threshold_minutes, bedtime_start, bedtime_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(child_id) DO UPDATE SET
			enabled = excluded.enabled,
			daily_limit_minutes = excluded.daily_limit_minutes,
			warning_threshold_minutes = excluded.warning_threshold_minutes,
			bedtime_start = excluded.bedtime_start,
			bedtime_end = excluded.bedtime_end,
			updated_at = excluded.updated_at
	`, policy.ChildID, enabled, dailyLimit, policy.WarningThresholdMinutes,
		policy.BedtimeStart, policy.BedtimeEnd, now, now)

	return err
}

// CreateInstantAction creates a new instant action
func (s *SQLiteStorage) CreateInstantAction(ctx context.Context, action *core.InstantAction) error {
	now := time.Now()
	action.CreatedAt = now
	action.UpdatedAt = now

	var duration sql.NullInt64
	var expiresAt sql.NullTime
	if action.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*action.DurationMinutes), Valid: true}
	}
	if action.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *action.ExpiresAt, Valid: true}
	}

	isActive := 0
	if action.IsActive {
		isActive = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instant_actions (id, child_id, action_type, is_active,
			duration_minutes, expires_at, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, action.ID, action.ChildID, string(action.ActionType), isActive,
		duration, expiresAt, action.Reason, action.CreatedAt, action.UpdatedAt)

	return err
}

// ListInstantActions retrieves all instant actions for a child, newest first
func (s *SQLiteStorage) ListInstantActions(ctx context.Context, childID string) ([]*core.InstantAction, error) {
	return s.listActionsByCondition(ctx, "child_id = ?", childID)
}

// ListActiveInstantActions retrieves a child's active actions of one type
func (s *SQLiteStorage) ListActiveInstantActions(ctx context.Context, childID string, actionType core.ActionType) ([]*core.InstantAction, error) {
	return s.listActionsByCondition(ctx, "child_id = ? AND action_type = ? AND is_active = 1",
		childID, string(actionType))
}

func (s *SQLiteStorage) listActionsByCondition(ctx context.Context, condition string, args ...interface{}) ([]*core.InstantAction, error) {
	query := `
		SELECT id, child_id, action_type, is_active, duration_minutes,
			expires_at, reason, created_at, updated_at
		FROM instant_actions WHERE ` + condition + ` ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*core.InstantAction
	for rows.Next() {
		var action core.InstantAction
		var actionType string
		var isActive int
		var duration sql.NullInt64
		var expiresAt sql.NullTime

		if err := rows.Scan(&action.ID, &action.ChildID, &actionType, &isActive,
			&duration, &expiresAt, &action.Reason, &action.CreatedAt, &action.UpdatedAt); err != nil {
			return nil, err
		}

		action.ActionType = core.ActionType(actionType)
		action.IsActive = isActive != 0
		if duration.Valid {
			d := int(duration.Int64)
			action.DurationMinutes = &d
		}
		if expiresAt.Valid {
			action.ExpiresAt = &expiresAt.Time
		}
		actions = append(actions, &action)
	}

	return actions, rows.Err()
}

// DeactivateInstantAction marks an instant action inactive, keeping the row
func (s *SQLiteStorage) DeactivateInstantAction(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE instant_actions SET is_active = 0, updated_at = ? WHERE id = ?
	`, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("instant action %s not found", id)
	}

	return nil
}
