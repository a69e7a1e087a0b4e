package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"screenwise/internal/idgen"
)

// ActionStorage defines the storage operations for instant actions
type ActionStorage interface {
	GetChild(ctx context.Context, id string) (*Child, error)
	CreateInstantAction(ctx context.Context, action *InstantAction) error
	// ListActiveInstantActions returns active rows of one type for a child,
	// newest first. Expired rows may be included; callers filter by time.
	ListActiveInstantActions(ctx context.Context, childID string, actionType ActionType) ([]*InstantAction, error)
	DeactivateInstantAction(ctx context.Context, id string) error
}

// InstantActions manages the transient override layer: pause-all and
// grant-time rows on top of the standing control policy. Unlock deactivates
// pause rows rather than deleting them, preserving history.
type InstantActions struct {
	storage ActionStorage
	clock   Clock
	logger  *slog.Logger
}

// NewInstantActions creates a new instant action service
func NewInstantActions(storage ActionStorage, clock Clock, logger *slog.Logger) *InstantActions {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InstantActions{
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// PauseAll blocks all of a child's devices until unlocked
func (s *InstantActions) PauseAll(ctx context.Context, childID, reason string) (*InstantAction, error) {
	if _, err := s.storage.GetChild(ctx, childID); err != nil {
		return nil, fmt.Errorf("failed to get child %s: %w", childID, err)
	}

	action := &InstantAction{
		ID:         idgen.NewAction(),
		ChildID:    childID,
		ActionType: ActionTypePause,
		IsActive:   true,
		Reason:     reason,
	}

	if err := s.storage.CreateInstantAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to save pause action: %w", err)
	}

	s.logger.Info("All devices paused",
		"child_id", childID,
		"action_id", action.ID,
		"reason", reason,
	)

	return action, nil
}

// UnlockAll deactivates every active pause row for the child and returns how
// many were deactivated. Zero is not an error.
func (s *InstantActions) UnlockAll(ctx context.Context, childID string) (int, error) {
	if _, err := s.storage.GetChild(ctx, childID); err != nil {
		return 0, fmt.Errorf("failed to get child %s: %w", childID, err)
	}

	actions, err := s.storage.ListActiveInstantActions(ctx, childID, ActionTypePause)
	if err != nil {
		return 0, fmt.Errorf("failed to list pause actions for child %s: %w", childID, err)
	}

	deactivated := 0
	for _, action := range actions {
		if err := s.storage.DeactivateInstantAction(ctx, action.ID); err != nil {
			return deactivated, fmt.Errorf("failed to deactivate action %s: %w", action.ID, err)
		}
		deactivated++
	}

	s.logger.Info("Devices unlocked",
		"child_id", childID,
		"deactivated", deactivated,
	)

	return deactivated, nil
}

// GrantTime records extra minutes for the child, expiring after that many
// minutes of wall-clock time. Fails with ErrInvalidGrantMinutes when minutes
// is not positive.
func (s *InstantActions) GrantTime(ctx context.Context, childID string, minutes int, reason string) (*InstantAction, error) {
	if minutes <= 0 {
		return nil, ErrInvalidGrantMinutes
	}
	if _, err := s.storage.GetChild(ctx, childID); err != nil {
		return nil, fmt.Errorf("failed to get child %s: %w", childID, err)
	}

	expiresAt := s.clock.Now().Add(time.Duration(minutes) * time.Minute)

	action := &InstantAction{
		ID:              idgen.NewAction(),
		ChildID:         childID,
		ActionType:      ActionTypeGrantTime,
		IsActive:        true,
		DurationMinutes: &minutes,
		ExpiresAt:       &expiresAt,
		Reason:          reason,
	}

	if err := s.storage.CreateInstantAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to save grant action: %w", err)
	}

	s.logger.Info("Extra time granted",
		"child_id", childID,
		"action_id", action.ID,
		"minutes", minutes,
		"reason", reason,
	)

	return action, nil
}

// ActiveGrantMinutes sums the minutes of active, unexpired grant-time rows
func (s *InstantActions) ActiveGrantMinutes(ctx context.Context, childID string, ref time.Time) (int, error) {
	actions, err := s.storage.ListActiveInstantActions(ctx, childID, ActionTypeGrantTime)
	if err != nil {
		return 0, fmt.Errorf("failed to list grant actions for child %s: %w", childID, err)
	}

	total := 0
	for _, action := range actions {
		if action.IsExpired(ref) {
			continue
		}
		if action.DurationMinutes != nil {
			total += *action.DurationMinutes
		}
	}
	return total, nil
}

// IsPaused reports whether an active, unexpired pause row exists for the child
func (s *InstantActions) IsPaused(ctx context.Context, childID string, ref time.Time) (bool, error) {
	actions, err := s.storage.ListActiveInstantActions(ctx, childID, ActionTypePause)
	if err != nil {
		return false, fmt.Errorf("failed to list pause actions for child %s: %w", childID, err)
	}

	for _, action := range actions {
		if !action.IsExpired(ref) {
			return true, nil
		}
	}
	return false, nil
}
