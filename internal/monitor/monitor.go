package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"screenwise/internal/core"
)

// Storage interface for monitor operations
type Storage interface {
	ListChildren(ctx context.Context) ([]*core.Child, error)
	GetControlPolicy(ctx context.Context, childID string) (*core.ControlPolicy, error)
}

// Aggregator computes a child's consumed time for today
type Aggregator interface {
	TodayTotal(ctx context.Context, childID string, ref time.Time) (*core.TodayUsage, error)
}

// Actions exposes the grant-time overlay to the evaluation pass
type Actions interface {
	ActiveGrantMinutes(ctx context.Context, childID string, ref time.Time) (int, error)
}

// Publisher forwards warnings through de-duplication to the external sink
type Publisher interface {
	Publish(ctx context.Context, w core.Warning) (bool, error)
}

// Monitor drives the evaluation pipeline on a single ticker: for every child
// with an enabled policy it aggregates usage, evaluates warnings and hands
// new ones to the publisher, all within one tick so the cycle is internally
// consistent. A failed tick is logged and simply retried on the next
// interval; there is no backoff.
type Monitor struct {
	storage     Storage
	aggregator  Aggregator
	evaluator   *core.LimitEvaluator
	actions     Actions
	publisher   Publisher
	clock       core.Clock
	interval    time.Duration
	applyGrants bool
	stopChan    chan struct{}
	logger      *slog.Logger
}

// Config holds monitor construction options
type Config struct {
	Storage    Storage
	Aggregator Aggregator
	Evaluator  *core.LimitEvaluator
	Actions    Actions
	Publisher  Publisher
	Clock      core.Clock
	Interval   time.Duration
	// ApplyGrants feeds active grant-time minutes into the limit check.
	// With it off, grants are advisory only and never change the verdict.
	ApplyGrants bool
	Logger      *slog.Logger
}

// New creates a new monitor
func New(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		storage:     cfg.Storage,
		aggregator:  cfg.Aggregator,
		evaluator:   cfg.Evaluator,
		actions:     cfg.Actions,
		publisher:   cfg.Publisher,
		clock:       cfg.Clock,
		interval:    cfg.Interval,
		applyGrants: cfg.ApplyGrants,
		stopChan:    make(chan struct{}),
		logger:      cfg.Logger,
	}
}

// Start begins the monitor loop
func (m *Monitor) Start() {
	m.logger.Info("Monitor started", "interval", m.interval.String())
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Tick(context.Background())
		case <-m.stopChan:
			m.logger.Info("Monitor stopped")
			return
		}
	}
}

// Stop stops the monitor
func (m *Monitor) Stop() {
	close(m.stopChan)
}

// Tick performs one evaluation cycle over all children
func (m *Monitor) Tick(ctx context.Context) {
	children, err := m.storage.ListChildren(ctx)
	if err != nil {
		m.logger.Error("Failed to list children", "error", err)
		return
	}

	m.logger.Debug("Monitor tick", "children", len(children))

	for _, child := range children {
		if err := m.processChild(ctx, child.ID); err != nil {
			m.logger.Error("Failed to process child", "child_id", child.ID, "error", err)
		}
	}
}

// processChild evaluates one child and publishes any new warnings
func (m *Monitor) processChild(ctx context.Context, childID string) error {
	warnings, err := m.EvaluateChild(ctx, childID)
	if err != nil {
		return err
	}

	for _, w := range warnings {
		sent, err := m.publisher.Publish(ctx, w)
		if err != nil {
			m.logger.Error("Failed to publish warning",
				"child_id", childID,
				"type", string(w.Type),
				"error", err,
			)
			continue
		}
		if !sent {
			m.logger.Debug("Warning suppressed",
				"child_id", childID,
				"type", string(w.Type),
			)
		}
	}

	return nil
}

// EvaluateChild runs the aggregate-then-evaluate pass for one child without
// notifying. Children without a policy, or with monitoring disabled, yield
// no warnings.
func (m *Monitor) EvaluateChild(ctx context.Context, childID string) ([]core.Warning, error) {
	policy, err := m.storage.GetControlPolicy(ctx, childID)
	if err != nil {
		if errors.Is(err, core.ErrPolicyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !policy.Enabled {
		return nil, nil
	}

	ref := m.clock.Now()

	usage, err := m.aggregator.TodayTotal(ctx, childID, ref)
	if err != nil {
		return nil, err
	}

	grantMinutes := 0
	if m.applyGrants {
		grantMinutes, err = m.actions.ActiveGrantMinutes(ctx, childID, ref)
		if err != nil {
			return nil, err
		}
	}

	return m.evaluator.Evaluate(core.EvaluationInput{
		ChildID:          childID,
		Policy:           policy,
		UsedMinutes:      usage.TotalMinutes,
		GrantMinutes:     grantMinutes,
		HasActiveSession: usage.ActiveSessions > 0,
		ReferenceTime:    ref,
	}), nil
}
