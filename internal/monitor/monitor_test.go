package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenwise/internal/core"
)

type mockStorage struct {
	children []*core.Child
	policies map[string]*core.ControlPolicy
}

func (m *mockStorage) ListChildren(ctx context.Context) ([]*core.Child, error) {
	return m.children, nil
}

func (m *mockStorage) GetControlPolicy(ctx context.Context, childID string) (*core.ControlPolicy, error) {
	policy, ok := m.policies[childID]
	if !ok {
		return nil, core.ErrPolicyNotFound
	}
	return policy, nil
}

type mockAggregator struct {
	usage map[string]*core.TodayUsage
}

func (m *mockAggregator) TodayTotal(ctx context.Context, childID string, ref time.Time) (*core.TodayUsage, error) {
	if usage, ok := m.usage[childID]; ok {
		return usage, nil
	}
	return &core.TodayUsage{}, nil
}

type mockActions struct {
	grants map[string]int
}

func (m *mockActions) ActiveGrantMinutes(ctx context.Context, childID string, ref time.Time) (int, error) {
	return m.grants[childID], nil
}

type mockPublisher struct {
	published []core.Warning
}

func (m *mockPublisher) Publish(ctx context.Context, w core.Warning) (bool, error) {
	m.published = append(m.published, w)
	return true, nil
}

func intPtr(v int) *int {
	return &v
}

func newTestMonitor(storage *mockStorage, aggregator *mockAggregator, actions *mockActions,
	publisher *mockPublisher, applyGrants bool) *Monitor {
	return New(Config{
		Storage:     storage,
		Aggregator:  aggregator,
		Evaluator:   core.NewLimitEvaluator(time.UTC),
		Actions:     actions,
		Publisher:   publisher,
		Clock:       &core.MockClock{CurrentTime: time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)},
		ApplyGrants: applyGrants,
	})
}

func TestTick_PublishesWarnings(t *testing.T) {
	storage := &mockStorage{
		children: []*core.Child{
			{ID: "kid_over", Name: "Alice"},
			{ID: "kid_fine", Name: "Bob"},
		},
		policies: map[string]*core.ControlPolicy{
			"kid_over": {ChildID: "kid_over", Enabled: true, DailyLimitMinutes: intPtr(60)},
			"kid_fine": {ChildID: "kid_fine", Enabled: true, DailyLimitMinutes: intPtr(60)},
		},
	}
	aggregator := &mockAggregator{
		usage: map[string]*core.TodayUsage{
			"kid_over": {TotalMinutes: 75},
			"kid_fine": {TotalMinutes: 10},
		},
	}
	publisher := &mockPublisher{}
	mon := newTestMonitor(storage, aggregator, &mockActions{}, publisher, true)

	mon.Tick(context.Background())

	require.Len(t, publisher.published, 1)
	assert.Equal(t, core.WarningLimitExceeded, publisher.published[0].Type)
	assert.Equal(t, "kid_over", publisher.published[0].ChildID)
}

func TestEvaluateChild_NoPolicy(t *testing.T) {
	storage := &mockStorage{
		children: []*core.Child{{ID: "kid_1"}},
		policies: map[string]*core.ControlPolicy{},
	}
	mon := newTestMonitor(storage, &mockAggregator{}, &mockActions{}, &mockPublisher{}, true)

	warnings, err := mon.EvaluateChild(context.Background(), "kid_1")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestEvaluateChild_DisabledPolicy(t *testing.T) {
	storage := &mockStorage{
		policies: map[string]*core.ControlPolicy{
			"kid_1": {ChildID: "kid_1", Enabled: false, DailyLimitMinutes: intPtr(1)},
		},
	}
	aggregator := &mockAggregator{
		usage: map[string]*core.TodayUsage{"kid_1": {TotalMinutes: 500}},
	}
	mon := newTestMonitor(storage, aggregator, &mockActions{}, &mockPublisher{}, true)

	warnings, err := mon.EvaluateChild(context.Background(), "kid_1")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestEvaluateChild_GrantsApplied(t *testing.T) {
	storage := &mockStorage{
		policies: map[string]*core.ControlPolicy{
			"kid_1": {ChildID: "kid_1", Enabled: true, DailyLimitMinutes: intPtr(60)},
		},
	}
	aggregator := &mockAggregator{
		usage: map[string]*core.TodayUsage{"kid_1": {TotalMinutes: 70}},
	}
	actions := &mockActions{grants: map[string]int{"kid_1": 30}}

	// With grants applied the effective limit is 90 and 20 minutes remain,
	// which is outside the default 15 minute warning threshold
	mon := newTestMonitor(storage, aggregator, actions, &mockPublisher{}, true)
	warnings, err := mon.EvaluateChild(context.Background(), "kid_1")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	aggregator.usage["kid_1"].TotalMinutes = 75
	warnings, err = mon.EvaluateChild(context.Background(), "kid_1")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, core.WarningApproachingLimit, warnings[0].Type)
	assert.Equal(t, 15, warnings[0].Minutes)
}

func TestEvaluateChild_GrantsIgnoredWhenDisabled(t *testing.T) {
	storage := &mockStorage{
		policies: map[string]*core.ControlPolicy{
			"kid_1": {ChildID: "kid_1", Enabled: true, DailyLimitMinutes: intPtr(60)},
		},
	}
	aggregator := &mockAggregator{
		usage: map[string]*core.TodayUsage{"kid_1": {TotalMinutes: 70}},
	}
	actions := &mockActions{grants: map[string]int{"kid_1": 60}}

	mon := newTestMonitor(storage, aggregator, actions, &mockPublisher{}, false)
	warnings, err := mon.EvaluateChild(context.Background(), "kid_1")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, core.WarningLimitExceeded, warnings[0].Type)
}

func TestEvaluateChild_BedtimeUsesActiveSessions(t *testing.T) {
	storage := &mockStorage{
		policies: map[string]*core.ControlPolicy{
			"kid_1": {ChildID: "kid_1", Enabled: true, BedtimeStart: "22:00", BedtimeEnd: "06:00"},
		},
	}
	aggregator := &mockAggregator{
		usage: map[string]*core.TodayUsage{"kid_1": {TotalMinutes: 30, ActiveSessions: 1}},
	}

	mon := New(Config{
		Storage:    storage,
		Aggregator: aggregator,
		Evaluator:  core.NewLimitEvaluator(time.UTC),
		Actions:    &mockActions{},
		Publisher:  &mockPublisher{},
		Clock:      &core.MockClock{CurrentTime: time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)},
	})

	warnings, err := mon.EvaluateChild(context.Background(), "kid_1")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, core.WarningBedtimeViolation, warnings[0].Type)

	// Idle child during bedtime yields nothing
	aggregator.usage["kid_1"].ActiveSessions = 0
	warnings, err = mon.EvaluateChild(context.Background(), "kid_1")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}
