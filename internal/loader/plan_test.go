package loader

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanEscalatesInOrder(t *testing.T) {
	t.Parallel()

	plan := NewPlan(DefaultStrategies(), DefaultBackoff())
	assert.Equal(t, PhasePending, plan.Phase())

	s, ok := plan.Start()
	require.True(t, ok)
	assert.Equal(t, "fast", s.Name)
	assert.Equal(t, PhaseAttempting, plan.Phase())

	next, delay, ok := plan.Fail(errors.New("first"))
	require.True(t, ok)
	assert.Equal(t, "standard", next.Name)
	assert.Equal(t, 2*time.Second, delay)

	next, delay, ok = plan.Fail(errors.New("second"))
	require.True(t, ok)
	assert.Equal(t, "patient", next.Name)
	assert.Equal(t, 4*time.Second, delay)

	_, _, ok = plan.Fail(errors.New("third"))
	require.False(t, ok)
	assert.Equal(t, PhaseExhausted, plan.Phase())

	failures := plan.Failures()
	require.Len(t, failures, 3)
	assert.Equal(t, []string{"fast", "standard", "patient"},
		[]string{failures[0].Strategy, failures[1].Strategy, failures[2].Strategy})

	exhausted := plan.Exhausted("https://x/oasis/")
	assert.EqualError(t, exhausted.Last, "third")
	assert.Contains(t, exhausted.Error(), "https://x/oasis/")
	assert.Contains(t, exhausted.Error(), "third")
}

func TestPlanSucceedStops(t *testing.T) {
	t.Parallel()

	plan := NewPlan(DefaultStrategies(), DefaultBackoff())
	_, ok := plan.Start()
	require.True(t, ok)
	plan.Succeed()
	assert.Equal(t, PhaseSucceeded, plan.Phase())

	_, _, ok = plan.Fail(errors.New("late"))
	assert.False(t, ok)
	assert.Empty(t, plan.Failures())
	_, idx := plan.Current()
	assert.Equal(t, -1, idx)
}

func TestPlanEmpty(t *testing.T) {
	t.Parallel()

	plan := NewPlan(nil, DefaultBackoff())
	_, ok := plan.Start()
	assert.False(t, ok)
	assert.Equal(t, PhaseExhausted, plan.Phase())
	assert.Contains(t, plan.Exhausted("u").Error(), "no load strategies")
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	b := DefaultBackoff()
	tests := []struct {
		failed int
		want   time.Duration
	}{
		{0, 0},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.failed), "failed=%d", tt.failed)
	}
}

func TestValidateStrategies(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateStrategies(DefaultStrategies()))
	require.NoError(t, ValidateStrategies(MetadataStrategies()))

	tests := []struct {
		name       string
		strategies []Strategy
	}{
		{"empty", nil},
		{"missing name", []Strategy{{Wait: "load", Timeout: time.Second}}},
		{"bad wait", []Strategy{{Name: "a", Wait: "commit", Timeout: time.Second}}},
		{"zero timeout", []Strategy{{Name: "a", Wait: "load"}}},
		{"not more patient", []Strategy{
			{Name: "a", Wait: "load", Timeout: 2 * time.Second, Settle: time.Second},
			{Name: "b", Wait: "load", Timeout: 2 * time.Second, Settle: 2 * time.Second},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, ValidateStrategies(tt.strategies))
		})
	}
}
