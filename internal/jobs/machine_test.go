package jobs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachines_TransitionsAreMonotonic(t *testing.T) {
	for _, m := range []*Machine{BudgetMachine, ComparisonMachine} {
		t.Run(string(m.Kind()), func(t *testing.T) {
			path := m.Path()
			for _, from := range path {
				for _, to := range path {
					if m.Allows(from, to) {
						assert.Greater(t, m.Rank(to), m.Rank(from), "%s -> %s", from, to)
					}
				}
			}
		})
	}
}

func TestMachines_TerminalStatusesHaveNoExits(t *testing.T) {
	for _, m := range []*Machine{BudgetMachine, ComparisonMachine} {
		for _, from := range m.Path() {
			if !from.IsTerminal() {
				continue
			}
			for _, to := range m.Path() {
				assert.False(t, m.Allows(from, to), "%s: %s -> %s", m.Kind(), from, to)
			}
		}
	}
}

func TestBudgetMachine(t *testing.T) {
	assert.True(t, BudgetMachine.Allows(StatusQueued, StatusProcessing))
	assert.True(t, BudgetMachine.Allows(StatusProcessing, StatusDone))
	assert.True(t, BudgetMachine.Allows(StatusProcessing, StatusError))

	assert.False(t, BudgetMachine.Allows(StatusQueued, StatusDone))
	assert.False(t, BudgetMachine.Allows(StatusProcessing, StatusQueued))
	assert.False(t, BudgetMachine.Knows(StatusAnalyzingDiff))
	assert.Equal(t, -1, BudgetMachine.Rank(StatusCompleted))
}

func TestComparisonMachine(t *testing.T) {
	happy := []Status{
		StatusQueuedForAnalysis,
		StatusProcessing,
		StatusAnalyzingDiff,
		StatusGeneratingImpactos,
		StatusCompleted,
	}
	for i := 0; i+1 < len(happy); i++ {
		assert.NoError(t, ComparisonMachine.Check(happy[i], happy[i+1]))
	}

	for _, s := range []Status{StatusProcessing, StatusAnalyzingDiff, StatusGeneratingImpactos} {
		assert.True(t, ComparisonMachine.Allows(s, StatusError), "%s -> error", s)
	}

	err := ComparisonMachine.Check(StatusProcessing, StatusGeneratingImpactos)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, ComparisonMachine.Allows(StatusQueuedForAnalysis, StatusError))
}

func TestNewMachine_PanicsOnBackwardsTransition(t *testing.T) {
	assert.Panics(t, func() {
		NewMachine("broken", []Status{"a", "b"}, map[Status][]Status{"b": {"a"}})
	})
	assert.Panics(t, func() {
		NewMachine("broken", []Status{"a", StatusDone}, map[Status][]Status{StatusDone: {"a"}})
	})
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusGeneratingImpactos.IsTerminal())
}
