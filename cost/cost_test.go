package cost_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/cost"
	"github.com/agentforge/core/ids"
)

func TestCheckBudget_ExceedsCostCap(t *testing.T) {
	tracker := cost.NewTracker(nil)
	task := ids.TaskID("task-1")
	cap := 1.0
	budget := cost.Budget{MaxCostUSD: &cap}

	require.True(t, tracker.CheckBudget(task, budget, 0.5, 0, false))
	require.NoError(t, tracker.Record(context.Background(), cost.Record{Task: task, CostUSD: 0.9}))
	require.False(t, tracker.CheckBudget(task, budget, 0.2, 0, false))
}

func TestCheckBudget_LLMCallCap(t *testing.T) {
	tracker := cost.NewTracker(nil)
	task := ids.TaskID("task-2")
	maxCalls := 1
	budget := cost.Budget{MaxLLMCalls: &maxCalls}

	require.True(t, tracker.CheckBudget(task, budget, 0, 0, true))
	require.NoError(t, tracker.RecordLLMCall(context.Background(), cost.Record{Task: task, Model: "gpt-4o-mini"}))
	require.False(t, tracker.CheckBudget(task, budget, 0, 0, true))
}

func TestGetRemaining(t *testing.T) {
	tracker := cost.NewTracker(nil)
	task := ids.TaskID("task-3")
	capCost := 5.0
	require.NoError(t, tracker.Record(context.Background(), cost.Record{Task: task, CostUSD: 2.0}))
	remaining := tracker.GetRemaining(task, cost.Budget{MaxCostUSD: &capCost})
	require.NotNil(t, remaining.MaxCostUSD)
	require.InDelta(t, 3.0, *remaining.MaxCostUSD, 0.0001)
}

func TestClearResetsSummary(t *testing.T) {
	tracker := cost.NewTracker(nil)
	task := ids.TaskID("task-4")
	require.NoError(t, tracker.Record(context.Background(), cost.Record{Task: task, CostUSD: 1.0}))
	tracker.Clear(task)
	require.Equal(t, cost.Summary{}, tracker.Summary(task))
}
