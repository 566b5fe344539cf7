package orchestrate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/orchestrate"
)

func TestSynthesize_NoResults(t *testing.T) {
	require.Equal(t, "No responses received from sub-agents.", orchestrate.Synthesize(nil))
}

func TestSynthesize_NoSuccesses(t *testing.T) {
	results := []orchestrate.SubAgentResult{{AgentID: "a1", Success: false, Error: "boom"}}
	require.Equal(t, "All sub-agents failed to provide responses.", orchestrate.Synthesize(results))
}

func TestSynthesize_OneSuccessReturnedDirectly(t *testing.T) {
	results := []orchestrate.SubAgentResult{
		{AgentID: "a1", Success: false, Error: "boom"},
		{AgentID: "a2", Success: true, Text: "42"},
	}
	require.Equal(t, "42", orchestrate.Synthesize(results))
}

func TestSynthesize_MultipleSuccessesAreLabeledAndOrdered(t *testing.T) {
	results := []orchestrate.SubAgentResult{
		{AgentID: "zeta", Success: true, Text: "z-answer"},
		{AgentID: "alpha", Success: true, Text: "a-answer"},
	}
	out := orchestrate.Synthesize(results)
	require.Equal(t, "From alpha:\na-answer\n\nFrom zeta:\nz-answer", out)
}

func TestDispatch_Parallel(t *testing.T) {
	calls := map[ids.AgentID]string{"a1": "one", "a2": "two"}
	manager := orchestrate.NewManager(func(_ context.Context, agent ids.AgentID, _ string) (string, error) {
		return calls[agent], nil
	}, time.Second)

	answer, results, err := manager.Dispatch(context.Background(), orchestrate.StrategyParallel, []ids.AgentID{"a1", "a2"}, "hi")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Contains(t, answer, "From a1:\none")
	require.Contains(t, answer, "From a2:\ntwo")
}

func TestDispatch_SequentialStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	manager := orchestrate.NewManager(func(_ context.Context, _ ids.AgentID, _ string) (string, error) {
		return "unreachable", nil
	}, time.Second)

	_, results, err := manager.Dispatch(ctx, orchestrate.StrategySequential, []ids.AgentID{"a1"}, "hi")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
}

func TestDispatch_FirstSuccessReturnsWinner(t *testing.T) {
	manager := orchestrate.NewManager(func(_ context.Context, agent ids.AgentID, _ string) (string, error) {
		if agent == "slow" {
			time.Sleep(50 * time.Millisecond)
			return "", errors.New("too slow")
		}
		return "fast answer", nil
	}, time.Second)

	answer, _, err := manager.Dispatch(context.Background(), orchestrate.StrategyFirstSuccess, []ids.AgentID{"fast", "slow"}, "hi")
	require.NoError(t, err)
	require.Equal(t, "fast answer", answer)
}
