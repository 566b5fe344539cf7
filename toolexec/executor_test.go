package toolexec_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/cost"
	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
	"github.com/agentforge/core/toolexec"
	"github.com/agentforge/core/toolspec"
)

func registryWith(t *testing.T, def toolspec.Definition) *toolspec.Registry {
	t.Helper()
	r := toolspec.NewRegistry()
	require.NoError(t, r.Register(def))
	return r
}

func echoDef(name string) toolspec.Definition {
	return toolspec.Definition{
		Name:    ids.ToolName(name),
		Kind:    toolspec.KindFunction,
		Timeout: time.Second,
		Parameters: []toolspec.Parameter{
			{Name: "query", Type: toolspec.TypeString, Required: true},
		},
		Implementation: toolspec.ImplementationFunc(func(_ toolspec.ExecContext, args map[string]any) (map[string]any, error) {
			return map[string]any{"echo": args["query"]}, nil
		}),
	}
}

func TestExecute_ValidationFailure(t *testing.T) {
	r := registryWith(t, echoDef("echo"))
	ex := toolexec.New(r, cost.NewTracker(nil))

	_, err := ex.Execute(context.Background(), toolexec.CallContext{TaskID: "t1"}, "echo", map[string]any{}, cost.Budget{})
	require.Error(t, err)
	require.True(t, errors.Is(err, toolerrors.ErrToolValidation))
}

func TestExecute_PermissionDeniedUnderSkillScope(t *testing.T) {
	r := registryWith(t, echoDef("echo"))
	ex := toolexec.New(r, cost.NewTracker(nil))

	ctx := toolexec.WithSkillScope(context.Background(), []ids.ToolName{"other_tool"})
	_, err := ex.Execute(ctx, toolexec.CallContext{TaskID: "t1"}, "echo", map[string]any{"query": "hi"}, cost.Budget{})
	require.Error(t, err)
	require.True(t, errors.Is(err, toolerrors.ErrToolPermissionDenied))
}

func TestExecute_BudgetExceeded(t *testing.T) {
	r := registryWith(t, echoDef("echo"))
	tracker := cost.NewTracker(nil)
	ex := toolexec.New(r, tracker)

	maxCost := 0.01
	budget := cost.Budget{MaxCostUSD: &maxCost}
	cc := toolexec.CallContext{TaskID: "t1"}
	cost100 := 1.00
	cc.MaxCostUSD = &cost100

	_, err := ex.Execute(context.Background(), cc, "echo", map[string]any{"query": "hi"}, budget)
	require.Error(t, err)
	require.True(t, errors.Is(err, toolerrors.ErrCostBudgetExceeded))
}

func TestExecute_Timeout(t *testing.T) {
	def := echoDef("slow")
	def.Timeout = 10 * time.Millisecond
	def.Implementation = toolspec.ImplementationFunc(func(_ toolspec.ExecContext, _ map[string]any) (map[string]any, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, nil
	})
	r := registryWith(t, def)
	ex := toolexec.New(r, cost.NewTracker(nil))

	result, err := ex.Execute(context.Background(), toolexec.CallContext{TaskID: "t1"}, "slow", map[string]any{"query": "hi"}, cost.Budget{})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestExecute_RetryThenSucceeds(t *testing.T) {
	def := echoDef("flaky")
	attempt := 0
	def.Retry = toolspec.RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		Multiplier:     1,
		RetryablePatterns: []*regexp.Regexp{
			regexp.MustCompile("transient"),
		},
	}
	def.Implementation = toolspec.ImplementationFunc(func(_ toolspec.ExecContext, args map[string]any) (map[string]any, error) {
		attempt++
		if attempt < 2 {
			return nil, errors.New("transient failure")
		}
		return map[string]any{"echo": args["query"]}, nil
	})
	r := registryWith(t, def)
	ex := toolexec.New(r, cost.NewTracker(nil))

	result, err := ex.Execute(context.Background(), toolexec.CallContext{TaskID: "t1"}, "flaky", map[string]any{"query": "hi"}, cost.Budget{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.RetryCount)
}

func TestExecute_RedactsSensitiveFields(t *testing.T) {
	def := echoDef("sensitive")
	def.Visibility = toolspec.VisibilityConfig{SensitiveFields: []string{"secret"}}
	def.Implementation = toolspec.ImplementationFunc(func(_ toolspec.ExecContext, _ map[string]any) (map[string]any, error) {
		return map[string]any{"secret": "api-key-123", "public": "ok"}, nil
	})
	r := registryWith(t, def)
	ex := toolexec.New(r, cost.NewTracker(nil))

	result, err := ex.Execute(context.Background(), toolexec.CallContext{TaskID: "t1", Viewer: toolspec.VisibilitySummary}, "sensitive", map[string]any{"query": "hi"}, cost.Budget{})
	require.NoError(t, err)
	require.Equal(t, "[REDACTED]", result.Value["secret"])
	require.Equal(t, "ok", result.Value["public"])
}

func TestExecute_SchemaValidationRejectsMalformedObject(t *testing.T) {
	def := toolspec.Definition{
		Name:    "filter",
		Kind:    toolspec.KindFunction,
		Timeout: time.Second,
		Parameters: []toolspec.Parameter{
			{
				Name:     "filter",
				Type:     toolspec.TypeObject,
				Required: true,
				Schema:   `{"type":"object","properties":{"field":{"type":"string"}},"required":["field"]}`,
			},
		},
		Implementation: toolspec.ImplementationFunc(func(_ toolspec.ExecContext, args map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		}),
	}
	r := registryWith(t, def)
	ex := toolexec.New(r, cost.NewTracker(nil))

	_, err := ex.Execute(context.Background(), toolexec.CallContext{TaskID: "t1"}, "filter", map[string]any{"filter": map[string]any{}}, cost.Budget{})
	require.Error(t, err)
	require.True(t, errors.Is(err, toolerrors.ErrToolValidation))

	result, err := ex.Execute(context.Background(), toolexec.CallContext{TaskID: "t1"}, "filter", map[string]any{"filter": map[string]any{"field": "name"}}, cost.Budget{})
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestExecute_LLMToolUsageLiftedIntoResultAndCostRecord(t *testing.T) {
	def := toolspec.Definition{
		Name:    "llm",
		Kind:    toolspec.KindLLM,
		Timeout: time.Second,
		Implementation: toolspec.ImplementationFunc(func(_ toolspec.ExecContext, _ map[string]any) (map[string]any, error) {
			return map[string]any{
				"content":       "hi",
				"input_tokens":  10,
				"output_tokens": 5,
				"cost_usd":      0.002,
			}, nil
		}),
	}
	r := registryWith(t, def)
	tracker := cost.NewTracker(nil)
	ex := toolexec.New(r, tracker)

	result, err := ex.Execute(context.Background(), toolexec.CallContext{TaskID: "t1"}, "llm", map[string]any{}, cost.Budget{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 15, result.Tokens)
	require.InDelta(t, 0.002, result.CostUSD, 1e-9)

	summary := tracker.Summary("t1")
	require.Equal(t, 15, summary.Tokens)
	require.InDelta(t, 0.002, summary.CostUSD, 1e-9)
}

type recordingRepo struct{ recs []cost.Record }

func (r *recordingRepo) Write(_ context.Context, rec cost.Record) error {
	r.recs = append(r.recs, rec)
	return nil
}

func TestExecute_HappyPathRecordsCost(t *testing.T) {
	r := registryWith(t, echoDef("echo"))
	repo := &recordingRepo{}
	tracker := cost.NewTracker(repo)
	ex := toolexec.New(r, tracker)

	result, err := ex.Execute(context.Background(), toolexec.CallContext{TaskID: "t1"}, "echo", map[string]any{"query": "hi"}, cost.Budget{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "hi", result.Value["echo"])
	require.Len(t, repo.recs, 1)
	require.Equal(t, ids.TaskID("t1"), repo.recs[0].Task)
	require.Equal(t, ids.ToolName("echo"), repo.recs[0].ToolName)
}
