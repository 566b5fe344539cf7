package visibility_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/toolspec"
	"github.com/agentforge/core/visibility"
)

func TestResolve_HiddenNeverEmits(t *testing.T) {
	resolved := visibility.Resolve(toolspec.VisibilityHidden, toolspec.KindFunction, visibility.RoleAdmin, visibility.DefaultConfig())
	require.Equal(t, toolspec.VisibilityHidden, resolved)
	require.False(t, visibility.Emit(resolved))
}

func TestResolve_SummaryEmitsToAnyRole(t *testing.T) {
	for _, role := range []visibility.Role{visibility.RoleEndUser, visibility.RoleDeveloper, visibility.RoleAdmin} {
		resolved := visibility.Resolve(toolspec.VisibilitySummary, toolspec.KindFunction, role, visibility.DefaultConfig())
		require.Equal(t, toolspec.VisibilitySummary, resolved)
	}
}

func TestResolve_FullDemotedForSummaryRole(t *testing.T) {
	resolved := visibility.Resolve(toolspec.VisibilityFull, toolspec.KindFunction, visibility.RoleEndUser, visibility.DefaultConfig())
	require.Equal(t, toolspec.VisibilitySummary, resolved)
}

func TestResolve_FullPassesForFullRole(t *testing.T) {
	resolved := visibility.Resolve(toolspec.VisibilityFull, toolspec.KindFunction, visibility.RoleDeveloper, visibility.DefaultConfig())
	require.Equal(t, toolspec.VisibilityFull, resolved)
}

func TestResolve_KindDemotionOverridesRole(t *testing.T) {
	cfg := visibility.DefaultConfig()
	cfg.KindDemotion = map[toolspec.Kind]toolspec.Visibility{toolspec.KindBash: toolspec.VisibilitySummary}

	resolved := visibility.Resolve(toolspec.VisibilityFull, toolspec.KindBash, visibility.RoleAdmin, cfg)
	require.Equal(t, toolspec.VisibilitySummary, resolved)
}

func TestResolve_EmptyVisibilityUsesConfiguredDefault(t *testing.T) {
	cfg := visibility.Config{Default: toolspec.VisibilityHidden}
	resolved := visibility.Resolve("", toolspec.KindFunction, visibility.RoleAdmin, cfg)
	require.Equal(t, toolspec.VisibilityHidden, resolved)
}

func TestRedactText(t *testing.T) {
	in := `connecting with api_key: sk-abc123 and password="hunter2"`
	out := visibility.RedactText(in)
	require.Contains(t, out, "api_key=[REDACTED]")
	require.Contains(t, out, "password=[REDACTED]")
	require.NotContains(t, out, "sk-abc123")
	require.NotContains(t, out, "hunter2")
}

func TestRedactFields_RecursesThroughNesting(t *testing.T) {
	in := map[string]any{
		"name": "alice",
		"auth": map[string]any{
			"Token": "abc",
			"nested": []any{
				map[string]any{"secret": "xyz"},
				"plain",
			},
		},
	}
	out := visibility.RedactFields(in, []string{"token", "secret"})

	require.Equal(t, "alice", out["name"])
	auth := out["auth"].(map[string]any)
	require.Equal(t, "[REDACTED]", auth["Token"])
	nested := auth["nested"].([]any)
	require.Equal(t, "[REDACTED]", nested[0].(map[string]any)["secret"])
	require.Equal(t, "plain", nested[1])
}

func TestSummarize(t *testing.T) {
	require.Equal(t, "Called calculator", visibility.Summarize(visibility.SummaryToolCall, "calculator", 0, false))
	require.Equal(t, "Tool calculator succeeded", visibility.Summarize(visibility.SummaryToolResult, "calculator", 0, true))
	require.Equal(t, "Tool calculator failed", visibility.Summarize(visibility.SummaryToolResult, "calculator", 0, false))
	require.Equal(t, "Reasoning step #3", visibility.Summarize(visibility.SummaryReasoning, "", 3, false))
}
