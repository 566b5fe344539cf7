package prompt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
	"github.com/agentforge/core/prompt"
)

type fakeLoader struct {
	templates map[prompt.Layer]map[string]prompt.Template
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{templates: map[prompt.Layer]map[string]prompt.Template{
		prompt.LayerSystem:  {},
		prompt.LayerTenant:  {},
		prompt.LayerFeature: {},
		prompt.LayerAgent:   {},
	}}
}

func (f *fakeLoader) put(t prompt.Template) {
	f.templates[t.Layer][t.ScopeID] = t
}

func (f *fakeLoader) Load(_ context.Context, layer prompt.Layer, scopeID string) (prompt.Template, bool, error) {
	t, ok := f.templates[layer][scopeID]
	return t, ok, nil
}

func baseSystemTemplate() prompt.Template {
	return prompt.Template{
		Layer:   prompt.LayerSystem,
		ScopeID: "agent-1",
		Template: "Base rules.\n{{merge.rules}}\n\nUser says: {{merge.user_input}}\n" +
			"Platform: {{ system.platform_name }} v{{ system.platform_version }}\nAgent: {{ agent.id }}",
		MergePoints: []prompt.MergePoint{
			{Name: "rules", Behavior: prompt.BehaviorAppend},
			{Name: "user_input", Behavior: prompt.BehaviorReplace},
		},
	}
}

func TestCompose_RendersMergePointsAndVariables(t *testing.T) {
	loader := newFakeLoader()
	loader.put(baseSystemTemplate())
	loader.put(prompt.Template{Layer: prompt.LayerAgent, ScopeID: "agent-1", Name: "rules", Template: "Agent-specific rule.", Version: 1})

	engine := prompt.NewEngine(loader, 0, "agentforge", "1.0")
	composed, err := engine.Compose(context.Background(), prompt.Input{
		AgentID:   "agent-1",
		UserInput: "hello there",
	})
	require.NoError(t, err)
	require.Contains(t, composed.Text, "Agent-specific rule.")
	require.Contains(t, composed.Text, "User says: hello there")
	require.Contains(t, composed.Text, "Platform: agentforge v1.0")
	require.Contains(t, composed.Text, "Agent: agent-1")
}

func TestCompose_MissingSystemLayerFails(t *testing.T) {
	loader := newFakeLoader()
	loader.put(prompt.Template{Layer: prompt.LayerAgent, ScopeID: "agent-1", Name: "rules", Version: 1})

	engine := prompt.NewEngine(loader, 0, "p", "1")
	_, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1"})
	require.Error(t, err)
	require.ErrorIs(t, err, toolerrors.ErrPromptNotFound)
}

func TestCompose_LockedMergePointRejectsOverride(t *testing.T) {
	loader := newFakeLoader()
	sys := baseSystemTemplate()
	sys.MergePoints = append(sys.MergePoints, prompt.MergePoint{Name: "rules", Behavior: prompt.BehaviorAppend, Locked: true})
	sys.MergePoints = sys.MergePoints[1:] // drop the unlocked duplicate "rules" entry
	loader.put(sys)
	loader.put(prompt.Template{Layer: prompt.LayerAgent, ScopeID: "agent-1", Name: "rules", Template: "override attempt", Version: 1})

	engine := prompt.NewEngine(loader, 0, "p", "1")
	_, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1"})
	require.Error(t, err)
	require.ErrorIs(t, err, toolerrors.ErrMergePointConflict)
}

func TestCompose_RequiredMergePointWithNoContentFails(t *testing.T) {
	loader := newFakeLoader()
	sys := prompt.Template{
		Layer:    prompt.LayerSystem,
		ScopeID:  "agent-1",
		Template: "{{merge.required_section}}",
		MergePoints: []prompt.MergePoint{
			{Name: "required_section", Behavior: prompt.BehaviorAppend, Required: true},
		},
	}
	loader.put(sys)
	loader.put(prompt.Template{Layer: prompt.LayerAgent, ScopeID: "agent-1", Version: 1})

	engine := prompt.NewEngine(loader, 0, "p", "1")
	_, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1"})
	require.Error(t, err)
	require.ErrorIs(t, err, toolerrors.ErrPromptValidation)
}

func TestCompose_UnknownVariableRendersEmpty(t *testing.T) {
	loader := newFakeLoader()
	loader.put(prompt.Template{Layer: prompt.LayerSystem, ScopeID: "agent-1", Template: "Value: [{{ missing.thing }}]"})
	loader.put(prompt.Template{Layer: prompt.LayerAgent, ScopeID: "agent-1", Version: 1})

	engine := prompt.NewEngine(loader, 0, "p", "1")
	composed, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Equal(t, "Value: []", composed.Text)
}

func TestCompose_CacheHitReturnsSameText(t *testing.T) {
	loader := newFakeLoader()
	loader.put(prompt.Template{Layer: prompt.LayerSystem, ScopeID: "agent-1", Template: "static text"})
	loader.put(prompt.Template{Layer: prompt.LayerAgent, ScopeID: "agent-1", Version: 1})

	engine := prompt.NewEngine(loader, 0, "p", "1")
	first, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1"})
	require.NoError(t, err)

	second, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Equal(t, first.CacheKey, second.CacheKey)
	require.Equal(t, first.Text, second.Text)
}

func TestCompose_InvalidateTenantClearsCache(t *testing.T) {
	loader := newFakeLoader()
	loader.put(prompt.Template{Layer: prompt.LayerSystem, ScopeID: "agent-1", Template: "static text"})
	loader.put(prompt.Template{Layer: prompt.LayerAgent, ScopeID: "agent-1", Version: 1})

	engine := prompt.NewEngine(loader, 0, "p", "1")
	tenant := ids.TenantID("tenant-1")
	_, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1", TenantID: &tenant})
	require.NoError(t, err)

	// Changing the template without a version bump leaves the cache key
	// unchanged, so the cached text keeps being served until invalidation.
	loader.put(prompt.Template{Layer: prompt.LayerSystem, ScopeID: "agent-1", Template: "changed text"})
	cached, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1", TenantID: &tenant})
	require.NoError(t, err)
	require.Equal(t, "static text", cached.Text)

	engine.InvalidateTenant(context.Background(), tenant)
	fresh, err := engine.Compose(context.Background(), prompt.Input{AgentID: "agent-1", TenantID: &tenant})
	require.NoError(t, err)
	require.Equal(t, "changed text", fresh.Text)
}
