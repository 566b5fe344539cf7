package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/config"
	"github.com/agentforge/core/prompt"
)

type emptyLoader struct{}

func (emptyLoader) Load(_ context.Context, _ prompt.Layer, _ string) (prompt.Template, bool, error) {
	return prompt.Template{}, false, nil
}

func TestFromEnv_Defaults(t *testing.T) {
	d := config.FromEnv()
	require.Equal(t, "gpt-4o-mini", d.PlatformModel)
	require.Equal(t, 10, d.MaxIterations)
	require.Equal(t, 3, d.MaxSkillDepth)
}

func TestSkillDefaults_MapsFields(t *testing.T) {
	d := config.FromEnv()
	sd := d.SkillDefaults()
	require.Equal(t, d.MaxSkillDepth, sd.MaxDepth)
	require.Equal(t, d.MinChildIterations, sd.MinChildIterations)
	require.Equal(t, d.PlatformModel, sd.Model)
}

func TestOrchestrateManager_UsesConfiguredTimeout(t *testing.T) {
	d := config.FromEnv()
	called := false
	var deadline time.Time
	var hasDeadline bool
	start := time.Now()
	manager := d.OrchestrateManager(func(ctx context.Context, _ ids.AgentID, text string) (string, error) {
		called = true
		deadline, hasDeadline = ctx.Deadline()
		return text, nil
	})
	require.NotNil(t, manager)
	_, _, err := manager.Dispatch(context.Background(), "sequential", []ids.AgentID{"agent-1"}, "hi")
	require.NoError(t, err)
	require.True(t, called)
	require.True(t, hasDeadline)
	require.WithinDuration(t, start.Add(d.SubAgentCallTimeout), deadline, time.Second)
}

func TestPromptEngine_ConstructsEngine(t *testing.T) {
	d := config.FromEnv()
	engine := d.PromptEngine(emptyLoader{}, "agentforge", "1.0")
	require.NotNil(t, engine)
}
