package handoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/handoff"
	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
)

func TestInitiateAndGetActive(t *testing.T) {
	m := handoff.NewManager(handoff.NewMemoryStore())
	now := time.Now()

	h, err := m.Initiate(context.Background(), "thread-1", "tenant1", "agent-a", "agent-b", "billing question", now)
	require.NoError(t, err)
	require.Equal(t, handoff.StatusActive, h.Status)

	got, ok, err := m.GetActive(context.Background(), "thread-1", "tenant1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ids.AgentID("agent-b"), got.TargetAgent)
}

func TestGetActive_WrongTenantReportsNotFound(t *testing.T) {
	m := handoff.NewManager(handoff.NewMemoryStore())
	now := time.Now()
	_, err := m.Initiate(context.Background(), "thread-1", "tenant1", "agent-a", "agent-b", "", now)
	require.NoError(t, err)

	_, ok, err := m.GetActive(context.Background(), "thread-1", "tenant2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInitiate_RejectsWhenAlreadyActive(t *testing.T) {
	m := handoff.NewManager(handoff.NewMemoryStore())
	now := time.Now()
	_, err := m.Initiate(context.Background(), "thread-1", "tenant1", "agent-a", "agent-b", "", now)
	require.NoError(t, err)

	_, err = m.Initiate(context.Background(), "thread-1", "tenant1", "agent-a", "agent-c", "", now)
	require.Error(t, err)
	require.True(t, errors.Is(err, toolerrors.ErrHandoff))
}

func TestComplete_IsTerminalAndIrreversible(t *testing.T) {
	m := handoff.NewManager(handoff.NewMemoryStore())
	now := time.Now()
	_, err := m.Initiate(context.Background(), "thread-1", "tenant1", "agent-a", "agent-b", "", now)
	require.NoError(t, err)

	completed, err := m.Complete(context.Background(), "thread-1", "tenant1", now)
	require.NoError(t, err)
	require.Equal(t, handoff.StatusCompleted, completed.Status)

	_, err = m.Cancel(context.Background(), "thread-1", "tenant1", "too late", now)
	require.Error(t, err)
	require.True(t, errors.Is(err, toolerrors.ErrHandoff))

	_, ok, err := m.GetActive(context.Background(), "thread-1", "tenant1")
	require.NoError(t, err)
	require.False(t, ok, "a completed handoff must never be returned as active again")
}

func TestReturn_SwapsSourceAndTarget(t *testing.T) {
	m := handoff.NewManager(handoff.NewMemoryStore())
	now := time.Now()
	_, err := m.Initiate(context.Background(), "thread-1", "tenant1", "agent-a", "agent-b", "", now)
	require.NoError(t, err)

	back, err := m.Return(context.Background(), "thread-1", "tenant1", "handled", now)
	require.NoError(t, err)
	require.Equal(t, ids.AgentID("agent-b"), back.SourceAgent)
	require.Equal(t, ids.AgentID("agent-a"), back.TargetAgent)
	require.Equal(t, handoff.StatusActive, back.Status)
}
