package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/convo"
	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/task"
)

func TestPersistMessage_AndReplayHistory(t *testing.T) {
	store := convo.NewMemoryStore()
	convID := ids.ConversationID("conv-1")
	tk := task.Task{
		ID:             "task-1",
		Tenant:         "tenant-a",
		User:           "user-1",
		ConversationID: &convID,
	}

	now := time.Now()
	require.NoError(t, task.PersistMessage(context.Background(), store, tk, task.Message{Role: task.RoleUser, Parts: []string{"hello"}}, now))
	require.NoError(t, task.PersistMessage(context.Background(), store, tk, task.Message{Role: task.RoleAgent, Parts: []string{"hi there"}}, now.Add(time.Second)))

	history, err := task.ReplayHistory(context.Background(), store, convID, "tenant-a")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, task.RoleUser, history[0].Role)
	require.Equal(t, task.RoleAgent, history[1].Role)
}

func TestPersistMessage_NoConversationIsNoop(t *testing.T) {
	store := convo.NewMemoryStore()
	tk := task.Task{ID: "task-1", Tenant: "tenant-a"}

	err := task.PersistMessage(context.Background(), store, tk, task.Message{Role: task.RoleUser, Parts: []string{"hello"}}, time.Now())
	require.NoError(t, err)
}
