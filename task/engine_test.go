package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
	"github.com/agentforge/core/task"
)

func drain(ch <-chan task.Event) []task.Event {
	var events []task.Event
	for evt := range ch {
		events = append(events, evt)
	}
	return events
}

func TestProcessTask_Completed(t *testing.T) {
	engine := task.NewEngine(0)
	tk := task.Task{ID: "t1", Tenant: "tenant1"}

	events := drain(engine.ProcessTask(context.Background(), tk, func(_ context.Context, _ task.Task) (string, error) {
		return "42", nil
	}))

	require.Len(t, events, 3)
	require.Equal(t, task.EventStatus, events[0].Kind)
	require.Equal(t, task.StateWorking, events[0].Status)
	require.Equal(t, task.EventMessage, events[1].Kind)
	require.Equal(t, []string{"42"}, events[1].MessageParts)
	require.Equal(t, task.EventDone, events[2].Kind)
	require.Equal(t, task.StateCompleted, events[2].FinalState)
}

func TestProcessTask_Failed(t *testing.T) {
	engine := task.NewEngine(0)
	tk := task.Task{ID: "t2", Tenant: "tenant1"}

	events := drain(engine.ProcessTask(context.Background(), tk, func(_ context.Context, _ task.Task) (string, error) {
		return "", toolerrors.NewWithCode(toolerrors.ErrAgentProcessingError, "boom")
	}))

	require.Len(t, events, 3)
	require.Equal(t, task.EventStatus, events[0].Kind)
	require.Equal(t, task.EventError, events[1].Kind)
	require.Equal(t, "agent_processing_error", events[1].ErrorCode)
	require.Equal(t, task.EventDone, events[2].Kind)
	require.Equal(t, task.StateFailed, events[2].FinalState)
}

func TestProcessTask_InputRequiredIsNotTerminal(t *testing.T) {
	engine := task.NewEngine(0)
	tk := task.Task{ID: "t3", Tenant: "tenant1"}

	events := drain(engine.ProcessTask(context.Background(), tk, func(_ context.Context, _ task.Task) (string, error) {
		return "", &task.InputRequiredError{Message: "which city?"}
	}))

	require.Len(t, events, 2)
	require.Equal(t, task.EventStatus, events[0].Kind)
	require.Equal(t, task.StateWorking, events[0].Status)
	require.Equal(t, task.EventStatus, events[1].Kind)
	require.Equal(t, task.StateInputRequired, events[1].Status)
	require.Equal(t, "which city?", events[1].StatusMessage)
	for _, evt := range events {
		require.NotEqual(t, task.EventDone, evt.Kind)
	}
}

func TestProcessTask_Cancelled(t *testing.T) {
	engine := task.NewEngine(0)
	tk := task.Task{ID: "t4", Tenant: "tenant1"}

	events := drain(engine.ProcessTask(context.Background(), tk, func(_ context.Context, _ task.Task) (string, error) {
		return "", context.Canceled
	}))

	require.Len(t, events, 2)
	require.Equal(t, task.EventDone, events[1].Kind)
	require.Equal(t, task.StateCancelled, events[1].FinalState)
}

func TestNewChildTask_CarriesLineageAndCapsHistory(t *testing.T) {
	parent := task.Task{
		ID:             "parent-1",
		Tenant:         "tenant1",
		User:           "user1",
		ConversationID: convoPtr("conv-1"),
		Messages: []task.Message{
			{Role: task.RoleUser, Parts: []string{"1"}},
			{Role: task.RoleUser, Parts: []string{"2"}},
			{Role: task.RoleUser, Parts: []string{"3"}},
			{Role: task.RoleUser, Parts: []string{"4"}},
			{Role: task.RoleUser, Parts: []string{"5"}},
			{Role: task.RoleUser, Parts: []string{"6"}},
		},
	}
	child := task.NewChildTask("child-1", parent, task.Message{Role: task.RoleUser, Parts: []string{"go"}}, time.Unix(0, 0))

	require.NotNil(t, child.ParentTaskID)
	require.Equal(t, parent.ID, *child.ParentTaskID)
	require.Equal(t, parent.Tenant, child.Tenant)
	require.Equal(t, parent.User, child.User)
	require.Equal(t, parent.ConversationID, child.ConversationID)
	require.Len(t, child.Messages, 6) // 5 carried + 1 new
	require.Equal(t, []string{"2"}, child.Messages[0].Parts)
	require.Equal(t, []string{"go"}, child.Messages[5].Parts)
}

func TestRelabelToParent(t *testing.T) {
	src := make(chan task.Event, 2)
	src <- task.Event{Kind: task.EventMessage, TaskID: "child-1"}
	src <- task.Event{Kind: task.EventDone, TaskID: "child-1", FinalState: task.StateCompleted}
	close(src)

	var events []task.Event
	for evt := range task.RelabelToParent(src, "parent-1") {
		events = append(events, evt)
	}

	require.Len(t, events, 2)
	for _, evt := range events {
		require.Equal(t, ids.TaskID("parent-1"), evt.TaskID)
	}
}

func TestDelegationRouter_RoutesAndClearsOnCompletion(t *testing.T) {
	router := task.NewDelegationRouter()
	router.Delegate("master-1", "agent-billing")

	result := router.HandleIncoming("master-1", "what is my balance?")
	require.True(t, result.Routed)
	require.Equal(t, ids.AgentID("agent-billing"), result.Target)

	router.OnChildEvent("master-1", task.Event{Kind: task.EventStatus, Status: task.StateInputRequired})
	_, stillActive := router.Active("master-1")
	require.True(t, stillActive)

	router.OnChildEvent("master-1", task.Event{Kind: task.EventDone, FinalState: task.StateCompleted})
	_, activeAfterDone := router.Active("master-1")
	require.False(t, activeAfterDone)
}

func TestDelegationRouter_CancelWordClearsDelegation(t *testing.T) {
	router := task.NewDelegationRouter()
	router.Delegate("master-1", "agent-billing")

	result := router.HandleIncoming("master-1", "  Cancel ")
	require.True(t, result.Cleared)
	require.False(t, result.Routed)

	_, active := router.Active("master-1")
	require.False(t, active)
}

func TestIsCancelWord(t *testing.T) {
	require.True(t, task.IsCancelWord("stop"))
	require.True(t, task.IsCancelWord(" QUIT "))
	require.False(t, task.IsCancelWord("stop now"))
}

func TestDelegationRouter_WithCancelWordsOverridesDefaultSet(t *testing.T) {
	router := task.NewDelegationRouter(task.WithCancelWords("abort"))
	router.Delegate("master-1", "agent-billing")

	result := router.HandleIncoming("master-1", "cancel")
	require.False(t, result.Cleared)
	require.True(t, result.Routed, "default cancel word must not clear a router configured with a custom set")

	result = router.HandleIncoming("master-1", " ABORT ")
	require.True(t, result.Cleared)
	require.False(t, result.Routed)
}

func convoPtr(id ids.ConversationID) *ids.ConversationID { return &id }
