package task_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/internal/hooks"
	"github.com/agentforge/core/task"
)

func TestProcessTask_PublishesToBus(t *testing.T) {
	bus := hooks.NewBus()

	var mu sync.Mutex
	var names []string
	sub, err := bus.Register(hooks.SubscriberFunc(func(_ context.Context, evt hooks.Event) error {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, evt.Name())
		return nil
	}))
	require.NoError(t, err)
	defer sub.Close()

	engine := task.NewEngine(0, task.WithBus(bus))
	tk := task.Task{ID: "t1", Tenant: "tenant1"}
	drain(engine.ProcessTask(context.Background(), tk, func(_ context.Context, _ task.Task) (string, error) {
		return "ok", nil
	}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"task.status", "task.message", "task.done"}, names)
}
