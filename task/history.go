package task

import (
	"context"
	"time"

	"github.com/agentforge/core/convo"
	"github.com/agentforge/core/ids"
)

// ReplayHistory loads a conversation's prior turns from store and converts
// them into Messages suitable for resuming a Task (spec §6: a resumed task
// replays its conversation's message history before re-entering `working`).
func ReplayHistory(ctx context.Context, store convo.Store, conversationID ids.ConversationID, tenant ids.TenantID) ([]Message, error) {
	stored, err := store.ListMessages(ctx, conversationID, tenant)
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(stored))
	for i, m := range stored {
		out[i] = Message{Role: Role(m.Role), Parts: m.Parts}
	}
	return out, nil
}

// PersistMessage appends m to t's conversation, creating the conversation
// first if this is its first message. A Task with no ConversationID is a
// no-op: not every task is tied to a durable conversation (spec §3 "Task",
// ConversationID is optional).
func PersistMessage(ctx context.Context, store convo.Store, t Task, m Message, now time.Time) error {
	if t.ConversationID == nil {
		return nil
	}
	convID := *t.ConversationID
	if _, err := store.CreateConversation(ctx, convID, t.Tenant, now); err != nil {
		return err
	}
	return store.AddMessage(ctx, convID, t.Tenant, convo.StoredMessage{
		Role:      string(m.Role),
		Parts:     m.Parts,
		CreatedAt: now,
	})
}
