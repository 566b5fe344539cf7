package convo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentforge/core/handoff"
	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
)

// handoffMetadataKey is the state_metadata key a conversation's active (or
// most recently concluded) handoff session is written under.
const handoffMetadataKey = "handoff_session"

// HandoffStore adapts a Store into a handoff.Store, persisting the handoff
// session in the owning conversation's state metadata rather than a
// dedicated table. A thread maps 1:1 to a conversation (ids.ThreadID's
// doc comment), so threadID is used directly as the conversation id.
type HandoffStore struct {
	store  Store
	tenant func(ids.ThreadID) ids.TenantID
}

// NewHandoffStore wraps store. tenantOf resolves a thread's owning tenant,
// since handoff.Store.Save/Load do not themselves carry a tenant argument;
// callers typically close over a single-tenant context or a lookup keyed by
// thread prefix.
func NewHandoffStore(store Store, tenantOf func(ids.ThreadID) ids.TenantID) *HandoffStore {
	return &HandoffStore{store: store, tenant: tenantOf}
}

// Save upserts h into its conversation's state metadata.
func (s *HandoffStore) Save(ctx context.Context, h handoff.Handoff) error {
	convoID := ids.ConversationID(h.ThreadID)
	tenant := s.tenant(h.ThreadID)

	if _, err := s.store.CreateConversation(ctx, convoID, tenant, h.CreatedAt); err != nil {
		return err
	}
	c, err := s.store.GetConversation(ctx, convoID, tenant)
	if err != nil {
		return err
	}
	metadata := c.StateMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata[handoffMetadataKey] = handoffToMap(h)
	return s.store.SetStateMetadata(ctx, convoID, tenant, metadata)
}

// Load returns the handoff session recorded for threadID, if any.
func (s *HandoffStore) Load(ctx context.Context, threadID ids.ThreadID) (handoff.Handoff, bool, error) {
	convoID := ids.ConversationID(threadID)
	tenant := s.tenant(threadID)

	c, err := s.store.GetConversation(ctx, convoID, tenant)
	if err != nil {
		if errors.Is(err, toolerrors.ErrTaskNotFound) {
			return handoff.Handoff{}, false, nil
		}
		return handoff.Handoff{}, false, err
	}
	raw, ok := c.StateMetadata[handoffMetadataKey]
	if !ok {
		return handoff.Handoff{}, false, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return handoff.Handoff{}, false, fmt.Errorf("convo: handoff_session metadata has unexpected shape for thread %q", threadID)
	}
	return handoffFromMap(threadID, m), true, nil
}

func handoffToMap(h handoff.Handoff) map[string]any {
	return map[string]any{
		"tenant":        string(h.Tenant),
		"source_agent":  string(h.SourceAgent),
		"target_agent":  string(h.TargetAgent),
		"status":        string(h.Status),
		"reason":        h.Reason,
		"error_message": h.ErrorMessage,
		"created_at":    h.CreatedAt,
		"updated_at":    h.UpdatedAt,
	}
}

func handoffFromMap(thread ids.ThreadID, m map[string]any) handoff.Handoff {
	h := handoff.Handoff{ThreadID: thread}
	if v, ok := m["tenant"].(string); ok {
		h.Tenant = ids.TenantID(v)
	}
	if v, ok := m["source_agent"].(string); ok {
		h.SourceAgent = ids.AgentID(v)
	}
	if v, ok := m["target_agent"].(string); ok {
		h.TargetAgent = ids.AgentID(v)
	}
	if v, ok := m["status"].(string); ok {
		h.Status = handoff.Status(v)
	}
	if v, ok := m["reason"].(string); ok {
		h.Reason = v
	}
	if v, ok := m["error_message"].(string); ok {
		h.ErrorMessage = v
	}
	if v, ok := m["created_at"].(time.Time); ok {
		h.CreatedAt = v
	}
	if v, ok := m["updated_at"].(time.Time); ok {
		h.UpdatedAt = v
	}
	return h
}
