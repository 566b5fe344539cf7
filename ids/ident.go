// Package ids defines the strong string identifier types shared across the
// core so callers cannot accidentally mix tenant ids, task ids, and tool
// names at compile time.
package ids

import "github.com/google/uuid"

type (
	// TenantID identifies a tenant. Every repository read and write in the
	// core is scoped by TenantID.
	TenantID string

	// UserID identifies the end user that owns a task.
	UserID string

	// TaskID identifies a single unit of work assigned to an agent.
	TaskID string

	// AgentID identifies a named agent (e.g. "service.agent_name").
	AgentID string

	// ToolName identifies a registered tool. Names are lowercase identifiers
	// per spec; snake_case parameter names are enforced at registration time.
	ToolName string

	// ChainID identifies a reasoning chain owned by a task.
	ChainID string

	// CorrelationID links a tool_call step to its tool_result step within a
	// single reasoning chain.
	CorrelationID string

	// ConversationID identifies a tenant-scoped conversation used for
	// history replay (C6) and handoff-session persistence (C9).
	ConversationID string

	// ThreadID identifies a handoff thread. A thread maps 1:1 to a
	// conversation in this core but is kept as a distinct type because
	// handoff state is keyed by thread, not by the conversation's full
	// identity, in spec §4.9.
	ThreadID string

	// SkillName identifies a loaded skill by its unique name.
	SkillName string
)

// New returns a fresh random identifier string suitable for any of the
// strong id types above. Callers convert the result to the desired type,
// e.g. ids.TaskID(ids.New()).
func New() string {
	return uuid.NewString()
}
