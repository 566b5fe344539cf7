// Package task implements C6: a streaming task state machine wrapping
// C4/C5, emitting ordered typed events, tracking parent/child task
// lineage, and supporting master-agent delegation routing. Grounded on the
// teacher's stream/subscription sink pattern (runtime/agent/stream) and its
// typed-event-with-common-envelope design (runtime/agent/hooks/events.go's
// embedded baseEvent), adapted to the flatter spec event-kind set.
package task

import (
	"context"
	"strings"
	"time"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/toolspec"
)

type (
	// State is a task's lifecycle state (spec §3 "Task").
	State string

	// Role is the speaker of a message part (spec §3 "Message").
	Role string

	// Message is one role + ordered text parts turn within a task.
	Message struct {
		Role  Role
		Parts []string
	}

	// Artifact is an opaque named output produced during a task run.
	Artifact struct {
		Name string
		Data map[string]any
	}

	// Task is a unit of work assigned to an agent (spec §3 "Task").
	Task struct {
		ID             ids.TaskID
		Tenant         ids.TenantID
		User           ids.UserID
		ParentTaskID   *ids.TaskID
		ConversationID *ids.ConversationID
		Messages       []Message
		State          State
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	// EventKind enumerates the event kinds a task stream may emit (spec
	// §4.6 "Event kinds").
	EventKind string

	// Event is one item on a task's event stream. Only the fields relevant
	// to Kind are populated, following the same kind-specific-payload
	// discipline as chain.Step.
	Event struct {
		Kind       EventKind
		TaskID     ids.TaskID
		Timestamp  time.Time
		Visibility toolspec.Visibility

		// status
		Status        State
		StatusMessage string

		// message
		MessageParts []string
		IsPartial    bool

		// artifact
		Artifact *Artifact

		// done
		FinalState State

		// error
		ErrorCode    string
		ErrorMessage string
		ErrorDetails map[string]any
	}
)

const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input_required"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"

	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"

	EventStatus   EventKind = "status"
	EventMessage  EventKind = "message"
	EventArtifact EventKind = "artifact"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// IsTerminal reports whether s is one of the absorbing terminal states.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// childContextMessageLimit is the number of most recent prior messages a
// child task carries forward as context (spec §4.6 "Child tasks").
const childContextMessageLimit = 5

// NewChildTask constructs a task derived from parent, carrying the parent's
// identity, tenant, user, and conversation id, plus up to the five most
// recent prior messages as context.
func NewChildTask(id ids.TaskID, parent Task, initial Message, now time.Time) Task {
	parentID := parent.ID
	context := parent.Messages
	if len(context) > childContextMessageLimit {
		context = context[len(context)-childContextMessageLimit:]
	}
	messages := make([]Message, 0, len(context)+1)
	messages = append(messages, context...)
	messages = append(messages, initial)

	return Task{
		ID:             id,
		Tenant:         parent.Tenant,
		User:           parent.User,
		ParentTaskID:   &parentID,
		ConversationID: parent.ConversationID,
		Messages:       messages,
		State:          StateSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RelabelToParent rewrites every event's TaskID to parentID and forwards it
// on the returned channel, closing it when src closes (spec §4.6 "All
// events emitted by the child are relabelled with the parent's task id").
func RelabelToParent(src <-chan Event, parentID ids.TaskID) <-chan Event {
	out := make(chan Event, cap(src))
	go func() {
		defer close(out)
		for evt := range src {
			evt.TaskID = parentID
			out <- evt
		}
	}()
	return out
}

// defaultCancelWords is the default configurable set of cancel words that
// clear an active delegation when matched exactly (case-insensitive,
// trimmed) against an incoming user message (spec §4.6 "a set of
// configurable cancel words"). DelegationRouter accepts an override via
// WithCancelWords; this set is only the fallback.
var defaultCancelWords = map[string]struct{}{
	"cancel": {}, "exit": {}, "quit": {}, "stop": {}, "reset": {},
}

// IsCancelWord reports whether text is one of the default delegation cancel
// words. DelegationRouter instances configured with WithCancelWords consult
// their own set instead; this helper exists for callers with no router of
// their own to ask.
func IsCancelWord(text string) bool {
	return matchesCancelWord(text, defaultCancelWords)
}

func matchesCancelWord(text string, words map[string]struct{}) bool {
	_, ok := words[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// contextKey is unused outside this package; present so task.Task values
// can be threaded through context.Context by callers that need to recover
// the originating task from nested calls (e.g. orchestrate's dispatch).
type contextKey struct{}

// WithTask returns a context carrying t, retrievable with TaskFromContext.
func WithTask(ctx context.Context, t Task) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// TaskFromContext recovers a Task previously attached with WithTask.
func TaskFromContext(ctx context.Context) (Task, bool) {
	t, ok := ctx.Value(contextKey{}).(Task)
	return t, ok
}
