package task

import (
	"strings"
	"sync"

	"github.com/agentforge/core/ids"
)

// DelegationRouter tracks, per master task, which sub-agent currently owns
// the conversation so a master agent can hand off a run of turns to a
// delegate and route subsequent user messages straight to it (spec §4.6
// "Master agent delegation routing").
type DelegationRouter struct {
	mu          sync.Mutex
	delegated   map[ids.TaskID]ids.AgentID
	cancelWords map[string]struct{}
}

// RouterOption configures a DelegationRouter at construction time.
type RouterOption func(*DelegationRouter)

// WithCancelWords overrides the router's configurable set of cancel words
// (spec §4.6 "a set of configurable cancel words"), replacing
// defaultCancelWords entirely. Matching is case-insensitive and trims
// surrounding whitespace, same as the default set.
func WithCancelWords(words ...string) RouterOption {
	return func(r *DelegationRouter) {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
		}
		r.cancelWords = set
	}
}

// NewDelegationRouter constructs an empty router, defaulting its cancel
// words to defaultCancelWords unless overridden with WithCancelWords.
func NewDelegationRouter(opts ...RouterOption) *DelegationRouter {
	r := &DelegationRouter{
		delegated:   make(map[ids.TaskID]ids.AgentID),
		cancelWords: defaultCancelWords,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Delegate marks agent as the active delegate for masterTask.
func (r *DelegationRouter) Delegate(masterTask ids.TaskID, agent ids.AgentID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegated[masterTask] = agent
}

// Active returns the currently delegated agent for masterTask, if any.
func (r *DelegationRouter) Active(masterTask ids.TaskID) (ids.AgentID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.delegated[masterTask]
	return agent, ok
}

// Clear removes any active delegation for masterTask.
func (r *DelegationRouter) Clear(masterTask ids.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.delegated, masterTask)
}

// RouteResult describes what HandleIncoming decided to do with an incoming
// user message.
type RouteResult struct {
	// Target is the delegate agent the message should be forwarded to.
	// Valid only when Routed is true.
	Target ids.AgentID
	// Routed is true when the message was forwarded to an active delegate.
	Routed bool
	// Cleared is true when the message was a cancel word that ended an
	// active delegation (the message itself is not forwarded).
	Cleared bool
}

// HandleIncoming decides how an incoming user message for masterTask should
// be handled given the router's current delegation state: forwarded to an
// active delegate, or treated as a cancel word that clears the delegation,
// or left for the master agent itself when there is no active delegation.
func (r *DelegationRouter) HandleIncoming(masterTask ids.TaskID, text string) RouteResult {
	agent, ok := r.Active(masterTask)
	if !ok {
		return RouteResult{}
	}
	if matchesCancelWord(text, r.cancelWords) {
		r.Clear(masterTask)
		return RouteResult{Cleared: true}
	}
	return RouteResult{Target: agent, Routed: true}
}

// OnChildEvent updates delegation state in response to an event surfaced by
// the active delegate. Delegation is cleared when the delegate reaches a
// completed done event; it is intentionally left active across
// status(input_required), since the delegate still owns the conversation
// while it waits for more input (spec §4.6).
func (r *DelegationRouter) OnChildEvent(masterTask ids.TaskID, evt Event) {
	if evt.Kind == EventDone && evt.FinalState == StateCompleted {
		r.Clear(masterTask)
	}
}
