// Package chain implements C2: an append-only, ordered log of reasoning
// steps for a single task. Step numbers are dense and monotonic; no step is
// modified after append; a chain in a terminal state rejects further
// appends. Aggregate metrics (tokens, cost, step counts by kind) are
// maintained incrementally. Grounded on the teacher's provider-precise
// transcript ledger (runtime/agent/transcript/ledger.go): same append-only
// discipline, generalized from provider content parts to Reasoning Steps.
package chain

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
	"github.com/agentforge/core/toolspec"
)

type (
	// Status is the lifecycle state of a chain.
	Status string

	// Kind is the kind of a single reasoning step.
	Kind string

	// Step is a single record in a chain (spec §3 "Reasoning Step").
	Step struct {
		Number       int
		Kind         Kind
		Timestamp    time.Time
		Visibility   toolspec.Visibility
		ParentStep   *int
		Thinking     string
		ToolCall     *ToolCallPayload
		ToolResult   *ToolResultPayload
		Synthesis    *SynthesisPayload
		TokensDelta  int
		CostUSDDelta float64
	}

	// ToolCallPayload is the kind-specific payload for a "tool_call" step.
	ToolCallPayload struct {
		Name          ids.ToolName
		Arguments     map[string]any
		CorrelationID ids.CorrelationID
	}

	// ToolResultPayload is the kind-specific payload for a "tool_result"
	// step, linked to its tool_call by CorrelationID.
	ToolResultPayload struct {
		CorrelationID ids.CorrelationID
		Success       bool
		Value         map[string]any
		Error         string
	}

	// SynthesisPayload is the kind-specific payload for a "synthesis" step.
	SynthesisPayload struct {
		Text          string
		SourceStepIDs []int
	}

	// Metrics is the incrementally maintained aggregate for a chain.
	Metrics struct {
		TotalTokens      int
		TotalCostUSD     float64
		StepCountByKind  map[Kind]int
	}

	// Chain is an append-only reasoning log owned by a task.
	Chain struct {
		mu sync.Mutex

		ID     ids.ChainID
		TaskID ids.TaskID
		Agent  ids.AgentID
		Tenant ids.TenantID
		status Status

		steps   []Step
		metrics Metrics
		// openCorrelations tracks tool_call steps awaiting their matching
		// tool_result, keyed by correlation id.
		openCorrelations map[ids.CorrelationID]struct{}
	}
)

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"

	KindThinking   Kind = "thinking"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindSynthesis  Kind = "synthesis"
)

// New constructs a running Chain owned by the given task/agent/tenant.
func New(id ids.ChainID, task ids.TaskID, agent ids.AgentID, tenant ids.TenantID) *Chain {
	return &Chain{
		ID:               id,
		TaskID:           task,
		Agent:            agent,
		Tenant:           tenant,
		status:           StatusRunning,
		openCorrelations: make(map[ids.CorrelationID]struct{}),
		metrics:          Metrics{StepCountByKind: make(map[Kind]int)},
	}
}

// Status returns the chain's current lifecycle state.
func (c *Chain) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Steps returns a copy of the chain's steps in append order.
func (c *Chain) Steps() []Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// Metrics returns a copy of the chain's current aggregate metrics.
func (c *Chain) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.metrics
	out.StepCountByKind = make(map[Kind]int, len(c.metrics.StepCountByKind))
	for k, v := range c.metrics.StepCountByKind {
		out.StepCountByKind[k] = v
	}
	return out
}

// AddThinking appends a thinking step and returns its step number.
func (c *Chain) AddThinking(text string, visibility toolspec.Visibility) (int, error) {
	return c.append(Step{Kind: KindThinking, Visibility: visibility, Thinking: text})
}

// AddToolCall appends a tool_call step and returns the correlation id the
// caller must pass to the matching AddToolResult.
func (c *Chain) AddToolCall(name ids.ToolName, args map[string]any, visibility toolspec.Visibility) (ids.CorrelationID, int, error) {
	corr := ids.CorrelationID(ids.New())
	n, err := c.append(Step{
		Kind:       KindToolCall,
		Visibility: visibility,
		ToolCall:   &ToolCallPayload{Name: name, Arguments: args, CorrelationID: corr},
	})
	if err != nil {
		return "", 0, err
	}
	c.mu.Lock()
	c.openCorrelations[corr] = struct{}{}
	c.mu.Unlock()
	return corr, n, nil
}

// AddToolResult appends a tool_result step. It fails if corr does not match
// an open tool_call correlation id in this chain (spec §3 invariant: "every
// tool_result step has a matching prior tool_call step with the same
// correlation id in the same chain").
func (c *Chain) AddToolResult(corr ids.CorrelationID, success bool, value map[string]any, errMsg string, visibility toolspec.Visibility) (int, error) {
	c.mu.Lock()
	_, open := c.openCorrelations[corr]
	if open {
		delete(c.openCorrelations, corr)
	}
	c.mu.Unlock()
	if !open {
		return 0, toolerrors.Errorf("chain: tool_result has no matching open tool_call for correlation %q", corr)
	}
	return c.append(Step{
		Kind:       KindToolResult,
		Visibility: visibility,
		ToolResult: &ToolResultPayload{CorrelationID: corr, Success: success, Value: value, Error: errMsg},
	})
}

// AddSynthesis appends a synthesis step referencing the given source steps.
func (c *Chain) AddSynthesis(text string, sourceSteps []int, visibility toolspec.Visibility) (int, error) {
	return c.append(Step{
		Kind:       KindSynthesis,
		Visibility: visibility,
		Synthesis:  &SynthesisPayload{Text: text, SourceStepIDs: sourceSteps},
	})
}

// AddUsage increments the running token/cost aggregate for the most recently
// appended step without appending a new step, used when a tool result or LLM
// reply carries usage accounting after the step itself was recorded.
func (c *Chain) AddUsage(tokens int, costUSD float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.TotalTokens += tokens
	c.metrics.TotalCostUSD += costUSD
	if n := len(c.steps); n > 0 {
		c.steps[n-1].TokensDelta += tokens
		c.steps[n-1].CostUSDDelta += costUSD
	}
}

// MarkCompleted transitions the chain to StatusCompleted. Terminal states
// are absorbing: once completed or failed, the chain rejects further
// appends.
func (c *Chain) MarkCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRunning {
		c.status = StatusCompleted
	}
}

// MarkFailed transitions the chain to StatusFailed.
func (c *Chain) MarkFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRunning {
		c.status = StatusFailed
	}
}

func (c *Chain) append(step Step) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRunning {
		return 0, toolerrors.Errorf("chain %s: cannot append to a %s chain", c.ID, c.status)
	}
	step.Number = len(c.steps) + 1
	step.Timestamp = time.Now()
	c.steps = append(c.steps, step)
	c.metrics.StepCountByKind[step.Kind]++
	return step.Number, nil
}

// String renders a step for debug logging.
func (s Step) String() string {
	return fmt.Sprintf("step#%d kind=%s visibility=%s", s.Number, s.Kind, s.Visibility)
}
