// Package orchestrate implements C8: dispatching a request to a set of
// sub-agents under one of three strategies (parallel, sequential,
// first-success) and synthesizing their results into one response.
// Grounded on kadirpekel-hector's workflowagent/parallel.go errgroup
// fan-out (golang.org/x/sync/errgroup.WithContext + per-branch goroutine),
// adapted from that package's iter.Seq2 event-yielding shape to a simpler
// collect-all-results-then-synthesize contract, since the spec's
// orchestration manager returns one synthesized answer rather than a
// re-streamed event sequence.
package orchestrate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentforge/core/ids"
)

// Strategy selects how SubAgentCall is dispatched to a set of sub-agents
// (spec §4.8 "Dispatch strategies").
type Strategy string

const (
	StrategyParallel     Strategy = "parallel"
	StrategySequential   Strategy = "sequential"
	StrategyFirstSuccess Strategy = "first_success"
)

// DefaultCallTimeout bounds a single sub-agent call absent an explicit
// per-request deadline (spec §4.8 "default 30s per-call deadline").
const DefaultCallTimeout = 30 * time.Second

// SubAgentCall invokes one sub-agent with text and returns its answer.
type SubAgentCall func(ctx context.Context, agent ids.AgentID, text string) (string, error)

// SubAgentResult is one sub-agent's outcome (spec §4.8 "SubAgentResult").
type SubAgentResult struct {
	AgentID ids.AgentID
	Success bool
	Text    string
	Error   string
	Latency time.Duration
}

// Manager dispatches a message to a set of sub-agents and synthesizes a
// combined response.
type Manager struct {
	call        SubAgentCall
	callTimeout time.Duration
}

// NewManager constructs a Manager. callTimeout of zero selects
// DefaultCallTimeout.
func NewManager(call SubAgentCall, callTimeout time.Duration) *Manager {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Manager{call: call, callTimeout: callTimeout}
}

// Dispatch runs text against agents under strategy and returns the
// synthesized response (spec §4.8).
func (m *Manager) Dispatch(ctx context.Context, strategy Strategy, agents []ids.AgentID, text string) (string, []SubAgentResult, error) {
	var results []SubAgentResult
	switch strategy {
	case StrategySequential:
		results = m.dispatchSequential(ctx, agents, text)
	case StrategyFirstSuccess:
		results = m.dispatchFirstSuccess(ctx, agents, text)
	default:
		results = m.dispatchParallel(ctx, agents, text)
	}
	return Synthesize(results), results, nil
}

func (m *Manager) dispatchParallel(ctx context.Context, agents []ids.AgentID, text string) []SubAgentResult {
	results := make([]SubAgentResult, len(agents))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		i, agent := i, agent
		group.Go(func() error {
			results[i] = m.callOne(groupCtx, agent, text)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (m *Manager) dispatchSequential(ctx context.Context, agents []ids.AgentID, text string) []SubAgentResult {
	results := make([]SubAgentResult, 0, len(agents))
	for _, agent := range agents {
		if err := ctx.Err(); err != nil {
			results = append(results, SubAgentResult{AgentID: agent, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, m.callOne(ctx, agent, text))
	}
	return results
}

// dispatchFirstSuccess races all agents in parallel and cancels the rest as
// soon as the first success lands, but still collects every result that
// had already completed by that point (including failures), so the
// synthesis rules in Synthesize see the full picture of what was tried.
func (m *Manager) dispatchFirstSuccess(ctx context.Context, agents []ids.AgentID, text string) []SubAgentResult {
	type indexed struct {
		idx    int
		result SubAgentResult
	}
	resultsCh := make(chan indexed, len(agents))
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(raceCtx)
	for i, agent := range agents {
		i, agent := i, agent
		group.Go(func() error {
			resultsCh <- indexed{idx: i, result: m.callOne(groupCtx, agent, text)}
			return nil
		})
	}
	go func() {
		_ = group.Wait()
		close(resultsCh)
	}()

	results := make([]SubAgentResult, len(agents))
	seen := make([]bool, len(agents))
	for item := range resultsCh {
		results[item.idx] = item.result
		seen[item.idx] = true
		if item.result.Success {
			cancel()
		}
	}
	out := make([]SubAgentResult, 0, len(agents))
	for i, ok := range seen {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}

func (m *Manager) callOne(ctx context.Context, agent ids.AgentID, text string) SubAgentResult {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	start := time.Now()
	answer, err := m.call(callCtx, agent, text)
	latency := time.Since(start)
	if err != nil {
		return SubAgentResult{AgentID: agent, Success: false, Error: err.Error(), Latency: latency}
	}
	return SubAgentResult{AgentID: agent, Success: true, Text: answer, Latency: latency}
}

// Synthesize combines sub-agent results into one response string following
// spec §4.8's fixed rules: no results at all, no successes, exactly one
// success (returned directly), or multiple successes (concatenated
// "From <agent_id>:" blocks, in a stable agent-id order so synthesis is
// deterministic regardless of completion order).
func Synthesize(results []SubAgentResult) string {
	successes := make([]SubAgentResult, 0, len(results))
	for _, r := range results {
		if r.Success {
			successes = append(successes, r)
		}
	}

	switch {
	case len(results) == 0:
		return "No responses received from sub-agents."
	case len(successes) == 0:
		return "All sub-agents failed to provide responses."
	case len(successes) == 1:
		return successes[0].Text
	default:
		sort.Slice(successes, func(i, j int) bool { return successes[i].AgentID < successes[j].AgentID })
		blocks := make([]string, 0, len(successes))
		for _, r := range successes {
			blocks = append(blocks, fmt.Sprintf("From %s:\n%s", r.AgentID, r.Text))
		}
		return strings.Join(blocks, "\n\n")
	}
}
