// Package cost implements C3: a per-task in-memory cost/token/call tally
// with budget gating, plus an optional durable write-through hook. Updates
// are guarded by a per-task lock; the aggregate across tasks is eventually
// consistent, matching spec §5's "Shared-resource policy" for the cost
// tracker. Cross-process coordination is out of scope (spec §4.3):
// budgets are a soft in-process gate.
package cost

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/core/ids"
)

type (
	// Record is an immutable cost attribution for one tool/LLM call
	// (spec §3 "Cost Record").
	Record struct {
		Tenant    ids.TenantID
		Task      ids.TaskID
		Chain     ids.ChainID
		Step      int
		ToolName  ids.ToolName
		CostUSD   float64
		Tokens    int
		Model     string
		Timestamp time.Time
	}

	// Budget is three optional caps; an unset (nil) cap is unlimited
	// (spec §4.3).
	Budget struct {
		MaxCostUSD   *float64
		MaxTokens    *int
		MaxLLMCalls  *int
	}

	// Summary is the running per-task tally.
	Summary struct {
		CostUSD  float64
		Tokens   int
		LLMCalls int
	}

	// Repository optionally persists cost records durably. A Tracker
	// without a Repository still enforces budgets correctly; the
	// repository is purely a write-through sink (spec §4.3).
	Repository interface {
		Write(ctx context.Context, rec Record) error
	}

	// Tracker is the per-task cost tally described in spec §4.3.
	Tracker struct {
		mu    sync.Mutex
		tasks map[ids.TaskID]*Summary
		repo  Repository
	}
)

// NewTracker constructs a Tracker. repo may be nil, in which case records
// are tallied in-process only.
func NewTracker(repo Repository) *Tracker {
	return &Tracker{tasks: make(map[ids.TaskID]*Summary), repo: repo}
}

// Record tallies rec against its task and writes it through to the
// repository, if configured. Record never fails the caller's flow on a
// repository error; write-through failures are the caller's responsibility
// to observe (e.g. via a logger) since the spec treats the in-process tally
// as authoritative for gating.
func (t *Tracker) Record(ctx context.Context, rec Record) error {
	t.mu.Lock()
	s := t.summaryLocked(rec.Task)
	s.CostUSD += rec.CostUSD
	s.Tokens += rec.Tokens
	t.mu.Unlock()

	if t.repo != nil {
		return t.repo.Write(ctx, rec)
	}
	return nil
}

// RecordLLMCall is Record plus incrementing the LLM-call counter, used by
// C4's ReAct loop each time it invokes the LLM tool.
func (t *Tracker) RecordLLMCall(ctx context.Context, rec Record) error {
	t.mu.Lock()
	s := t.summaryLocked(rec.Task)
	s.CostUSD += rec.CostUSD
	s.Tokens += rec.Tokens
	s.LLMCalls++
	t.mu.Unlock()

	if t.repo != nil {
		return t.repo.Write(ctx, rec)
	}
	return nil
}

// CheckBudget returns false if adding extraCost/extraTokens/extraLLMCall to
// the task's current tally would exceed any of budget's set caps. It does
// not mutate the tally; callers record usage separately after a successful
// dispatch (spec §4.3, §8 "Cost budget" boundary behavior).
func (t *Tracker) CheckBudget(task ids.TaskID, budget Budget, extraCostUSD float64, extraTokens int, isLLMCall bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.summaryLocked(task)

	if budget.MaxCostUSD != nil && s.CostUSD+extraCostUSD > *budget.MaxCostUSD {
		return false
	}
	if budget.MaxTokens != nil && s.Tokens+extraTokens > *budget.MaxTokens {
		return false
	}
	if isLLMCall && budget.MaxLLMCalls != nil && s.LLMCalls+1 > *budget.MaxLLMCalls {
		return false
	}
	return true
}

// GetRemaining returns the unused portion of budget given the task's
// current tally. A nil cap in budget yields a nil remaining value (means
// unlimited).
func (t *Tracker) GetRemaining(task ids.TaskID, budget Budget) Budget {
	t.mu.Lock()
	s := t.summaryLocked(task)
	t.mu.Unlock()

	var out Budget
	if budget.MaxCostUSD != nil {
		remaining := *budget.MaxCostUSD - s.CostUSD
		out.MaxCostUSD = &remaining
	}
	if budget.MaxTokens != nil {
		remaining := *budget.MaxTokens - s.Tokens
		out.MaxTokens = &remaining
	}
	if budget.MaxLLMCalls != nil {
		remaining := *budget.MaxLLMCalls - s.LLMCalls
		out.MaxLLMCalls = &remaining
	}
	return out
}

// Summary returns a copy of the current tally for task.
func (t *Tracker) Summary(task ids.TaskID) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.summaryLocked(task)
}

// Clear removes the tally for task. Tasks are append-only in the store
// (spec §3 "Ownership & lifecycle") but the in-process tally is freed once
// the task reaches a terminal state to bound memory.
func (t *Tracker) Clear(task ids.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, task)
}

func (t *Tracker) summaryLocked(task ids.TaskID) *Summary {
	s, ok := t.tasks[task]
	if !ok {
		s = &Summary{}
		t.tasks[task] = s
	}
	return s
}
