// Package skill implements C5: loading a named skill, installing its tool
// allowlist as a scope on the executor, optionally forking a depth-bounded
// sub-agent context, and running a react.Loop under the skill's effective
// configuration. Grounded on runtime/agent/run/run.go's parent-run/
// parent-tool-call bookkeeping, reused here for sub-agent fork depth instead
// of Temporal child workflows.
package skill

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentforge/core/chain"
	"github.com/agentforge/core/cost"
	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
	"github.com/agentforge/core/react"
	"github.com/agentforge/core/toolexec"
	"github.com/agentforge/core/toolspec"
)

type (
	// ContextMode is the skill's sub-agent composition mode (spec §3
	// "Skill").
	ContextMode string

	// ExecutionMode is the skill's run style. Only Autonomous is supported
	// (spec §4.5 "Skill execution mode"); Simple is accepted at parse time
	// for backward compatibility but rejected at activation.
	ExecutionMode string

	// Definition is a loaded skill's metadata (spec §3 "Skill").
	Definition struct {
		Name            ids.SkillName
		Description     string
		AllowedTools    []ids.ToolName // empty means "no restriction"
		ContextMode     ContextMode
		MaxIterations   int // 0 means "use platform default"
		Model           string
		Timeout         int // seconds; 0 means "use platform default"
		Instructions    string
		ExecutionMode   ExecutionMode
	}

	// Index resolves a skill by name (spec §4.5 step 1). Loading skill
	// files from disk is out of scope (spec §1); callers populate an Index
	// however they like.
	Index interface {
		Lookup(name ids.SkillName) (Definition, bool)
	}

	// MapIndex is a simple in-memory Index backed by a map.
	MapIndex map[ids.SkillName]Definition

	// PlatformDefaults are the fallback values used to build a skill's
	// effective config when a field is unset (spec §4.5 step 2).
	PlatformDefaults struct {
		MaxIterations      int
		Model              string
		MaxDepth           int
		MinChildIterations int
	}

	// ForkContext tracks sub-agent fork depth across nested skill
	// activations (spec §4.5 step 3).
	ForkContext struct {
		Depth int
	}

	// Orchestrator activates skills against a shared registry/executor and
	// drives react.Loop runs.
	Orchestrator struct {
		index    Index
		executor *toolexec.Executor
		defaults PlatformDefaults
	}

	// RunInput is one activation request.
	RunInput struct {
		SkillName   ids.SkillName
		UserMessage string
		SystemBase  string // default ReAct rules + tool descriptions, from C10
		Fork        ForkContext

		TaskID  ids.TaskID
		AgentID ids.AgentID
		Tenant  ids.TenantID
		ChainID ids.ChainID
		Budget  cost.Budget
		Viewer  toolspec.Visibility
	}
)

const (
	ContextModeInherit ContextMode = "inherit"
	ContextModeFork    ContextMode = "fork"

	ExecutionModeAutonomous ExecutionMode = "autonomous"
	ExecutionModeSimple     ExecutionMode = "simple"

	// maxDescriptionLength is the spec §8 boundary: a Description longer
	// than this is rejected rather than silently accepted or truncated.
	maxDescriptionLength = 1024
)

// Validate checks d against the invariants enforced at skill construction
// (spec §8 "Description strings exceeding 1024 characters in a skill spec
// are rejected at spec construction"). Parsing skill files from disk is out
// of scope (spec §1), so this is invoked by Orchestrator.Run at activation
// rather than at load time.
func (d Definition) Validate() error {
	if len(d.Description) > maxDescriptionLength {
		return toolerrors.NewWithCode(toolerrors.ErrSkillValidation,
			fmt.Sprintf("skill %q description is %d characters, exceeding the %d-character limit", d.Name, len(d.Description), maxDescriptionLength))
	}
	return nil
}

// Lookup implements Index over a plain map.
func (m MapIndex) Lookup(name ids.SkillName) (Definition, bool) {
	d, ok := m[name]
	return d, ok
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(index Index, executor *toolexec.Executor, defaults PlatformDefaults) *Orchestrator {
	if defaults.MaxDepth <= 0 {
		defaults.MaxDepth = 3
	}
	if defaults.MinChildIterations <= 0 {
		defaults.MinChildIterations = 2
	}
	return &Orchestrator{index: index, executor: executor, defaults: defaults}
}

// Run implements spec §4.5's 7-step activation sequence, returning the
// skill run's final answer.
func (o *Orchestrator) Run(ctx context.Context, in RunInput, c *chain.Chain) (string, error) {
	def, ok := o.index.Lookup(in.SkillName)
	if !ok {
		return "", toolerrors.NewWithCode(toolerrors.ErrSkillNotFound,
			fmt.Sprintf("skill %q not found", in.SkillName))
	}
	if err := def.Validate(); err != nil {
		return "", err
	}
	if def.ExecutionMode != "" && def.ExecutionMode != ExecutionModeAutonomous {
		return "", toolerrors.NewWithCode(toolerrors.ErrSkillNotFound,
			fmt.Sprintf("skill %q uses deprecated execution mode %q; only autonomous is supported", in.SkillName, def.ExecutionMode))
	}

	maxIterations := o.effectiveMaxIterations(def)
	effectiveModel := def.Model
	if effectiveModel == "" {
		effectiveModel = o.defaults.Model
	}

	if def.ContextMode == ContextModeFork {
		childDepth := in.Fork.Depth + 1
		if childDepth > o.defaults.MaxDepth {
			return "", toolerrors.NewWithCode(toolerrors.ErrSubAgentDepthExceeded,
				fmt.Sprintf("skill %q would fork to depth %d, exceeding max depth %d", in.SkillName, childDepth, o.defaults.MaxDepth))
		}
		maxIterations = halveFloor(maxIterations, o.defaults.MinChildIterations)
	}

	var scopeCtx context.Context
	if len(def.AllowedTools) > 0 {
		scopeCtx = toolexec.WithSkillScope(ctx, def.AllowedTools)
	} else {
		scopeCtx = ctx
	}

	systemPrompt := composeSkillPrompt(def, in.SystemBase)

	loop := react.New(react.Config{
		SystemPrompt:  systemPrompt,
		MaxIterations: maxIterations,
		Model:         effectiveModel,
		Chain:         c,
		Executor:      o.executor,
		Budget:        in.Budget,
		TaskID:        in.TaskID,
		AgentID:       in.AgentID,
		Tenant:        in.Tenant,
		ChainID:       in.ChainID,
		Viewer:        in.Viewer,
	}, in.UserMessage)

	// The skill scope is active only for the duration of this run, win or
	// lose (spec §4.5 step 7: "always deactivate the skill scope on exit").
	return loop.Run(scopeCtx)
}

func (o *Orchestrator) effectiveMaxIterations(def Definition) int {
	if def.MaxIterations > 0 {
		return def.MaxIterations
	}
	if o.defaults.MaxIterations > 0 {
		return o.defaults.MaxIterations
	}
	return 10
}

func halveFloor(n, floor int) int {
	half := n / 2
	if half < floor {
		return floor
	}
	return half
}

func composeSkillPrompt(def Definition, base string) string {
	if strings.TrimSpace(def.Instructions) == "" {
		return base
	}
	return def.Instructions + "\n\n" + base
}
