// Package toolspec defines tool metadata: parameter specs, retry policy,
// visibility configuration, and permission requirements (spec §3 "Tool
// Definition"). It is consumed by toolexec's Executor and by skill's
// Orchestrator for allowlist filtering.
package toolspec

import (
	"regexp"
	"time"

	"github.com/agentforge/core/ids"
)

type (
	// Kind tags a tool with its implementation category.
	Kind string

	// Parameter describes one named argument accepted by a tool. Parameter
	// names must be snake_case per spec §3's "Tool Definition" invariant.
	Parameter struct {
		Name     string
		Type     PrimitiveType
		Required bool
		Default  any
		// Schema is an optional JSON Schema source validating an object or
		// array parameter's shape beyond the primitive type check (e.g. a
		// tool that accepts a structured filter object). Empty means no
		// schema validation beyond the primitive type match.
		Schema string
	}

	// PrimitiveType enumerates the argument types the executor validates
	// against (spec §4.1 step 1: "types match").
	PrimitiveType string

	// RetryPolicy controls how toolexec.Executor retries a failed call.
	// Implementers must document their own retryable-error pattern list;
	// the spec leaves the default unspecified (spec §9). The default here
	// is empty: nothing is retried unless a tool definition opts in.
	RetryPolicy struct {
		MaxRetries      int
		InitialBackoff  time.Duration
		Multiplier      float64
		RetryablePatterns []*regexp.Regexp
	}

	// VisibilityConfig declares how a tool's steps/results should default
	// for visibility filtering (C7) absent a more specific per-tool-kind
	// rule.
	VisibilityConfig struct {
		DefaultLevel    Visibility
		SummaryTemplate string
		SensitiveFields []string
	}

	// Visibility is one of {full, summary, hidden} (spec §3). Hidden is
	// irrevocable: once a step or event is marked hidden it is never
	// emitted regardless of viewer role.
	Visibility string

	// Permission declares the roles and audit level required to invoke a
	// tool.
	Permission struct {
		RequiredRoles []string
		AuditLevel    string
	}

	// Definition is the full metadata for a registered tool (spec §3 "Tool
	// Definition").
	Definition struct {
		Name        ids.ToolName
		Kind        Kind
		Description string
		Parameters  []Parameter
		Timeout     time.Duration // per attempt; zero means the executor's 30s default
		Retry       RetryPolicy
		CacheTTL    time.Duration // zero means not cacheable
		Visibility  VisibilityConfig
		Permission  Permission
		// Implementation is invoked by toolexec.Executor to perform the
		// tool's side effect. It receives the validated argument map.
		Implementation Implementation
	}

	// Implementation performs the side effect of a tool call. Invoke is
	// given no deadline (ExecContext carries none): when the definition's
	// Timeout elapses first, the executor stops waiting, reports a
	// tool_timeout failure, and leaves the Invoke call running in its
	// goroutine.
	Implementation interface {
		Invoke(ctx ExecContext, args map[string]any) (map[string]any, error)
	}

	// ImplementationFunc adapts a plain function to Implementation.
	ImplementationFunc func(ctx ExecContext, args map[string]any) (map[string]any, error)

	// ExecContext is the minimal execution context implementations receive;
	// it is a restricted view of toolexec.CallContext so tool authors
	// cannot reach into executor internals.
	ExecContext interface {
		TaskID() ids.TaskID
		AgentID() ids.AgentID
		TenantID() ids.TenantID
		ChainID() ids.ChainID
		CorrelationID() ids.CorrelationID
	}
)

const (
	KindFunction   Kind = "function"
	KindAPI        Kind = "api"
	KindBash       Kind = "bash"
	KindFileSystem Kind = "file_system"
	KindGlob       Kind = "glob"
	KindGrep       Kind = "grep"
	KindLLM        Kind = "llm"
	KindSkill      Kind = "skill"

	TypeString  PrimitiveType = "string"
	TypeNumber  PrimitiveType = "number"
	TypeBoolean PrimitiveType = "boolean"
	TypeObject  PrimitiveType = "object"
	TypeArray   PrimitiveType = "array"

	VisibilityFull    Visibility = "full"
	VisibilitySummary Visibility = "summary"
	VisibilityHidden  Visibility = "hidden"
)

// Invoke calls f.
func (f ImplementationFunc) Invoke(ctx ExecContext, args map[string]any) (map[string]any, error) {
	return f(ctx, args)
}

// IsLLM reports whether the definition is tagged as the LLM tool kind,
// which the executor subjects to an additional model-approval check
// (spec §4.1 step 3).
func (d Definition) IsLLM() bool { return d.Kind == KindLLM }
