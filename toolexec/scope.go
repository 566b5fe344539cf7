package toolexec

import (
	"context"

	"github.com/agentforge/core/ids"
)

// scopeKey is the context key under which an active skill allowlist is
// threaded, per spec §9's "Skill allowed-tools as a scope" design note: a
// "current skill scope" is threaded through the executor's call context
// rather than kept as a hidden dynamic variable.
type scopeKey struct{}

// WithSkillScope returns a context carrying an active skill tool allowlist.
// Scopes stack: a nested WithSkillScope replaces the outer allowlist for
// its duration, since ActiveAllowlist returns only the innermost scope; the
// outer list is not intersected, so an inner scope may allow tools the
// outer one does not.
func WithSkillScope(ctx context.Context, allowed []ids.ToolName) context.Context {
	return context.WithValue(ctx, scopeKey{}, allowed)
}

// ActiveAllowlist returns the innermost active skill allowlist, if any.
func ActiveAllowlist(ctx context.Context) ([]ids.ToolName, bool) {
	v, ok := ctx.Value(scopeKey{}).([]ids.ToolName)
	return v, ok
}

func allowlistContains(allowed []ids.ToolName, name ids.ToolName) bool {
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}
