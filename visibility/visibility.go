// Package visibility implements C7: the four-rule precedence filter that
// decides what a chain step or task event renders as for a given viewer
// role, plus regex- and field-based secret redaction. This is new code: the
// teacher spreads visibility concerns across per-field struct tags rather
// than a standalone filter stage, so the shape here is authored fresh in
// the teacher's idiom (small pure functions, exported role constants) while
// the redaction regex and sensitive-field walk reuse toolexec's existing
// discipline (internal/toolerrors-style sentinel pattern, recursive map/
// slice walk mirroring toolexec.redactMap/redactSlice).
package visibility

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/toolspec"
)

// Role is a viewer's role for visibility-filtering purposes (spec §4.7
// "Role mapping").
type Role string

const (
	RoleEndUser   Role = "end_user"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

// DefaultForRole maps a role to its default visibility ceiling absent any
// explicit per-role override (spec §4.7: "END_USER→summary, DEVELOPER→full,
// ADMIN→full, unknown→summary").
func DefaultForRole(role Role) toolspec.Visibility {
	switch role {
	case RoleDeveloper, RoleAdmin:
		return toolspec.VisibilityFull
	default:
		return toolspec.VisibilitySummary
	}
}

// Config holds the precedence filter's configurable rules (spec §4.7's
// rule 2 "per-tool-kind demotion", rule 3 "per-role rule", and rule 4
// "configured default").
type Config struct {
	// RoleCeiling overrides DefaultForRole for specific roles. Roles absent
	// from this map fall back to DefaultForRole.
	RoleCeiling map[Role]toolspec.Visibility
	// KindDemotion forces full-visibility steps produced by a given tool
	// kind to the mapped level regardless of viewer role (e.g. map bash to
	// summary to always summarize raw bash output).
	KindDemotion map[toolspec.Kind]toolspec.Visibility
	// Default is used when an event/step carries no explicit visibility
	// (the zero value of toolspec.Visibility).
	Default toolspec.Visibility
}

// DefaultConfig returns a Config with no overrides and VisibilitySummary as
// the fallback default, a safe-by-default posture.
func DefaultConfig() Config {
	return Config{Default: toolspec.VisibilitySummary}
}

// Resolve applies the four-rule precedence to decide what visibility level
// a step/event tagged own (possibly the zero value) and produced by kind
// should render as for role (spec §4.7):
//
//  1. own's own visibility takes first precedence: hidden is never
//     emitted, summary is emitted to any role unchanged.
//  2. a full-visibility step is first subject to a per-tool-kind demotion
//     rule, if configured for kind.
//  3. otherwise it is subject to the viewer's role ceiling: a role whose
//     ceiling is not full sees it demoted to summary.
//  4. a step with no explicit visibility uses the configured default.
func Resolve(own toolspec.Visibility, kind toolspec.Kind, role Role, cfg Config) toolspec.Visibility {
	if own == "" {
		own = cfg.Default
		if own == "" {
			own = toolspec.VisibilitySummary
		}
	}

	switch own {
	case toolspec.VisibilityHidden:
		return toolspec.VisibilityHidden
	case toolspec.VisibilitySummary:
		return toolspec.VisibilitySummary
	case toolspec.VisibilityFull:
		if demoted, ok := cfg.KindDemotion[kind]; ok {
			return demoted
		}
		ceiling, ok := cfg.RoleCeiling[role]
		if !ok {
			ceiling = DefaultForRole(role)
		}
		if ceiling != toolspec.VisibilityFull {
			return toolspec.VisibilitySummary
		}
		return toolspec.VisibilityFull
	default:
		return toolspec.VisibilitySummary
	}
}

// Emit reports whether a step/event at the resolved visibility should be
// emitted to the viewer at all; only VisibilityHidden suppresses it
// entirely.
func Emit(resolved toolspec.Visibility) bool {
	return resolved != toolspec.VisibilityHidden
}

// secretPattern matches "key: value"/"key=value" assignments for common
// credential-shaped field names, case-insensitively, so free-text tool
// output gets redacted even when it was never run through structured field
// redaction (spec §4.7 "Secret redaction").
var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|password|secret|token)\s*[:=]\s*"?([^"\s]+)"?`)

// RedactText replaces every credential-shaped "key: value" match in text
// with "<key>=[REDACTED]", preserving the matched key name's original
// casing for readability.
func RedactText(text string) string {
	return secretPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := secretPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		return fmt.Sprintf("%s=[REDACTED]", sub[1])
	})
}

// RedactFields walks value recursively, replacing any map entry whose key
// (case-insensitive) is in fields with the literal "[REDACTED]". Nested
// maps and slices are walked; other values pass through unchanged.
func RedactFields(value map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return value
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.ToLower(f)] = struct{}{}
	}
	return redactMap(value, set)
}

func redactMap(m map[string]any, set map[string]struct{}) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, sensitive := set[strings.ToLower(k)]; sensitive {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = redactValue(v, set)
	}
	return out
}

func redactValue(v any, set map[string]struct{}) any {
	switch val := v.(type) {
	case map[string]any:
		return redactMap(val, set)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item, set)
		}
		return out
	default:
		return v
	}
}

// Summarize renders a synthetic, role-safe summary string for a
// full-visibility step that was demoted to summary, following the
// documented templates (spec §4.7 "Summary rendering"). kind distinguishes
// a tool call/result from a reasoning step.
func Summarize(kind SummaryKind, toolName ids.ToolName, stepNumber int, succeeded bool) string {
	switch kind {
	case SummaryToolCall:
		return fmt.Sprintf("Called %s", toolName)
	case SummaryToolResult:
		if succeeded {
			return fmt.Sprintf("Tool %s succeeded", toolName)
		}
		return fmt.Sprintf("Tool %s failed", toolName)
	case SummaryReasoning:
		return fmt.Sprintf("Reasoning step #%d", stepNumber)
	default:
		return ""
	}
}

// SummaryKind distinguishes which synthetic summary template Summarize
// renders.
type SummaryKind string

const (
	SummaryToolCall   SummaryKind = "tool_call"
	SummaryToolResult SummaryKind = "tool_result"
	SummaryReasoning  SummaryKind = "reasoning"
)
