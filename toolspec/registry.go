package toolspec

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
)

var snakeCaseRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry holds a process-wide mapping from tool name to definition. A
// Registry is injected at construction of the components that need it
// (C1's Executor, C5's Orchestrator) rather than reached via an ambient
// global, per spec §9's "Global registries" design note.
type Registry struct {
	mu    sync.RWMutex
	tools map[ids.ToolName]Definition
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[ids.ToolName]Definition)}
}

// Register adds a tool definition. It fails with ErrToolAlreadyRegistered
// on a duplicate name and with ErrToolValidation if the name is not a
// lowercase identifier or any parameter name is not snake_case.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return toolerrors.NewWithCode(toolerrors.ErrToolValidation, "tool name is required")
	}
	if !snakeCaseRe.MatchString(string(def.Name)) {
		return toolerrors.NewWithCode(toolerrors.ErrToolValidation,
			fmt.Sprintf("tool name %q must be a lowercase snake_case identifier", def.Name))
	}
	for _, p := range def.Parameters {
		if !snakeCaseRe.MatchString(p.Name) {
			return toolerrors.NewWithCode(toolerrors.ErrToolValidation,
				fmt.Sprintf("parameter %q of tool %q must be snake_case", p.Name, def.Name))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return toolerrors.NewWithCode(toolerrors.ErrToolAlreadyRegistered,
			fmt.Sprintf("tool %q already registered", def.Name))
	}
	r.tools[def.Name] = def
	return nil
}

// Lookup returns the definition for name, failing with ErrToolNotFound if
// it is not registered.
func (r *Registry) Lookup(name ids.ToolName) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	if !ok {
		return Definition{}, toolerrors.NewWithCode(toolerrors.ErrToolNotFound,
			fmt.Sprintf("tool %q not found", name))
	}
	return def, nil
}

// List returns every registered tool definition, optionally filtered to the
// given allowlist. A nil or empty allowlist returns every tool.
func (r *Registry) List(allowlist []ids.ToolName) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(allowlist) == 0 {
		out := make([]Definition, 0, len(r.tools))
		for _, d := range r.tools {
			out = append(out, d)
		}
		return out
	}
	allowed := make(map[ids.ToolName]struct{}, len(allowlist))
	for _, n := range allowlist {
		allowed[n] = struct{}{}
	}
	out := make([]Definition, 0, len(allowlist))
	for name, d := range r.tools {
		if _, ok := allowed[name]; ok {
			out = append(out, d)
		}
	}
	return out
}
