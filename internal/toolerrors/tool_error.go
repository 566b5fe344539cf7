// Package toolerrors provides a structured error chain for tool invocation
// and component failures across the core, plus the stable error-code
// taxonomy from the specification (spec §7). Every fatal error the core
// returns wraps one of the sentinel codes defined here so callers can branch
// on errors.Is regardless of which component raised the failure.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured failure that preserves message and
// causal context while still implementing the standard error interface.
// Errors may be nested via Cause to retain diagnostics across retries and
// component boundaries.
type ToolError struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying error, enabling error chains with
	// errors.Is/As.
	Cause *ToolError
	// Code is the stable sentinel this error is attached to, if any.
	Code error
}

// New constructs a ToolError with the provided message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// NewWithCode constructs a ToolError attached to one of the sentinel codes
// below, so errors.Is(err, ErrToolNotFound) succeeds for callers.
func NewWithCode(code error, message string) *ToolError {
	if message == "" {
		message = code.Error()
	}
	return &ToolError{Message: message, Code: code}
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns the result as a
// ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying cause (the attached sentinel code takes
// precedence when no explicit cause chain was set) so errors.Is/As can walk
// the chain.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause != nil {
		return e.Cause
	}
	return e.Code
}

// Is reports whether target matches this error's attached sentinel code.
func (e *ToolError) Is(target error) bool {
	return e.Code != nil && errors.Is(e.Code, target)
}

// CodeOf extracts the stable sentinel code string attached to err, walking
// the error chain via errors.As. Errors with no attached code (including
// plain stdlib errors) report the generic internal_error code.
func CodeOf(err error) string {
	var te *ToolError
	for e := err; e != nil; e = errors.Unwrap(e) {
		if errors.As(e, &te) && te.Code != nil {
			return te.Code.Error()
		}
	}
	return ErrInternal.Error()
}

// Sentinel error codes from spec §7. Each has a unique stable string so
// logs and API responses carry a machine-readable code alongside the
// human-readable message.
var (
	ErrToolNotFound         = errors.New("tool_not_found")
	ErrToolAlreadyRegistered = errors.New("tool_already_registered")
	ErrToolValidation       = errors.New("tool_validation_error")
	ErrToolExecution        = errors.New("tool_execution_error")
	ErrToolTimeout          = errors.New("tool_timeout")
	ErrToolPermissionDenied = errors.New("tool_permission_denied")

	ErrRateLimitExceeded = errors.New("rate_limit_exceeded")
	ErrCostBudgetExceeded = errors.New("cost_budget_exceeded")
	ErrModelNotApproved  = errors.New("model_not_approved")

	ErrInvalidLLMResponse   = errors.New("invalid_llm_response")
	ErrLLMCallFailed        = errors.New("llm_call_failed")
	ErrMaxIterationsExceeded = errors.New("max_iterations_exceeded")

	ErrSkillNotFound        = errors.New("skill_not_found")
	ErrSkillValidation      = errors.New("skill_validation_error")
	ErrSubAgentDepthExceeded = errors.New("sub_agent_depth_exceeded")

	ErrHandoff = errors.New("handoff_error")

	ErrPromptNotFound      = errors.New("prompt_not_found")
	ErrPromptValidation    = errors.New("prompt_validation_error")
	ErrPromptRender        = errors.New("prompt_render_error")
	ErrMergePointConflict  = errors.New("merge_point_conflict")

	ErrTaskNotFound          = errors.New("task_not_found")
	ErrAgentNotFound         = errors.New("agent_not_found")
	ErrAgentProcessingError  = errors.New("agent_processing_error")

	ErrInternal = errors.New("internal_error")
)
