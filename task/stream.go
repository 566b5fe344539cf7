package task

import (
	"io"

	"github.com/agentforge/core/internal/sse"
	"github.com/agentforge/core/toolspec"
	"github.com/agentforge/core/visibility"
)

// sseFrame is the JSON shape written under an SSE frame's "data" field.
type sseFrame struct {
	TaskID        string         `json:"task_id"`
	Status        State          `json:"status,omitempty"`
	StatusMessage string         `json:"status_message,omitempty"`
	MessageParts  []string       `json:"message_parts,omitempty"`
	IsPartial     bool           `json:"is_partial,omitempty"`
	Artifact      *Artifact      `json:"artifact,omitempty"`
	FinalState    State          `json:"final_state,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ErrorDetails  map[string]any `json:"error_details,omitempty"`
}

// WriteSSE visibility-filters evt for role and, if it would be emitted,
// writes it to w as an SSE frame (spec §6's wire format, consuming
// internal/sse directly as that package's doc anticipates). kind is the
// tool kind that produced evt (relevant to artifact/message events
// surfacing a tool's output); callers with no specific tool in play (plain
// status/done events) pass toolspec.KindFunction, which carries no special
// demotion rule by default. It reports whether a frame was actually
// written; a hidden-resolved event is silently dropped.
func WriteSSE(w io.Writer, evt Event, kind toolspec.Kind, role visibility.Role, cfg visibility.Config) (bool, error) {
	resolved := visibility.Resolve(evt.Visibility, kind, role, cfg)
	if !visibility.Emit(resolved) {
		return false, nil
	}

	data := sseFrame{
		TaskID:        string(evt.TaskID),
		Status:        evt.Status,
		StatusMessage: evt.StatusMessage,
		MessageParts:  evt.MessageParts,
		IsPartial:     evt.IsPartial,
		Artifact:      evt.Artifact,
		FinalState:    evt.FinalState,
		ErrorCode:     evt.ErrorCode,
		ErrorMessage:  evt.ErrorMessage,
		ErrorDetails:  evt.ErrorDetails,
	}
	if resolved == toolspec.VisibilitySummary && data.ErrorMessage != "" {
		data.ErrorMessage = visibility.RedactText(data.ErrorMessage)
	}

	if err := sse.Encode(w, sse.Frame{Kind: string(evt.Kind), Data: data}); err != nil {
		return false, err
	}
	return true, nil
}
