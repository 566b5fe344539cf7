// Package sse encodes core task events into the server-sent-events wire
// format described in spec §6. Encoding is the one transport-facing
// artifact the core owns; the HTTP/CLI transport layer itself is out of
// scope per spec §1, but it can reuse this helper verbatim.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

// Frame is the minimal shape required to render an SSE frame: a kind
// discriminator plus whatever kind-specific JSON payload the caller wants
// emitted under "data".
type Frame struct {
	Kind string
	Data any
}

// Encode writes a single SSE frame to w in the form:
//
//	event: <kind>
//	data: <json>
//	<blank line>
func Encode(w io.Writer, f Frame) error {
	payload, err := json.Marshal(f.Data)
	if err != nil {
		return fmt.Errorf("sse: marshal payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Kind, payload); err != nil {
		return fmt.Errorf("sse: write frame: %w", err)
	}
	return nil
}
