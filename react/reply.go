package react

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Reply is the LLM's structured turn (spec §6 "LLM reply protocol"): a
// tagged-variant shape carrying either a tool action or a final answer.
type Reply struct {
	Thought      string         `json:"thought,omitempty"`
	Action       string         `json:"action,omitempty"`
	ActionInput  map[string]any `json:"action_input,omitempty"`
	FinalAnswer  string         `json:"final_answer,omitempty"`
	IsFinal      bool           `json:"is_final"`
}

var fencedBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(\\{.*?\\})\\s*```$")

// extractJSON strips a fenced code block wrapper when the whole trimmed
// reply is one fenced block, otherwise returns the trimmed input
// unchanged. Leading/trailing prose outside a fence is not stripped, so
// such a reply fails strict parsing (spec §4.4 step 3).
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}

// parseReply parses raw as a Reply, rejecting unknown fields and verifying
// the sum-type shape: at least one of (action+action_input) or final_answer
// must be present, and is_final=true requires final_answer (spec §6).
func parseReply(raw string) (Reply, error) {
	candidate := extractJSON(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.DisallowUnknownFields()
	var reply Reply
	if err := dec.Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("react: invalid JSON reply: %w", err)
	}

	hasAction := reply.Action != ""
	hasFinal := reply.FinalAnswer != ""
	if !hasAction && !hasFinal {
		return Reply{}, fmt.Errorf("react: reply has neither action nor final_answer")
	}
	if reply.IsFinal && !hasFinal {
		return Reply{}, fmt.Errorf("react: is_final=true requires final_answer")
	}
	return reply, nil
}
