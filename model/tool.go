package model

import (
	"context"
	"fmt"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/toolspec"
)

// LLMToolName is the reserved tool name C4 dispatches through for every LLM
// call (spec §6 "Tool LLM contract": "the LLM is consumed as a specialised
// tool").
const LLMToolName ids.ToolName = "llm"

// CostPerCall optionally prices a completion; nil means free (tests,
// offline fakes). Production wiring supplies a pricing table keyed by
// model name.
type CostPerCall func(model string, inputTokens, outputTokens int) float64

// NewLLMTool wraps a Client as a toolspec.Definition of kind llm, suitable
// for registration in a toolspec.Registry and dispatch through
// toolexec.Executor. Argument/result shapes follow spec §6 exactly.
func NewLLMTool(client Client, pricing CostPerCall) toolspec.Definition {
	return toolspec.Definition{
		Name:        LLMToolName,
		Kind:        toolspec.KindLLM,
		Description: "Invokes the configured LLM provider with a conversation and optional system prompt.",
		Parameters: []toolspec.Parameter{
			{Name: "messages", Type: toolspec.TypeArray, Required: true},
			{Name: "system", Type: toolspec.TypeString, Required: false},
			{Name: "model", Type: toolspec.TypeString, Required: false},
			{Name: "temperature", Type: toolspec.TypeNumber, Required: false},
			{Name: "max_tokens", Type: toolspec.TypeNumber, Required: false},
		},
		Implementation: toolspec.ImplementationFunc(func(_ toolspec.ExecContext, args map[string]any) (map[string]any, error) {
			return invokeLLM(context.Background(), client, pricing, args)
		}),
	}
}

func invokeLLM(ctx context.Context, client Client, pricing CostPerCall, args map[string]any) (map[string]any, error) {
	req := Request{}
	if v, ok := args["system"].(string); ok {
		req.System = v
	}
	if v, ok := args["model"].(string); ok {
		req.Model = v
	}
	if v, ok := args["temperature"].(float64); ok {
		req.Temperature = v
	}
	if v, ok := args["max_tokens"].(float64); ok {
		req.MaxTokens = int(v)
	}

	raw, ok := args["messages"].([]any)
	if !ok {
		return nil, fmt.Errorf("model: messages must be an array")
	}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("model: each message must be an object")
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		req.Messages = append(req.Messages, ChatMessage{Role: Role(role), Content: content})
	}

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	cost := 0.0
	if pricing != nil {
		cost = pricing(resp.Model, resp.InputTokens, resp.OutputTokens)
	}
	return map[string]any{
		"content":       resp.Content,
		"model":         resp.Model,
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
		"cost_usd":      cost,
	}, nil
}
