// Package react implements C4: the bounded think→act→observe ReAct loop
// that drives the LLM over the structured reply protocol, dispatching tools
// through C1 and recording every step to a C2 chain. Grounded on the
// teacher's planner.go sum-type reply shape and its strict-casing JSON
// decode discipline (json_unmarshal.go), adapted from the teacher's richer
// multi-part planner protocol to the flatter spec reply object.
package react

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentforge/core/chain"
	"github.com/agentforge/core/cost"
	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
	"github.com/agentforge/core/model"
	"github.com/agentforge/core/toolexec"
	"github.com/agentforge/core/toolspec"
)

// Config carries the per-invocation settings of a Loop (spec §4.4 "State").
type Config struct {
	SystemPrompt         string
	MaxIterations        int
	Model                string
	Temperature          float64
	ObservationCharLimit int

	Chain    *chain.Chain
	Executor *toolexec.Executor
	Budget   cost.Budget

	TaskID  ids.TaskID
	AgentID ids.AgentID
	Tenant  ids.TenantID
	ChainID ids.ChainID
	Viewer  toolspec.Visibility
}

// Loop runs a single ReAct reasoning run over one chain.
type Loop struct {
	cfg          Config
	conversation []model.ChatMessage
}

// New constructs a Loop seeded with the user's initial message.
func New(cfg Config, userMessage string) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.ObservationCharLimit <= 0 {
		cfg.ObservationCharLimit = 2000
	}
	return &Loop{
		cfg:          cfg,
		conversation: []model.ChatMessage{{Role: model.RoleUser, Content: userMessage}},
	}
}

// Run drives the loop to completion, returning the final answer text.
func (l *Loop) Run(ctx context.Context) (string, error) {
	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if _, err := l.cfg.Chain.AddThinking(
			fmt.Sprintf("Iteration %d/%d: analyzing next step", iteration, l.cfg.MaxIterations),
			toolspec.VisibilitySummary,
		); err != nil {
			return "", err
		}

		raw, llmErr := l.callLLM(ctx)
		if llmErr != nil {
			l.cfg.Chain.MarkFailed()
			return "", llmErr
		}

		reply, parseErr := parseReply(raw)
		if parseErr != nil {
			raw, llmErr = l.callLLM(ctx, "Respond with valid JSON only, matching the documented reply schema.")
			if llmErr != nil {
				l.cfg.Chain.MarkFailed()
				return "", llmErr
			}
			reply, parseErr = parseReply(raw)
			if parseErr != nil {
				l.cfg.Chain.MarkFailed()
				return "", toolerrors.NewWithCode(toolerrors.ErrInvalidLLMResponse, parseErr.Error())
			}
		}

		if reply.Thought != "" {
			if _, err := l.cfg.Chain.AddThinking(reply.Thought, toolspec.VisibilitySummary); err != nil {
				return "", err
			}
		}

		if reply.IsFinal {
			final := reply.FinalAnswer
			if final == "" {
				final = "Task completed."
			}
			if _, err := l.cfg.Chain.AddSynthesis(final, nil, toolspec.VisibilitySummary); err != nil {
				return "", err
			}
			l.cfg.Chain.MarkCompleted()
			return final, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}

		observation, dispatchErr := l.dispatchAction(ctx, reply)
		if dispatchErr != nil {
			l.cfg.Chain.MarkFailed()
			return "", dispatchErr
		}

		l.conversation = append(l.conversation,
			model.ChatMessage{Role: model.RoleAssistant, Content: raw},
			model.ChatMessage{Role: model.RoleUser, Content: observation},
		)
	}

	l.cfg.Chain.MarkFailed()
	tail := l.tailConversation(5)
	return "", toolerrors.NewWithCode(toolerrors.ErrMaxIterationsExceeded,
		fmt.Sprintf("exceeded %d iterations; recent conversation: %s", l.cfg.MaxIterations, tail))
}

// dispatchAction invokes reply.Action through the executor, records the
// tool_call/tool_result pair, and formats the observation fed back to the
// LLM. A tool-level failure (Result.Success == false) is absorbed into the
// observation text; an executor-level failure (validation, permission,
// budget) propagates, per spec §9's resolved design note.
func (l *Loop) dispatchAction(ctx context.Context, reply Reply) (string, error) {
	corr, _, err := l.cfg.Chain.AddToolCall(ids.ToolName(reply.Action), reply.ActionInput, toolspec.VisibilityFull)
	if err != nil {
		return "", err
	}

	cc := toolexec.CallContext{
		CorrelationID: corr,
		TaskID:        l.cfg.TaskID,
		AgentID:       l.cfg.AgentID,
		Tenant:        l.cfg.Tenant,
		ChainID:       l.cfg.ChainID,
		Viewer:        l.cfg.Viewer,
		Model:         l.cfg.Model,
	}
	result, execErr := l.cfg.Executor.Execute(ctx, cc, ids.ToolName(reply.Action), reply.ActionInput, l.cfg.Budget)
	if execErr != nil {
		// Executor-level failure: propagate, do not feed back as an
		// observation. The chain still records the failed attempt.
		if _, addErr := l.cfg.Chain.AddToolResult(corr, false, nil, execErr.Error(), toolspec.VisibilityFull); addErr != nil {
			return "", addErr
		}
		return "", execErr
	}

	if _, err := l.cfg.Chain.AddToolResult(corr, result.Success, result.Value, result.Error, toolspec.VisibilityFull); err != nil {
		return "", err
	}

	if !result.Success {
		return fmt.Sprintf("Observation: Error - %s", result.Error), nil
	}
	return fmt.Sprintf("Observation: %s", l.truncate(stringifyValue(result.Value))), nil
}

func (l *Loop) truncate(s string) string {
	if len(s) <= l.cfg.ObservationCharLimit {
		return s
	}
	return s[:l.cfg.ObservationCharLimit] + "...(truncated)"
}

func stringifyValue(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// callLLM invokes the LLM tool through the executor with the current
// conversation and system prompt, optionally appending reminder messages
// (used for the single JSON-reply retry).
func (l *Loop) callLLM(ctx context.Context, reminders ...string) (string, error) {
	messages := make([]any, 0, len(l.conversation)+len(reminders))
	for _, m := range l.conversation {
		messages = append(messages, map[string]any{"role": string(m.Role), "content": m.Content})
	}
	for _, r := range reminders {
		messages = append(messages, map[string]any{"role": string(model.RoleUser), "content": r})
	}

	cc := toolexec.CallContext{
		TaskID:  l.cfg.TaskID,
		AgentID: l.cfg.AgentID,
		Tenant:  l.cfg.Tenant,
		ChainID: l.cfg.ChainID,
		Viewer:  l.cfg.Viewer,
		Model:   l.cfg.Model,
	}
	args := map[string]any{
		"messages":    messages,
		"system":      l.cfg.SystemPrompt,
		"model":       l.cfg.Model,
		"temperature": l.cfg.Temperature,
	}
	result, err := l.cfg.Executor.Execute(ctx, cc, model.LLMToolName, args, l.cfg.Budget)
	if err != nil {
		// Executor-level failure (budget, model approval, validation):
		// propagate as-is so its original error code survives.
		return "", err
	}
	if !result.Success {
		return "", toolerrors.NewWithCode(toolerrors.ErrLLMCallFailed, result.Error)
	}
	l.cfg.Chain.AddUsage(result.Tokens, result.CostUSD)
	content, _ := result.Value["content"].(string)
	return content, nil
}

func (l *Loop) tailConversation(n int) string {
	start := len(l.conversation) - n
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, m := range l.conversation[start:] {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
