// Package toolexec implements C1's Executor: the uniform invocation surface
// described in spec §4.1, with validation, skill-scope permission checks,
// budget gating against cost.Tracker, timeout dispatch, retry with
// exponential backoff, truncation of a Result's TruncatableFields (which
// dispatch leaves empty), and visibility-based redaction.
// Grounded on runtime/toolregistry/executor/executor.go's option-function
// construction and OTel span-attribute discipline.
package toolexec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentforge/core/cost"
	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/telemetry"
	"github.com/agentforge/core/internal/toolerrors"
	"github.com/agentforge/core/toolspec"
)

type (
	// CallContext identifies the caller of a tool invocation and carries
	// optional per-call caps (spec §4.1: "correlation id, task id, agent
	// id, tenant, chain id, optional per-call max-tokens and max-cost").
	CallContext struct {
		CorrelationID ids.CorrelationID
		TaskID        ids.TaskID
		AgentID       ids.AgentID
		Tenant        ids.TenantID
		ChainID       ids.ChainID
		MaxTokens     *int
		MaxCostUSD    *float64
		// Viewer is the caller's resolved visibility level, used to decide
		// whether sensitive_fields are redacted in step 6 of the pipeline.
		// Distinct from C7's redaction of the emitted event stream.
		Viewer toolspec.Visibility
		// Model is the requested model name when invoking an LLM-kind
		// tool; used for the model-approval check in step 3.
		Model string
	}

	// ModelApprover decides whether a model name is approved for use. The
	// LLM provider client itself is out of scope (spec §1); this interface
	// is the thin policy hook the executor consults.
	ModelApprover interface {
		Approved(model string) bool
	}

	// AllowAllModels is a ModelApprover that approves every model; used
	// when no approval policy is configured.
	AllowAllModels struct{}

	cacheEntry struct {
		result  Result
		expires time.Time
	}

	// Executor is C1's tool invocation surface.
	Executor struct {
		registry *toolspec.Registry
		tracker  *cost.Tracker
		approver ModelApprover

		logger telemetry.Logger
		tracer telemetry.Tracer

		mu    sync.Mutex
		cache map[string]cacheEntry
	}

	// Option configures an Executor at construction.
	Option func(*Executor)
)

// Approved always returns true.
func (AllowAllModels) Approved(string) bool { return true }

// WithLogger configures the executor's logger. Defaults to a noop logger.
func WithLogger(l telemetry.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithTracer configures the executor's tracer. Defaults to a noop tracer.
func WithTracer(tr telemetry.Tracer) Option { return func(e *Executor) { e.tracer = tr } }

// WithModelApprover configures the model-approval policy consulted for
// LLM-kind tools. Defaults to AllowAllModels.
func WithModelApprover(a ModelApprover) Option { return func(e *Executor) { e.approver = a } }

// New constructs an Executor bound to registry and tracker.
func New(registry *toolspec.Registry, tracker *cost.Tracker, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		tracker:  tracker,
		approver: AllowAllModels{},
		logger:   telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
		cache:    make(map[string]cacheEntry),
	}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	return e
}

// Execute runs the 7-step pipeline from spec §4.1 for a single invocation
// of name with args, under cc.
func (e *Executor) Execute(ctx context.Context, cc CallContext, name ids.ToolName, args map[string]any, budget cost.Budget) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "toolexec.execute", trace.WithAttributes(
		attribute.String("toolexec.tool", string(name)),
		attribute.String("toolexec.task_id", string(cc.TaskID)),
		attribute.String("toolexec.correlation_id", string(cc.CorrelationID)),
	))
	defer span.End()

	def, err := e.registry.Lookup(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return Result{}, err
	}

	// Step 1: validate arguments.
	if err := validateArgs(def, args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return Result{}, err
	}

	// Step 2: skill scope check.
	if allowed, active := ActiveAllowlist(ctx); active && !allowlistContains(allowed, name) {
		err := toolerrors.NewWithCode(toolerrors.ErrToolPermissionDenied,
			fmt.Sprintf("tool %q is not in the active skill allowlist", name))
		span.RecordError(err)
		span.SetStatus(codes.Error, "permission denied")
		return Result{}, err
	}

	// A cache hit returns here, before steps 3-7: it skips the budget and
	// model-approval checks, dispatch, truncation/redaction and cost
	// recording, and returns the result stored by an earlier call.
	var cacheKey string
	if def.CacheTTL > 0 {
		cacheKey = buildCacheKey(name, args)
		if cached, ok := e.cachedResult(cacheKey); ok {
			span.AddEvent("toolexec.cache_hit")
			return cached, nil
		}
	}

	// Step 3: budget + model approval.
	extraCost := 0.0
	if cc.MaxCostUSD != nil {
		extraCost = *cc.MaxCostUSD
	}
	extraTokens := 0
	if cc.MaxTokens != nil {
		extraTokens = *cc.MaxTokens
	}
	isLLM := def.IsLLM()
	if e.tracker != nil && !e.tracker.CheckBudget(cc.TaskID, budget, extraCost, extraTokens, isLLM) {
		err := toolerrors.NewWithCode(toolerrors.ErrCostBudgetExceeded,
			fmt.Sprintf("budget exceeded before dispatching %q", name))
		span.RecordError(err)
		span.SetStatus(codes.Error, "budget exceeded")
		return Result{}, err
	}
	if isLLM && !e.approver.Approved(cc.Model) {
		err := toolerrors.NewWithCode(toolerrors.ErrModelNotApproved,
			fmt.Sprintf("model %q is not approved", cc.Model))
		span.RecordError(err)
		span.SetStatus(codes.Error, "model not approved")
		return Result{}, err
	}

	// Step 4: timeout dispatch with retry (step 5).
	result := e.dispatchWithRetry(ctx, cc, def, args, span)

	// Step 6: truncate + redact. truncateFields only shortens fields listed
	// in result.TruncatableFields, which dispatchWithRetry never sets, and
	// the cap here is effectively unlimited, so the executor itself
	// truncates nothing; C4's observation formatting (spec §4.4 step 7)
	// applies its own character limit.
	truncateFields(&result, 1<<31-1)
	redactFields(&result, def.Visibility.SensitiveFields, cc.Viewer)

	// Step 7: record cost.
	if e.tracker != nil {
		rec := cost.Record{
			Tenant:   cc.Tenant,
			Task:     cc.TaskID,
			Chain:    cc.ChainID,
			ToolName: name,
			CostUSD:  result.CostUSD,
			Tokens:   result.Tokens,
			Model:    cc.Model,
		}
		if isLLM {
			_ = e.tracker.RecordLLMCall(ctx, rec)
		} else {
			_ = e.tracker.Record(ctx, rec)
		}
	}

	if def.CacheTTL > 0 && result.Success {
		e.storeCachedResult(cacheKey, result, def.CacheTTL)
	}

	if result.Success {
		span.SetStatus(codes.Ok, "ok")
	} else {
		span.SetStatus(codes.Error, result.Error)
	}
	return result, nil
}

func (e *Executor) dispatchWithRetry(ctx context.Context, cc CallContext, def toolspec.Definition, args map[string]any, span telemetry.Span) Result {
	var lastResult Result
	attempts := def.Retry.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		out, err := e.dispatchOnce(ctx, cc, def, args)
		dur := time.Since(start)
		if err == nil {
			tokens, costUSD := extractUsage(out)
			return Result{Success: true, Value: out, Duration: dur, RetryCount: attempt, Tokens: tokens, CostUSD: costUSD}
		}
		lastResult = Result{Success: false, Error: err.Error(), Duration: dur, RetryCount: attempt}
		if !retryable(def.Retry, err) || attempt == attempts-1 {
			break
		}
		span.AddEvent("toolexec.retry")
		backoff := time.Duration(float64(def.Retry.InitialBackoff) * pow(def.Retry.Multiplier, attempt))
		select {
		case <-ctx.Done():
			lastResult.Error = ctx.Err().Error()
			return lastResult
		case <-time.After(backoff):
		}
	}
	return lastResult
}

// extractUsage pulls token/cost accounting out of an llm-kind tool's result
// value, following the input_tokens/output_tokens/cost_usd convention
// model.NewLLMTool's implementation returns (spec §6 "Tool LLM contract").
// Non-llm tools carry none of these fields and extractUsage reports zero,
// which is correct: they consume no LLM budget.
func extractUsage(out map[string]any) (tokens int, costUSD float64) {
	if out == nil {
		return 0, 0
	}
	if v, ok := out["input_tokens"].(int); ok {
		tokens += v
	}
	if v, ok := out["output_tokens"].(int); ok {
		tokens += v
	}
	if v, ok := out["cost_usd"].(float64); ok {
		costUSD = v
	}
	return tokens, costUSD
}

// defaultToolTimeout bounds a dispatch attempt whose definition leaves
// Timeout unset.
const defaultToolTimeout = 30 * time.Second

func (e *Executor) dispatchOnce(ctx context.Context, cc CallContext, def toolspec.Definition, args map[string]any) (map[string]any, error) {
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value map[string]any
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := def.Implementation.Invoke(execContext{cc}, args)
		ch <- outcome{v, err}
	}()

	select {
	case <-dctx.Done():
		return nil, toolerrors.NewWithCode(toolerrors.ErrToolTimeout,
			fmt.Sprintf("tool %q timed out after %s", def.Name, timeout))
	case o := <-ch:
		if o.err != nil {
			return nil, toolerrors.NewWithCode(toolerrors.ErrToolExecution, o.err.Error())
		}
		return o.value, nil
	}
}

func pow(base float64, exp int) float64 {
	if exp <= 0 || base <= 0 {
		return 1
	}
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func retryable(policy toolspec.RetryPolicy, err error) bool {
	if len(policy.RetryablePatterns) == 0 {
		return false
	}
	msg := err.Error()
	for _, pattern := range policy.RetryablePatterns {
		if pattern.MatchString(msg) {
			return true
		}
	}
	return false
}

func validateArgs(def toolspec.Definition, args map[string]any) error {
	allowed := make(map[string]toolspec.Parameter, len(def.Parameters))
	for _, p := range def.Parameters {
		allowed[p.Name] = p
	}
	for _, p := range def.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return toolerrors.NewWithCode(toolerrors.ErrToolValidation,
				fmt.Sprintf("tool %q missing required parameter %q", def.Name, p.Name))
		}
	}
	for key, val := range args {
		p, ok := allowed[key]
		if !ok {
			return toolerrors.NewWithCode(toolerrors.ErrToolValidation,
				fmt.Sprintf("tool %q received unknown parameter %q", def.Name, key))
		}
		if !typeMatches(p.Type, val) {
			return toolerrors.NewWithCode(toolerrors.ErrToolValidation,
				fmt.Sprintf("tool %q parameter %q has wrong type", def.Name, key))
		}
		if p.Schema != "" {
			if err := validateAgainstSchema(p.Schema, val); err != nil {
				return toolerrors.NewWithCode(toolerrors.ErrToolValidation,
					fmt.Sprintf("tool %q parameter %q failed schema validation: %s", def.Name, key, err))
			}
		}
	}
	return nil
}

// schemaCache holds compiled JSON schemas keyed by their raw source text, so
// a tool invoked repeatedly with the same declared Parameter.Schema does not
// recompile it on every call. Grounded on haasonsaas-nexus's
// pkg/pluginsdk/validation.go compileSchema/schemaCache pattern.
var schemaCache sync.Map

func compileParamSchema(source string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(source); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString("toolexec.param.schema.json", source)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(source, compiled)
	return compiled, nil
}

func validateAgainstSchema(source string, value any) error {
	compiled, err := compileParamSchema(source)
	if err != nil {
		return err
	}
	// Round-trip through JSON so map[string]any/[]any values (the only
	// shapes object/array parameters take) match what jsonschema expects.
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return compiled.Validate(decoded)
}

func typeMatches(t toolspec.PrimitiveType, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case toolspec.TypeString:
		_, ok := v.(string)
		return ok
	case toolspec.TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case toolspec.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case toolspec.TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case toolspec.TypeArray:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func truncateFields(r *Result, maxLen int) {
	if r.Value == nil || maxLen <= 0 {
		return
	}
	for _, field := range r.TruncatableFields {
		s, ok := r.Value[field].(string)
		if !ok || len(s) <= maxLen {
			continue
		}
		r.Value[field] = s[:maxLen] + "...(truncated)"
	}
}

func redactFields(r *Result, sensitive []string, viewer toolspec.Visibility) {
	if len(sensitive) == 0 || r.Value == nil || viewer == toolspec.VisibilityFull {
		return
	}
	set := make(map[string]struct{}, len(sensitive))
	for _, f := range sensitive {
		set[f] = struct{}{}
	}
	redactMap(r.Value, set)
}

func redactMap(m map[string]any, sensitive map[string]struct{}) {
	for k, v := range m {
		if _, ok := sensitive[k]; ok {
			m[k] = "[REDACTED]"
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			redactMap(nested, sensitive)
		case []any:
			redactSlice(nested, sensitive)
		}
	}
}

func redactSlice(s []any, sensitive map[string]struct{}) {
	for _, v := range s {
		switch nested := v.(type) {
		case map[string]any:
			redactMap(nested, sensitive)
		case []any:
			redactSlice(nested, sensitive)
		}
	}
}

func buildCacheKey(name ids.ToolName, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}
	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(append([]byte(name), b...))
	return hex.EncodeToString(sum[:])
}

func (e *Executor) cachedResult(key string) (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.cache[key]
	if !ok || time.Now().After(entry.expires) {
		delete(e.cache, key)
		return Result{}, false
	}
	out := entry.result
	out.Cached = true
	return out, true
}

func (e *Executor) storeCachedResult(key string, r Result, ttl time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[key] = cacheEntry{result: r, expires: time.Now().Add(ttl)}
}

// execContext adapts CallContext to toolspec.ExecContext.
type execContext struct{ cc CallContext }

func (c execContext) TaskID() ids.TaskID               { return c.cc.TaskID }
func (c execContext) AgentID() ids.AgentID             { return c.cc.AgentID }
func (c execContext) TenantID() ids.TenantID           { return c.cc.Tenant }
func (c execContext) ChainID() ids.ChainID             { return c.cc.ChainID }
func (c execContext) CorrelationID() ids.CorrelationID { return c.cc.CorrelationID }
