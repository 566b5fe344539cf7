// Package prompt implements C10: the seven-step prompt composition
// pipeline — cache lookup, layered template loading, user-input
// sanitization, merge-point resolution, variable rendering, and a
// two-tier cache write-through. No single teacher file implements prompt
// composition (spec §4.10 is implemented directly); the merge-point
// precedence code follows the teacher's general layered-override idiom
// (lower layer first, highest layer wins on conflict) seen in its runtime
// config layering, and the two-tier cache follows the pack's embrace of
// well-known single-purpose libraries: github.com/hashicorp/golang-lru/v2
// for the in-process tier, github.com/redis/go-redis/v9 (already a
// goa-ai dependency) for the optional shared tier.
package prompt

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/telemetry"
	"github.com/agentforge/core/internal/toolerrors"
)

type (
	// Layer is one of the four layers a composed prompt draws from (spec
	// §3 "Prompt").
	Layer string

	// MergeBehavior controls how a merge point's contributions from
	// multiple layers combine (spec §4.10 step 4).
	MergeBehavior string

	// MergePoint is one named insertion point in a system template.
	MergePoint struct {
		Name     string
		Behavior MergeBehavior
		Locked   bool
		Required bool
	}

	// Template is one loaded prompt layer (spec §3 "Prompt"). For the
	// system layer, Template is the full base text containing
	// "{{merge.NAME}}" and "{{ var.path }}" markers, and MergePoints is
	// the canonical list consulted for precedence. For tenant/feature/
	// agent layers, Name identifies the merge point this layer's Template
	// text contributes to.
	Template struct {
		Layer       Layer
		ScopeID     string
		Name        string
		Template    string
		MergePoints []MergePoint
		Variables   []string
		TenantID    *ids.TenantID
		Version     int
	}

	// Loader resolves one prompt layer by scope id. A miss for an optional
	// layer returns ok=false with a nil error.
	Loader interface {
		Load(ctx context.Context, layer Layer, scopeID string) (Template, bool, error)
	}

	// Input is one composition request (spec §4.10 "Inputs").
	Input struct {
		AgentID    ids.AgentID
		TenantID   *ids.TenantID
		FeatureIDs []string
		UserInput  string
		Variables  map[string]any
		SkipCache  bool
	}

	// ComposedPrompt is the rendered result of one composition (spec §3
	// "Composed Prompt").
	ComposedPrompt struct {
		Text          string
		LayerVersions map[Layer]int
		ComposedAt    time.Time
		CacheKey      string
	}
)

const (
	LayerSystem  Layer = "system"
	LayerTenant  Layer = "tenant"
	LayerFeature Layer = "feature"
	LayerAgent   Layer = "agent"

	BehaviorAppend  MergeBehavior = "append"
	BehaviorPrepend MergeBehavior = "prepend"
	BehaviorReplace MergeBehavior = "replace"
	BehaviorInject  MergeBehavior = "inject"

	userInputMergePoint = "user_input"

	// userInputMaxLen caps sanitized user input length (spec §4.10 step 3
	// "size-capped").
	userInputMaxLen = 8000

	// maxRenderPasses bounds recursive variable substitution so a
	// variable whose value itself contains a reference cannot loop
	// forever.
	maxRenderPasses = 5
)

// layerHeight orders layers from least to most specific; ties are broken
// by this ordering when resolving append/prepend/replace/inject.
var layerHeight = map[Layer]int{
	LayerSystem:  0,
	LayerTenant:  1,
	LayerFeature: 2,
	LayerAgent:   3,
}

// Engine composes prompts from a Loader through a two-tier cache.
type Engine struct {
	loader          Loader
	local           *lru.Cache[string, ComposedPrompt]
	redis           *redis.Client
	redisTTL        time.Duration
	platformName    string
	platformVersion string
	logger          telemetry.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRedis attaches an optional shared cache tier. Redis errors are
// logged and swallowed; the in-process tier remains authoritative (spec
// §4.10 step 7).
func WithRedis(client *redis.Client, ttl time.Duration) Option {
	return func(e *Engine) {
		e.redis = client
		if ttl <= 0 {
			ttl = time.Hour
		}
		e.redisTTL = ttl
	}
}

// WithLogger attaches a logger used for swallowed Redis errors.
func WithLogger(logger telemetry.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine constructs an Engine with an in-process LRU of the given size
// (zero selects a default of 256 entries).
func NewEngine(loader Loader, localCacheSize int, platformName, platformVersion string, opts ...Option) *Engine {
	if localCacheSize <= 0 {
		localCacheSize = 256
	}
	local, _ := lru.New[string, ComposedPrompt](localCacheSize)
	e := &Engine{
		loader:          loader,
		local:           local,
		platformName:    platformName,
		platformVersion: platformVersion,
		logger:          telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compose runs the seven-step pipeline (spec §4.10).
func (e *Engine) Compose(ctx context.Context, in Input) (ComposedPrompt, error) {
	system, ok, err := e.loader.Load(ctx, LayerSystem, string(in.AgentID))
	if err != nil {
		return ComposedPrompt{}, err
	}
	if !ok {
		return ComposedPrompt{}, toolerrors.NewWithCode(toolerrors.ErrPromptNotFound, "required system layer prompt not found")
	}

	agent, ok, err := e.loader.Load(ctx, LayerAgent, string(in.AgentID))
	if err != nil {
		return ComposedPrompt{}, err
	}
	if !ok {
		return ComposedPrompt{}, toolerrors.NewWithCode(toolerrors.ErrPromptNotFound, fmt.Sprintf("required agent layer prompt not found for %q", in.AgentID))
	}

	var tenant *Template
	if in.TenantID != nil {
		t, ok, err := e.loader.Load(ctx, LayerTenant, string(*in.TenantID))
		if err != nil {
			return ComposedPrompt{}, err
		}
		if ok {
			tenant = &t
		}
	}

	feature, hasFeature, err := e.loadFeatures(ctx, in.FeatureIDs)
	if err != nil {
		return ComposedPrompt{}, err
	}

	layerVersions := map[Layer]int{LayerSystem: system.Version, LayerAgent: agent.Version}
	if tenant != nil {
		layerVersions[LayerTenant] = tenant.Version
	}
	if hasFeature {
		layerVersions[LayerFeature] = feature.Version
	}

	key := cacheKey(in.AgentID, in.TenantID, layerVersions, in.Variables)

	if !in.SkipCache {
		if cached, ok := e.lookupCache(ctx, key); ok {
			return cached, nil
		}
	}

	sanitizedInput := sanitizeUserInput(in.UserInput)

	contributions := map[string][]layerContribution{
		userInputMergePoint: {{height: layerHeight[LayerAgent] + 1, content: sanitizedInput, literal: true}},
	}
	for _, t := range []*Template{tenant, boolTemplate(hasFeature, feature), &agent} {
		if t == nil || t.Name == "" {
			continue
		}
		contributions[t.Name] = append(contributions[t.Name], layerContribution{
			height: layerHeight[t.Layer], content: t.Template,
		})
	}

	merged, err := resolveMergePoints(system.MergePoints, contributions)
	if err != nil {
		return ComposedPrompt{}, err
	}

	rendered := applyMergePoints(system.Template, merged)

	varCtx := buildVariableContext(e.platformName, e.platformVersion, in.TenantID, in.AgentID, in.Variables)
	text, err := renderVariables(rendered, varCtx)
	if err != nil {
		return ComposedPrompt{}, err
	}

	composed := ComposedPrompt{
		Text:          text,
		LayerVersions: layerVersions,
		ComposedAt:    now(),
		CacheKey:      key,
	}

	if !in.SkipCache {
		e.storeCache(ctx, key, composed)
	}
	return composed, nil
}

// now is swappable in tests; production always uses wall-clock time.
var now = func() time.Time { return time.Now() }

func boolTemplate(has bool, t Template) *Template {
	if !has {
		return nil
	}
	return &t
}

// loadFeatures loads every feature id and concatenates their template text
// by blank lines into one synthetic feature-layer Template, keeping the
// first feature's merge-point target name (spec §4.10 step 2).
func (e *Engine) loadFeatures(ctx context.Context, featureIDs []string) (Template, bool, error) {
	var combined Template
	var texts []string
	for i, id := range featureIDs {
		t, ok, err := e.loader.Load(ctx, LayerFeature, id)
		if err != nil {
			return Template{}, false, err
		}
		if !ok {
			continue
		}
		if i == 0 || texts == nil {
			combined = t
		}
		texts = append(texts, t.Template)
		if t.Version > combined.Version {
			combined.Version = t.Version
		}
	}
	if len(texts) == 0 {
		return Template{}, false, nil
	}
	combined.Template = strings.Join(texts, "\n\n")
	combined.Layer = LayerFeature
	return combined, true, nil
}

type layerContribution struct {
	height  int
	content string
	literal bool // literal content bypasses merge-point behavior rules entirely
}

// resolveMergePoints computes the final content for every merge point
// named in points, applying each point's behavior, locked, and required
// rules (spec §4.10 step 4).
func resolveMergePoints(points []MergePoint, contributions map[string][]layerContribution) (map[string]string, error) {
	declared := make(map[string]MergePoint, len(points))
	for _, p := range points {
		declared[p.Name] = p
	}

	resolved := make(map[string]string, len(contributions))
	for name, contribs := range contributions {
		point, isDeclared := declared[name]
		if name == userInputMergePoint {
			// Reserved point: receives sanitized user input literally,
			// regardless of any declared behavior.
			for _, c := range contribs {
				if c.literal {
					resolved[name] = c.content
				}
			}
			continue
		}
		if !isDeclared {
			// Unknown merge-point markers are replaced with empty strings;
			// contributions targeting them are simply dropped.
			continue
		}
		if point.Locked {
			for _, c := range contribs {
				if layerHeight[LayerSystem] < c.height {
					return nil, toolerrors.NewWithCode(toolerrors.ErrMergePointConflict,
						fmt.Sprintf("merge point %q is locked; layer content rejected", name))
				}
			}
		}
		resolved[name] = mergeContent(point.Behavior, contribs)
	}

	for _, p := range points {
		if p.Name == userInputMergePoint {
			continue
		}
		if p.Required && strings.TrimSpace(resolved[p.Name]) == "" {
			return nil, toolerrors.NewWithCode(toolerrors.ErrPromptValidation,
				fmt.Sprintf("required merge point %q has no content from any layer", p.Name))
		}
	}
	return resolved, nil
}

func mergeContent(behavior MergeBehavior, contribs []layerContribution) string {
	sorted := make([]layerContribution, len(contribs))
	copy(sorted, contribs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].height < sorted[j].height })

	switch behavior {
	case BehaviorPrepend:
		parts := make([]string, len(sorted))
		for i, c := range sorted {
			parts[len(sorted)-1-i] = c.content
		}
		return strings.Join(parts, "\n")
	case BehaviorReplace, BehaviorInject:
		if len(sorted) == 0 {
			return ""
		}
		return sorted[len(sorted)-1].content
	default: // BehaviorAppend
		parts := make([]string, len(sorted))
		for i, c := range sorted {
			parts[i] = c.content
		}
		return strings.Join(parts, "\n")
	}
}

var mergeMarker = "merge."

// applyMergePoints substitutes every "{{merge.NAME}}" marker in template
// with its resolved content (empty string for unknown markers).
func applyMergePoints(template string, resolved map[string]string) string {
	return substituteMarkers(template, func(ref string) (string, bool) {
		name, ok := strings.CutPrefix(ref, mergeMarker)
		if !ok {
			return "", false
		}
		return resolved[strings.TrimSpace(name)], true
	})
}

// sanitizeUserInput strips control characters other than newline/tab and
// caps length (spec §4.10 step 3).
func sanitizeUserInput(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > userInputMaxLen {
		out = out[:userInputMaxLen]
	}
	return out
}

// buildVariableContext assembles the namespaced variable map (spec §4.10
// step 5).
func buildVariableContext(platformName, platformVersion string, tenant *ids.TenantID, agent ids.AgentID, userVars map[string]any) map[string]any {
	ctx := map[string]any{
		"system": map[string]any{
			"platform_name":    platformName,
			"platform_version": platformVersion,
		},
		"agent": map[string]any{"id": string(agent)},
	}
	if tenant != nil {
		ctx["tenant"] = map[string]any{"id": string(*tenant)}
	}
	for k, v := range userVars {
		ctx[k] = v
	}
	return ctx
}

// renderVariables substitutes every "{{ var.path }}" reference, applying
// up to maxRenderPasses rounds so a value that itself contains a reference
// gets resolved too (spec §4.10 step 6 "recursively").
func renderVariables(template string, ctx map[string]any) (string, error) {
	text := template
	var renderErr error
	for pass := 0; pass < maxRenderPasses; pass++ {
		changed := false
		next := substituteMarkers(text, func(ref string) (string, bool) {
			if strings.HasPrefix(ref, mergeMarker) {
				return "", false // already resolved in an earlier pipeline step
			}
			value, found := resolvePath(ref, ctx)
			if !found {
				changed = true
				return "", true
			}
			rendered, err := stringifyVariable(value)
			if err != nil {
				renderErr = err
				return "", true
			}
			changed = true
			return rendered, true
		})
		if renderErr != nil {
			return "", renderErr
		}
		text = next
		if !changed {
			break
		}
	}
	return text, nil
}

func stringifyVariable(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int, int32, int64, float32, float64:
		return fmt.Sprintf("%v", val), nil
	case nil:
		return "", nil
	default:
		return "", toolerrors.NewWithCode(toolerrors.ErrPromptRender,
			fmt.Sprintf("variable of type %T cannot be rendered inline", v))
	}
}

func resolvePath(varPath string, ctx map[string]any) (any, bool) {
	segments := strings.Split(varPath, ".")
	var cur any = ctx
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

var markerPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

func substituteMarkers(text string, resolve func(ref string) (string, bool)) string {
	return markerPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := markerPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		value, handled := resolve(sub[1])
		if !handled {
			return match
		}
		return value
	})
}

// cacheKey computes a stable key from per-layer versions and a digest of
// variables (spec §4.10 step 1), namespaced by tenant so InvalidateTenant
// can purge it by glob pattern.
func cacheKey(agent ids.AgentID, tenant *ids.TenantID, layerVersions map[Layer]int, variables map[string]any) string {
	tenantSeg := "none"
	if tenant != nil {
		tenantSeg = string(*tenant)
	}

	layerParts := make([]string, 0, len(layerVersions))
	for layer, version := range layerVersions {
		layerParts = append(layerParts, fmt.Sprintf("%s:v%d", layer, version))
	}
	sort.Strings(layerParts)

	varsJSON, _ := json.Marshal(sortedVariables(variables))
	digest := sha256.Sum256([]byte(strings.Join(layerParts, ",") + "|" + string(varsJSON)))

	return fmt.Sprintf("tenant:%s:agent:%s:%x", tenantSeg, agent, digest)
}

func sortedVariables(variables map[string]any) map[string]any {
	if variables == nil {
		return map[string]any{}
	}
	return variables
}

func (e *Engine) lookupCache(ctx context.Context, key string) (ComposedPrompt, bool) {
	if composed, ok := e.local.Get(key); ok {
		return composed, true
	}
	if e.redis == nil {
		return ComposedPrompt{}, false
	}
	raw, err := e.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			e.logger.Warn(ctx, "prompt: redis cache get failed", "error", err.Error())
		}
		return ComposedPrompt{}, false
	}
	var composed ComposedPrompt
	if err := json.Unmarshal([]byte(raw), &composed); err != nil {
		e.logger.Warn(ctx, "prompt: redis cache entry corrupt", "error", err.Error())
		return ComposedPrompt{}, false
	}
	e.local.Add(key, composed)
	return composed, true
}

func (e *Engine) storeCache(ctx context.Context, key string, composed ComposedPrompt) {
	e.local.Add(key, composed)
	if e.redis == nil {
		return
	}
	raw, err := json.Marshal(composed)
	if err != nil {
		return
	}
	if err := e.redis.Set(ctx, key, raw, e.redisTTL).Err(); err != nil {
		e.logger.Warn(ctx, "prompt: redis cache set failed", "error", err.Error())
	}
}

// InvalidateTenant purges every cached composed prompt for tenant from
// both cache tiers via glob pattern (spec §4.10 "Cache invalidation").
func (e *Engine) InvalidateTenant(ctx context.Context, tenant ids.TenantID) {
	pattern := fmt.Sprintf("tenant:%s:*", tenant)
	e.invalidatePattern(ctx, pattern)
}

func (e *Engine) invalidatePattern(ctx context.Context, pattern string) {
	for _, key := range e.local.Keys() {
		if ok, _ := path.Match(pattern, key); ok {
			e.local.Remove(key)
		}
	}
	if e.redis == nil {
		return
	}
	keys, err := e.redis.Keys(ctx, pattern).Result()
	if err != nil {
		e.logger.Warn(ctx, "prompt: redis cache keys scan failed", "error", err.Error())
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := e.redis.Del(ctx, keys...).Err(); err != nil {
		e.logger.Warn(ctx, "prompt: redis cache del failed", "error", err.Error())
	}
}
