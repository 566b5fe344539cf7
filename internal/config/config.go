// Package config defines the small, env-driven default configuration used
// by the core's components. Loading configuration from files, flags, or a
// builder wizard is out of scope per spec §1; this package only reads
// process environment variables the way the teacher's demo command does.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/agentforge/core/orchestrate"
	"github.com/agentforge/core/prompt"
	"github.com/agentforge/core/skill"
)

// Defaults carries the platform defaults applied when a component-level
// config field is left unset.
type Defaults struct {
	// PlatformModel is the default model id used when a task or skill does
	// not override it.
	PlatformModel string
	// MaxIterations bounds the ReAct loop (C4) when a skill or caller does
	// not specify one.
	MaxIterations int
	// ObservationCharLimit truncates tool observations fed back to the LLM
	// (spec §4.4 step 7).
	ObservationCharLimit int
	// ToolTimeout is the default per-tool timeout (spec §4.1 step 4) when a
	// tool definition does not set one.
	ToolTimeout time.Duration
	// SubAgentCallTimeout is the default per-call deadline for orchestration
	// dispatch (spec §4.8, default 30s).
	SubAgentCallTimeout time.Duration
	// MaxSkillDepth bounds sub-agent forking (spec §4.5 step 3, default 3).
	MaxSkillDepth int
	// MinChildIterations floors the iteration budget handed to a forked
	// sub-agent (spec §4.5 step 3).
	MinChildIterations int
	// PromptCacheSize bounds the in-process prompt cache (C10).
	PromptCacheSize int
}

// FromEnv loads Defaults from environment variables, falling back to the
// hard-coded defaults below for anything unset or unparsable.
func FromEnv() Defaults {
	return Defaults{
		PlatformModel:        envString("AGENTCORE_DEFAULT_MODEL", "gpt-4o-mini"),
		MaxIterations:        envInt("AGENTCORE_MAX_ITERATIONS", 10),
		ObservationCharLimit: envInt("AGENTCORE_OBSERVATION_CHAR_LIMIT", 2000),
		ToolTimeout:          envDuration("AGENTCORE_TOOL_TIMEOUT", 30*time.Second),
		SubAgentCallTimeout:  envDuration("AGENTCORE_SUBAGENT_TIMEOUT", 30*time.Second),
		MaxSkillDepth:        envInt("AGENTCORE_MAX_SKILL_DEPTH", 3),
		MinChildIterations:   envInt("AGENTCORE_MIN_CHILD_ITERATIONS", 2),
		PromptCacheSize:      envInt("AGENTCORE_PROMPT_CACHE_SIZE", 512),
	}
}

// SkillDefaults adapts d into the PlatformDefaults that skill.NewOrchestrator
// expects, so a deployment's skill fork-depth/iteration floor settings come
// from the same environment-driven configuration as everything else.
func (d Defaults) SkillDefaults() skill.PlatformDefaults {
	return skill.PlatformDefaults{
		MaxIterations:      d.MaxIterations,
		Model:              d.PlatformModel,
		MaxDepth:           d.MaxSkillDepth,
		MinChildIterations: d.MinChildIterations,
	}
}

// OrchestrateManager constructs an orchestrate.Manager using d's default
// sub-agent call timeout.
func (d Defaults) OrchestrateManager(call orchestrate.SubAgentCall) *orchestrate.Manager {
	return orchestrate.NewManager(call, d.SubAgentCallTimeout)
}

// PromptEngine constructs a prompt.Engine sized by d's configured
// in-process cache size.
func (d Defaults) PromptEngine(loader prompt.Loader, platformName, platformVersion string, opts ...prompt.Option) *prompt.Engine {
	return prompt.NewEngine(loader, d.PromptCacheSize, platformName, platformVersion, opts...)
}

// ProviderAPIKey returns the API key environment variable for the given
// provider name (e.g. "openai", "anthropic", "groq"), matching spec §6's
// "Environment inputs" list.
func ProviderAPIKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	default:
		return ""
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
