package toolexec

import "time"

// Result is the outcome of one tool invocation (spec §3 "Tool Result").
type Result struct {
	Success           bool
	Value             map[string]any
	Error             string
	Duration          time.Duration
	Tokens            int
	CostUSD           float64
	Cached            bool
	RetryCount        int
	TruncatableFields []string
}
