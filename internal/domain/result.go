package domain

import "time"

// ProbeResult is the outcome of one probe attempt sequence. Never mutated after creation.
type ProbeResult struct {
	CheckID    CheckID           `json:"check_id"`
	Location   string            `json:"location,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Success    bool              `json:"success"`
	LatencyMS  float64           `json:"latency_ms"`
	HTTPStatus *int              `json:"http_status,omitempty"` // nil on transport errors
	Error      string            `json:"error,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// ServiceMetrics is derived from the recent results of one check; it is
// recomputed, never updated incrementally.
type ServiceMetrics struct {
	CheckID      CheckID    `json:"check_id"`
	TotalChecks  int        `json:"total_checks"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	Uptime       float64    `json:"uptime"`
	AvgLatencyMS float64    `json:"avg_latency_ms"`
	P95LatencyMS float64    `json:"p95_latency_ms"`
	P99LatencyMS float64    `json:"p99_latency_ms"`
	LastCheck    *time.Time `json:"last_check,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	MTTR         Duration   `json:"mttr"`
	MTBF         Duration   `json:"mtbf"`
	ComputedAt   time.Time  `json:"computed_at"`
}
