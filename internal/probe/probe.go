package probe

import (
	"context"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// Prober executes one probe attempt sequence for a check and classifies it.
// Implementations must not touch incident or metrics state.
type Prober interface {
	Probe(ctx context.Context, check domain.CheckDefinition, location string) domain.ProbeResult
}

// Func adapts a plain function to Prober.
type Func func(ctx context.Context, check domain.CheckDefinition, location string) domain.ProbeResult

func (f Func) Probe(ctx context.Context, check domain.CheckDefinition, location string) domain.ProbeResult {
	return f(ctx, check, location)
}

// Failure kinds recorded under Details["failure"].
const (
	FailureNetwork = "network"
	FailureTimeout = "timeout"
	FailureStatus  = "http_status"
	FailureContent = "content"
	FailureRequest = "request"
)
