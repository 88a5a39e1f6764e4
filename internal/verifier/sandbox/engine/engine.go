// Package engine defines the capability every execution strategy provides.
package engine

import (
	"context"

	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/sandbox/spec"
)

// Strategy prepares one run of a request. A failed Prepare leaves nothing
// behind for the caller to clean up.
type Strategy interface {
	Prepare(ctx context.Context, req spec.Request) (Execution, error)
}

// Execution is a prepared run that exclusively owns its resources.
type Execution interface {
	// Run blocks until the run completes or ctx is canceled.
	Run(ctx context.Context) (result.RawOutcome, error)
	// Kill forces a running execution to stop. It may be called concurrently with Run.
	Kill(ctx context.Context)
	// Cleanup releases every resource owned by the execution. It is idempotent.
	Cleanup(ctx context.Context) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, req spec.Request) (Execution, error)

// Prepare calls f.
func (f StrategyFunc) Prepare(ctx context.Context, req spec.Request) (Execution, error) {
	return f(ctx, req)
}
