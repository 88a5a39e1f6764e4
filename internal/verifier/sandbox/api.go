// Package sandbox is the verification entry point: it sequences setup,
// supervised execution, result collection and cleanup.
package sandbox

import (
	"context"
	"sync"

	"codeverifier/internal/verifier/sandbox/collector"
	"codeverifier/internal/verifier/sandbox/engine"
	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/sandbox/spec"
	"codeverifier/internal/verifier/sandbox/supervisor"
	"codeverifier/pkg/errors"
	"codeverifier/pkg/utils/logger"

	"go.uber.org/zap"
)

// Verifier runs one request to completion.
type Verifier interface {
	TestSolution(ctx context.Context, req spec.Request) (result.Report, error)
}

// Orchestrator binds a strategy to the verification lifecycle.
type Orchestrator struct {
	strategy engine.Strategy
}

// New returns an orchestrator for strategy.
func New(strategy engine.Strategy) *Orchestrator {
	return &Orchestrator{strategy: strategy}
}

// TestSolution runs req with the bound strategy.
func (o *Orchestrator) TestSolution(ctx context.Context, req spec.Request) (result.Report, error) {
	return TestSolution(ctx, o.strategy, req)
}

// TestSolution never fails for submission-caused problems: those come back as
// reports with solved=false and errors set. Only platform faults (setup,
// spawn, container, cancellation) are returned as errors.
func TestSolution(ctx context.Context, strategy engine.Strategy, req spec.Request) (result.Report, error) {
	req.Options = req.Options.WithDefaults()

	exec, err := strategy.Prepare(ctx, req)
	if err != nil {
		return settle(result.Report{}, err)
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			cctx := context.WithoutCancel(ctx)
			if err := exec.Cleanup(cctx); err != nil {
				logger.Warn(cctx, "verification cleanup failed", zap.Error(err))
			}
		})
	}
	defer cleanup()

	outcome, err := supervisor.Run(ctx, req.Options.TimeoutDelay, exec.Run, exec.Kill)
	if err != nil {
		if errors.Is(err, errors.VerificationTimeout) {
			logger.Warn(ctx, "verification timed out", zap.Duration("timeout", req.Options.TimeoutDelay))
		}
		cleanup()
		return settle(result.Report{}, err)
	}

	report, err := collector.Collect(outcome)
	cleanup()
	return settle(report, err)
}

// settle maps reportable failures to failed reports and passes the rest through.
func settle(report result.Report, err error) (result.Report, error) {
	if err == nil {
		return report, nil
	}
	if errors.GetCode(err).Reportable() {
		return result.Failed(err.Error()), nil
	}
	return result.Report{}, err
}
