package inprocess

import (
	"context"
	"io"
	"sync"

	"codeverifier/internal/verifier/sandbox/engine"
	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/sandbox/spec"
	"codeverifier/pkg/errors"
)

// Factory builds a fresh sandbox for every run.
type Factory func() (Sandbox, error)

// Strategy runs requests in a fresh sandbox per request.
type Strategy struct {
	newSandbox Factory
}

// NewStrategy returns an in-process strategy backed by newSandbox.
func NewStrategy(newSandbox Factory) *Strategy {
	return &Strategy{newSandbox: newSandbox}
}

// Prepare allocates the sandbox. In-process runs own no files.
func (s *Strategy) Prepare(ctx context.Context, req spec.Request) (engine.Execution, error) {
	if s.newSandbox == nil {
		return nil, errors.Newf(errors.SetupFailed, "no sandbox factory configured")
	}
	sb, err := s.newSandbox()
	if err != nil {
		return nil, errors.Wrapf(err, errors.SetupFailed, "create sandbox")
	}
	return &execution{sb: sb, req: req}, nil
}

type execution struct {
	sb  Sandbox
	req spec.Request

	closeOnce sync.Once
}

// Run evaluates the solution, then the tests, then runs every body. The
// sandbox is released by the goroutine that used it.
func (e *execution) Run(ctx context.Context) (result.RawOutcome, error) {
	defer e.release()
	stop := context.AfterFunc(ctx, func() { e.sb.Interrupt(context.Cause(ctx).Error()) })
	defer stop()

	if err := RunSolution(e.sb, e.req.Solution); err != nil {
		return result.RawOutcome{}, err
	}
	reg, err := InitTests(e.sb, e.req.Tests)
	if err != nil {
		return result.RawOutcome{}, err
	}
	results, err := RunTests(ctx, reg)
	if err != nil {
		return result.RawOutcome{}, err
	}
	return result.Tests(results), nil
}

func (e *execution) Kill(ctx context.Context) {
	e.sb.Interrupt("timeout")
}

// Cleanup has nothing to remove: the sandbox is closed when Run returns.
func (e *execution) Cleanup(ctx context.Context) error {
	return nil
}

func (e *execution) release() {
	e.closeOnce.Do(func() {
		if c, ok := e.sb.(io.Closer); ok {
			_ = c.Close()
		}
	})
}
