// Package inprocess runs a solution and its tests inside an embedded interpreter.
//
// The package owns the harness contract shared by every interpreter backend:
// the solution is evaluated first, the reserved names are checked, the test
// script registers named bodies through test(name, body), and the bodies are
// started in registration order before their outcomes are collected in the
// same order.
package inprocess

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/pkg/errors"
)

// Names the harness installs into the evaluation context.
const (
	AssertName   = "assert"
	TestName     = "test"
	RegistryName = "__tests__"
)

// ReservedNames may not be defined by a solution.
var ReservedNames = []string{AssertName, TestName, RegistryName}

const reservedMessage = `"assert", "test" and "__tests__" cannot be defined in a solution`

// ErrHarnessReplaced is returned by Install when a reserved name does not
// resolve to the harness after installation.
var ErrHarnessReplaced = stderrors.New("harness binding replaced")

// Settle waits for a started body and reports its failure, if any.
type Settle func() error

// Body starts a registered test. Synchronous bodies return an already
// settled Settle; deferred bodies return one that waits.
type Body func() Settle

// Settled returns a Settle that reports err immediately.
func Settled(err error) Settle {
	return func() error { return err }
}

// Sandbox is an isolated evaluation context backed by some interpreter.
type Sandbox interface {
	// Evaluate runs source in the context. Thrown values come back as errors.
	Evaluate(source string) error
	// Defined tells whether name is bound in the context's global scope.
	Defined(name string) bool
	// Install binds the assertion capability, the registry and a test
	// function that forwards each declaration to register. It reads every
	// reserved name back and fails with ErrHarnessReplaced when one resolves
	// to something else.
	Install(register func(name string, body Body)) error
	// Interrupt aborts any evaluation in progress. Safe from other goroutines.
	Interrupt(reason string)
}

type entry struct {
	name string
	body Body
}

// Registry keeps declared tests in declaration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// Register appends a test.
func (r *Registry) Register(name string, body Body) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{name: name, body: body})
}

// Len reports how many tests were declared.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) snapshot() []entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// RunSolution evaluates solution in sb and rejects solutions that define a reserved name.
func RunSolution(sb Sandbox, solution string) error {
	if strings.TrimSpace(solution) == "" {
		return errors.Newf(errors.SolutionInvalid, "a solution is required")
	}
	if sb == nil {
		return errors.Newf(errors.HarnessConfigInvalid, "sandbox is missing")
	}
	if err := sb.Evaluate(solution); err != nil {
		return errors.Wrapf(err, errors.SolutionInvalid, "failed to run solution")
	}
	for _, name := range ReservedNames {
		if sb.Defined(name) {
			return errors.New(errors.SolutionInvalid).WithMessage(reservedMessage).
				WithDetail("name", name)
		}
	}
	return nil
}

// InitTests installs the harness into sb and evaluates the test script.
func InitTests(sb Sandbox, tests string) (*Registry, error) {
	if strings.TrimSpace(tests) == "" {
		return nil, errors.Newf(errors.HarnessConfigInvalid, "tests are missing")
	}
	if sb == nil {
		return nil, errors.Newf(errors.HarnessConfigInvalid, "sandbox is missing")
	}
	reg := &Registry{}
	if err := sb.Install(reg.Register); err != nil {
		if stderrors.Is(err, ErrHarnessReplaced) {
			return nil, errors.Wrap(err, errors.SolutionInvalid).WithMessage(reservedMessage)
		}
		return nil, errors.Wrapf(err, errors.HarnessConfigInvalid, "install test harness")
	}
	if err := sb.Evaluate(tests); err != nil {
		return nil, errors.Wrapf(err, errors.TestsInvalid, "failed to initiate tests")
	}
	return reg, nil
}

// RunTests starts every body, then settles them in registration order.
// A failing body only affects its own result.
func RunTests(ctx context.Context, reg *Registry) ([]result.TestResult, error) {
	entries := reg.snapshot()
	settles := make([]Settle, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		settles[i] = start(e.body)
	}

	results := make([]result.TestResult, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := settle(settles[i]); err != nil {
			results[i] = result.Fail(e.name, err.Error())
			continue
		}
		results[i] = result.Pass(e.name)
	}
	return results, nil
}

func start(body Body) (s Settle) {
	defer func() {
		if r := recover(); r != nil {
			s = Settled(fmt.Errorf("%v", r))
		}
	}()
	if body == nil {
		return Settled(fmt.Errorf("test body is not a function"))
	}
	s = body()
	if s == nil {
		return Settled(nil)
	}
	return s
}

func settle(s Settle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return s()
}
