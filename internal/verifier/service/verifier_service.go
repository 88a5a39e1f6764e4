// Package service exposes the configured runtimes and bounds how many
// verifications run at once.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"codeverifier/internal/common/limiter"
	"codeverifier/internal/verifier/sandbox"
	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/sandbox/spec"
	appErr "codeverifier/pkg/errors"
	"codeverifier/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultMaxJobs = 5

// Config holds service dependencies and settings.
type Config struct {
	Runtimes  []Runtime
	MaxJobs   int
	QueueWait time.Duration
}

// Service verifies submissions against a fixed set of runtimes.
type Service struct {
	runtimes  map[string]Runtime
	names     []string
	jobs      *limiter.TokenLimiter
	queueWait time.Duration
}

// Submission is what a caller asks to verify.
type Submission struct {
	Solution string `json:"solution"`
	Tests    string `json:"tests"`
}

// NewService creates a new verifier service.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Runtimes) == 0 {
		return nil, fmt.Errorf("at least one runtime is required")
	}
	runtimes := make(map[string]Runtime, len(cfg.Runtimes))
	names := make([]string, 0, len(cfg.Runtimes))
	for _, rt := range cfg.Runtimes {
		if rt.Strategy == nil {
			return nil, fmt.Errorf("runtime %s has no strategy", rt.Name)
		}
		if _, dup := runtimes[rt.Name]; dup {
			return nil, fmt.Errorf("runtime %s is declared twice", rt.Name)
		}
		runtimes[rt.Name] = rt
		names = append(names, rt.Name)
	}
	sort.Strings(names)

	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}
	return &Service{
		runtimes:  runtimes,
		names:     names,
		jobs:      limiter.NewTokenLimiter(maxJobs),
		queueWait: cfg.QueueWait,
	}, nil
}

// Runtimes returns the supported runtime names, sorted.
func (s *Service) Runtimes() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Supported returns RuntimeNotSupported for unknown names.
func (s *Service) Supported(name string) error {
	if _, ok := s.runtimes[name]; !ok {
		return appErr.Newf(appErr.RuntimeNotSupported, "Unsupported runtime: %s", name).WithDetail("runtime", name)
	}
	return nil
}

// Verify runs sub with the named runtime once a job slot is free.
func (s *Service) Verify(ctx context.Context, name string, sub Submission) (result.Report, error) {
	rt, ok := s.runtimes[name]
	if !ok {
		return result.Report{}, s.Supported(name)
	}
	if sub.Solution == "" {
		return result.Report{}, appErr.New(appErr.SolutionRequired)
	}

	acquired, err := s.jobs.AcquireWithin(ctx, s.queueWait)
	if err != nil {
		return result.Report{}, err
	}
	if !acquired {
		logger.Warn(ctx, "verifier busy", zap.Int("max_jobs", s.jobs.Capacity()))
		return result.Report{}, appErr.New(appErr.VerifierBusy)
	}
	defer s.jobs.Release()

	start := time.Now()
	report, err := sandbox.TestSolution(ctx, rt.Strategy, spec.Request{
		Solution: sub.Solution,
		Tests:    sub.Tests,
		Options:  rt.Options,
	})
	if err != nil {
		return result.Report{}, err
	}
	logger.Info(ctx, "verification finished",
		zap.Bool("solved", report.Solved),
		zap.Int("results", len(report.Results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}
