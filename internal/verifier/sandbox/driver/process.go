package driver

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/sandbox/spec"
	"codeverifier/internal/verifier/sandbox/workspace"
	verrors "codeverifier/pkg/errors"
	"codeverifier/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	outputLimit = 64 * 1024
	waitDelay   = time.Second
)

// command splits the configured driver command line.
func command(driverPath string) ([]string, error) {
	argv, err := shlex.Split(driverPath)
	if err != nil {
		return nil, verrors.Wrapf(err, verrors.DriverSpawnFailed, "parse driver path")
	}
	if len(argv) == 0 {
		return nil, verrors.Newf(verrors.DriverSpawnFailed, "driver path is not configured")
	}
	return argv, nil
}

type execution struct {
	ws          *workspace.Workspace
	argv        []string
	configPath  string
	resultsPath string
	opts        spec.ExecutionOptions

	mu     sync.Mutex
	cmd    *exec.Cmd
	killed bool
	exited chan struct{}
}

func newExecution(ws *workspace.Workspace, argv []string, configPath, resultsPath string, opts spec.ExecutionOptions) *execution {
	return &execution{
		ws:          ws,
		argv:        argv,
		configPath:  configPath,
		resultsPath: resultsPath,
		opts:        opts.WithDefaults(),
		exited:      make(chan struct{}),
	}
}

// Run spawns the driver with the configuration path as its last argument and
// waits for it to exit.
func (e *execution) Run(ctx context.Context) (result.RawOutcome, error) {
	args := append(append([]string{}, e.argv[1:]...), e.configPath)
	cmd := exec.Command(e.argv[0], args...)
	cmd.Dir = e.ws.Dir
	output := &limitedBuffer{limit: outputLimit}
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.SysProcAttr = sysProcAttr(e.opts)
	cmd.WaitDelay = waitDelay

	e.mu.Lock()
	if e.killed {
		e.mu.Unlock()
		close(e.exited)
		return result.RawOutcome{}, verrors.Newf(verrors.DriverSpawnFailed, "driver killed before start")
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		close(e.exited)
		return result.RawOutcome{}, verrors.Wrapf(err, verrors.DriverSpawnFailed, "spawn driver %s", e.argv[0])
	}
	e.cmd = cmd
	e.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { e.Kill(context.Background()) })
	defer stop()

	waitErr := cmd.Wait()
	close(e.exited)

	code := exitCodeFromErr(waitErr, cmd.ProcessState)
	if code != 0 {
		logger.Warn(ctx, "driver exited with error",
			zap.Int("exit_code", code),
			zap.String("output", output.String()),
		)
	}
	return result.Exited(code, e.resultsPath), nil
}

// Kill sends SIGTERM to the driver's process group and escalates to SIGKILL
// when the driver has not exited after the kill grace period.
func (e *execution) Kill(ctx context.Context) {
	e.mu.Lock()
	if e.killed {
		e.mu.Unlock()
		return
	}
	e.killed = true
	cmd := e.cmd
	e.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := terminate(cmd.Process, false); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn(ctx, "terminate driver failed", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
	}

	grace := time.NewTimer(e.opts.KillGrace)
	defer grace.Stop()
	select {
	case <-e.exited:
		return
	case <-grace.C:
	case <-ctx.Done():
	}
	if err := terminate(cmd.Process, true); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn(ctx, "kill driver failed", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
	}
}

// Cleanup removes the workspace.
func (e *execution) Cleanup(ctx context.Context) error {
	return e.ws.Cleanup(ctx)
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
