package container_test

import (
	"bytes"
	"context"
	"encoding/base64"
	stderrors "errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"codeverifier/internal/verifier/sandbox"
	"codeverifier/internal/verifier/sandbox/container"
	"codeverifier/internal/verifier/sandbox/spec"
	"codeverifier/pkg/errors"

	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeDocker struct {
	mu sync.Mutex

	createErr error
	created   *dcontainer.Config
	host      *dcontainer.HostConfig

	// exit is delivered by ContainerWait; nil blocks until ctx is done.
	exit   *dcontainer.WaitResponse
	stdout string
	stderr string

	stops   int
	removes int
	pulled  []string
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *dcontainer.Config, hostConfig *dcontainer.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (dcontainer.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return dcontainer.CreateResponse{}, f.createErr
	}
	f.created = config
	f.host = hostConfig
	return dcontainer.CreateResponse{ID: "c0ffee"}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, id string, _ dcontainer.StartOptions) error {
	return nil
}

func (f *fakeDocker) ContainerWait(ctx context.Context, id string, _ dcontainer.WaitCondition) (<-chan dcontainer.WaitResponse, <-chan error) {
	okCh := make(chan dcontainer.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.exit != nil {
		okCh <- *f.exit
	}
	return okCh, errCh
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, id string, _ dcontainer.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	if f.stdout != "" {
		io.WriteString(stdcopy.NewStdWriter(&buf, stdcopy.Stdout), f.stdout)
	}
	if f.stderr != "" {
		io.WriteString(stdcopy.NewStdWriter(&buf, stdcopy.Stderr), f.stderr)
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeDocker) ContainerStop(ctx context.Context, id string, _ dcontainer.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, id string, opts dcontainer.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes++
	if !opts.Force {
		return stderrors.New("container is running")
	}
	return nil
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader(`{"status":"Downloaded"}`)), nil
}

func exited(code int64) *dcontainer.WaitResponse {
	return &dcontainer.WaitResponse{StatusCode: code}
}

func TestCommand(t *testing.T) {
	got := container.Command(spec.Request{Solution: "foo = 1", Tests: "assert foo == 1"})
	want := []string{
		"-e",
		"--tests=" + base64.StdEncoding.EncodeToString([]byte("assert foo == 1")),
		base64.StdEncoding.EncodeToString([]byte("foo = 1")),
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("command = %v, want %v", got, want)
	}

	got = container.Command(spec.Request{Solution: "foo = 1"})
	if len(got) != 2 || got[0] != "-e" {
		t.Fatalf("command without tests = %v", got)
	}
}

func TestContainerReportsResults(t *testing.T) {
	docker := &fakeDocker{
		exit:   exited(0),
		stdout: `{"solved":true,"printed":"hi\n","results":[{"call":"foo","expected":1,"received":1,"correct":true}]}`,
	}

	strategy := container.NewStrategy(docker, container.Config{})
	report, err := sandbox.TestSolution(context.Background(), strategy, spec.Request{Solution: "foo = 1", Tests: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Solved || report.Printed != "hi\n" || len(report.Results) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Results[0].Test != "foo" || !report.Results[0].Correct {
		t.Fatalf("unexpected record: %+v", report.Results[0])
	}
	if !docker.created.NetworkDisabled || docker.created.Image != container.DefaultImage {
		t.Fatalf("unexpected container config: %+v", docker.created)
	}
	if docker.host.NetworkMode != "none" {
		t.Fatalf("network mode = %q", docker.host.NetworkMode)
	}
	if docker.removes != 1 {
		t.Fatalf("expected one remove, got %d", docker.removes)
	}
}

func TestContainerTimeoutStopsContainer(t *testing.T) {
	docker := &fakeDocker{}

	strategy := container.NewStrategy(docker, container.Config{})
	req := spec.Request{Solution: "while True: pass", Options: spec.ExecutionOptions{TimeoutDelay: 50 * time.Millisecond}}
	report, err := sandbox.TestSolution(context.Background(), strategy, req)
	if err != nil {
		t.Fatalf("timeout must be a report, got %v", err)
	}
	if report.Solved || report.Errors != "timeout" {
		t.Fatalf("expected timeout report, got %+v", report)
	}
	if docker.stops != 1 {
		t.Fatalf("expected one stop, got %d", docker.stops)
	}
	if docker.removes != 1 {
		t.Fatalf("expected one remove, got %d", docker.removes)
	}
}

func TestContainerMalformedOutput(t *testing.T) {
	docker := &fakeDocker{exit: exited(1), stdout: "Traceback (most recent call last):", stderr: "boom"}

	strategy := container.NewStrategy(docker, container.Config{})
	report, err := sandbox.TestSolution(context.Background(), strategy, spec.Request{Solution: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Solved || !strings.HasPrefix(report.Errors, "failed to parse results") {
		t.Fatalf("expected malformed results report, got %+v", report)
	}
	if docker.removes != 1 {
		t.Fatalf("expected one remove, got %d", docker.removes)
	}
}

func TestContainerCreateFailure(t *testing.T) {
	docker := &fakeDocker{createErr: stderrors.New("no such image")}

	strategy := container.NewStrategy(docker, container.Config{Image: "verifier:missing"})
	_, err := sandbox.TestSolution(context.Background(), strategy, spec.Request{Solution: "x"})
	if !errors.Is(err, errors.ContainerFailed) {
		t.Fatalf("expected ContainerFailed, got %v", err)
	}
	if docker.removes != 0 {
		t.Fatalf("nothing was created, got %d removes", docker.removes)
	}
}

func TestContainerWaitError(t *testing.T) {
	docker := &fakeDocker{exit: &dcontainer.WaitResponse{StatusCode: 125, Error: &dcontainer.WaitExitError{Message: "oci runtime error"}}}

	strategy := container.NewStrategy(docker, container.Config{})
	_, err := sandbox.TestSolution(context.Background(), strategy, spec.Request{Solution: "x"})
	if !errors.Is(err, errors.ContainerFailed) {
		t.Fatalf("expected ContainerFailed, got %v", err)
	}
	if docker.removes != 1 {
		t.Fatalf("expected one remove, got %d", docker.removes)
	}
}

func TestCleanupRemovesOnce(t *testing.T) {
	docker := &fakeDocker{}
	strategy := container.NewStrategy(docker, container.Config{})

	exec, err := strategy.Prepare(context.Background(), spec.Request{Solution: "x"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := exec.Cleanup(context.Background()); err != nil {
				t.Errorf("cleanup: %v", err)
			}
		}()
	}
	wg.Wait()
	if docker.removes != 1 {
		t.Fatalf("expected one remove, got %d", docker.removes)
	}
}

func TestPullImage(t *testing.T) {
	docker := &fakeDocker{}
	if err := container.PullImage(context.Background(), docker, container.DefaultImage); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(docker.pulled) != 1 || docker.pulled[0] != container.DefaultImage {
		t.Fatalf("unexpected pulls: %v", docker.pulled)
	}
}
