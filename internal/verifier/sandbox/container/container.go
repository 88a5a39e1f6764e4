// Package container runs a submission inside a verifier image that prints its
// own report on stdout.
package container

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"sync"
	"time"

	"codeverifier/internal/verifier/sandbox/engine"
	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/sandbox/spec"
	"codeverifier/pkg/errors"
	"codeverifier/pkg/utils/logger"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

const (
	DefaultImage       = "singpath/verifier-python3"
	DefaultStopTimeout = 2 * time.Second
	DefaultMaxOutput   = 1 << 20
)

// Client is the subset of the docker engine API the runner needs.
// *client.Client satisfies it.
type Client interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// Config describes the verifier image and the resources granted to each run.
type Config struct {
	Image       string
	Memory      int64
	NanoCPUs    int64
	StopTimeout time.Duration
	// MaxOutput caps how many bytes of container output are read.
	MaxOutput int64
}

func (c Config) withDefaults() Config {
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.MaxOutput <= 0 {
		c.MaxOutput = DefaultMaxOutput
	}
	return c
}

// Strategy creates one container per request.
type Strategy struct {
	client Client
	cfg    Config
}

// NewStrategy returns a container strategy backed by client.
func NewStrategy(client Client, cfg Config) *Strategy {
	return &Strategy{client: client, cfg: cfg.withDefaults()}
}

// Command builds the verifier entrypoint arguments. Sources travel base64
// encoded so they survive argv untouched.
func Command(req spec.Request) []string {
	cmd := []string{"-e"}
	if req.Tests != "" {
		cmd = append(cmd, "--tests="+encode(req.Tests))
	}
	return append(cmd, encode(req.Solution))
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// Prepare creates the container without starting it.
func (s *Strategy) Prepare(ctx context.Context, req spec.Request) (engine.Execution, error) {
	resp, err := s.client.ContainerCreate(ctx,
		&container.Config{
			Image:           s.cfg.Image,
			Cmd:             Command(req),
			NetworkDisabled: true,
			AttachStdout:    true,
			AttachStderr:    true,
		},
		&container.HostConfig{
			NetworkMode: "none",
			Resources: container.Resources{
				Memory:   s.cfg.Memory,
				NanoCPUs: s.cfg.NanoCPUs,
			},
		}, nil, nil, "")
	if err != nil {
		return nil, errors.Wrapf(err, errors.ContainerFailed, "create container from %s", s.cfg.Image).
			WithDetail("image", s.cfg.Image)
	}
	for _, w := range resp.Warnings {
		logger.Warn(ctx, "container create warning", zap.String("container_id", resp.ID), zap.String("warning", w))
	}
	return &execution{client: s.client, id: resp.ID, cfg: s.cfg}, nil
}

type execution struct {
	client Client
	id     string
	cfg    Config

	mu      sync.Mutex
	removed bool
}

// Run starts the container, waits for it to stop and returns its stdout as a
// report document.
func (e *execution) Run(ctx context.Context) (result.RawOutcome, error) {
	if err := e.client.ContainerStart(ctx, e.id, container.StartOptions{}); err != nil {
		return result.RawOutcome{}, errors.Wrapf(err, errors.ContainerFailed, "start container %s", e.id)
	}

	okCh, errCh := e.client.ContainerWait(ctx, e.id, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return result.RawOutcome{}, ctx.Err()
	case err := <-errCh:
		if ctx.Err() != nil {
			return result.RawOutcome{}, ctx.Err()
		}
		return result.RawOutcome{}, errors.Wrapf(err, errors.ContainerFailed, "wait for container %s", e.id)
	case status := <-okCh:
		if status.Error != nil {
			return result.RawOutcome{}, errors.Newf(errors.ContainerFailed, "wait for container %s: %s", e.id, status.Error.Message)
		}
		if status.StatusCode != 0 {
			logger.Warn(ctx, "verifier container exited with error", zap.String("container_id", e.id), zap.Int64("status", status.StatusCode))
		}
	}

	logs, err := e.client.ContainerLogs(ctx, e.id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return result.RawOutcome{}, errors.Wrapf(err, errors.ContainerFailed, "read logs of container %s", e.id)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, io.LimitReader(logs, e.cfg.MaxOutput)); err != nil {
		return result.RawOutcome{}, errors.Wrapf(err, errors.ContainerFailed, "read logs of container %s", e.id)
	}
	if stderr.Len() > 0 {
		logger.Warn(ctx, "verifier container wrote to stderr", zap.String("container_id", e.id), zap.String("stderr", stderr.String()))
	}
	return result.Document(stdout.Bytes()), nil
}

// Kill stops the container, letting docker escalate to SIGKILL after StopTimeout.
func (e *execution) Kill(ctx context.Context) {
	timeout := int(e.cfg.StopTimeout / time.Second)
	if timeout < 1 {
		timeout = 1
	}
	if err := e.client.ContainerStop(ctx, e.id, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		logger.Warn(ctx, "failed to stop verifier container", zap.String("container_id", e.id), zap.Error(err))
	}
}

// Cleanup force-removes the container. Only the first call talks to docker.
func (e *execution) Cleanup(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil
	}
	e.removed = true

	err := e.client.ContainerRemove(ctx, e.id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return errors.Wrapf(err, errors.CleanupFailed, "remove container %s", e.id).
			WithDetail("container_id", e.id)
	}
	return nil
}

// PullImage fetches ref. The pull stream is drained fully, otherwise docker
// aborts the download.
func PullImage(ctx context.Context, client Client, ref string) error {
	out, err := client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return errors.Wrapf(err, errors.ContainerFailed, "pull image %s", ref)
	}
	defer out.Close()
	if _, err := io.Copy(io.Discard, out); err != nil {
		return errors.Wrapf(err, errors.ContainerFailed, "pull image %s", ref)
	}
	return nil
}
