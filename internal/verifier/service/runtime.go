package service

import (
	"fmt"
	"time"

	"codeverifier/internal/verifier/sandbox/container"
	"codeverifier/internal/verifier/sandbox/driver"
	"codeverifier/internal/verifier/sandbox/engine"
	"codeverifier/internal/verifier/sandbox/inprocess"
	"codeverifier/internal/verifier/sandbox/inprocess/jsvm"
	"codeverifier/internal/verifier/sandbox/inprocess/luavm"
	"codeverifier/internal/verifier/sandbox/spec"
)

// Kind selects the execution strategy behind a runtime.
type Kind string

const (
	KindJavaScript Kind = "javascript"
	KindLua        Kind = "lua"
	KindDriver     Kind = "driver"
	KindContainer  Kind = "container"
)

// RuntimeConfig describes one runtime exposed by the service.
type RuntimeConfig struct {
	Name    string        `yaml:"name"`
	Kind    Kind          `yaml:"kind"`
	Timeout time.Duration `yaml:"timeout"`

	// driver
	DriverPath    string        `yaml:"driverPath"`
	RunAsUID      int           `yaml:"runAsUID"`
	RunAsGID      int           `yaml:"runAsGID"`
	KillGrace     time.Duration `yaml:"killGrace"`
	PublicURLBase string        `yaml:"publicUrlBase"`
	PathRewrite   string        `yaml:"pathRewrite"`
	SeleniumURL   string        `yaml:"seleniumAddress"`

	// container
	Image       string        `yaml:"image"`
	Memory      int64         `yaml:"memory"`
	NanoCPUs    int64         `yaml:"nanoCPUs"`
	StopTimeout time.Duration `yaml:"stopTimeout"`
}

// Runtime binds a name to a strategy and the options every request gets.
type Runtime struct {
	Name     string
	Strategy engine.Strategy
	Options  spec.ExecutionOptions
}

// NewRuntime builds the runtime described by rc. workspaceRoot is shared by
// every driver runtime; docker is only needed for container runtimes.
func NewRuntime(rc RuntimeConfig, workspaceRoot string, docker container.Client) (Runtime, error) {
	if rc.Name == "" {
		return Runtime{}, fmt.Errorf("runtime name is required")
	}
	rt := Runtime{
		Name: rc.Name,
		Options: spec.ExecutionOptions{
			TimeoutDelay: rc.Timeout,
		},
	}

	switch rc.Kind {
	case KindJavaScript:
		rt.Strategy = inprocess.NewStrategy(jsvm.New)
	case KindLua:
		rt.Strategy = inprocess.NewStrategy(luavm.New)
	case KindDriver:
		if rc.DriverPath == "" {
			return Runtime{}, fmt.Errorf("runtime %s: driver path is required", rc.Name)
		}
		if workspaceRoot == "" {
			return Runtime{}, fmt.Errorf("runtime %s: workspace root is required", rc.Name)
		}
		rt.Strategy = driver.NewStrategy()
		rt.Options.WorkspaceRoot = workspaceRoot
		rt.Options.DriverPath = rc.DriverPath
		rt.Options.RunAsUID = rc.RunAsUID
		rt.Options.RunAsGID = rc.RunAsGID
		rt.Options.KillGrace = rc.KillGrace
		rt.Options.PublicURLBase = rc.PublicURLBase
		rt.Options.PathRewriteRule = rc.PathRewrite
		rt.Options.SeleniumAddress = rc.SeleniumURL
		if _, err := rt.Options.RewriteRule(); err != nil {
			return Runtime{}, fmt.Errorf("runtime %s: %w", rc.Name, err)
		}
	case KindContainer:
		if docker == nil {
			return Runtime{}, fmt.Errorf("runtime %s: docker client is required", rc.Name)
		}
		rt.Strategy = container.NewStrategy(docker, container.Config{
			Image:       rc.Image,
			Memory:      rc.Memory,
			NanoCPUs:    rc.NanoCPUs,
			StopTimeout: rc.StopTimeout,
		})
	default:
		return Runtime{}, fmt.Errorf("runtime %s: unknown kind %q", rc.Name, rc.Kind)
	}
	return rt, nil
}
