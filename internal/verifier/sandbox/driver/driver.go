// Package driver runs a submission through an external test driver process.
//
// The driver is handed a generated configuration file naming the test
// script, the rendered artifact and the location where it must write its
// JSON results.
package driver

import (
	"bytes"
	"context"
	"encoding/json"

	"codeverifier/internal/verifier/sandbox/engine"
	"codeverifier/internal/verifier/sandbox/spec"
	"codeverifier/internal/verifier/sandbox/workspace"
	"codeverifier/pkg/errors"
	"codeverifier/pkg/utils/logger"

	"go.uber.org/zap"
)

// Workspace layout.
const (
	SpecsFile    = "specs.js"
	ArtifactFile = "index.html"
	ConfigFile   = "config.js"
	ResultsFile  = "results.json"
)

const framework = "jasmine"

// Strategy prepares driver runs from per-request options.
type Strategy struct{}

// NewStrategy returns a driver strategy.
func NewStrategy() *Strategy {
	return &Strategy{}
}

type jasmineOpts struct {
	ShowColors bool `json:"showColors"`
}

// runConfig is the driver configuration document.
type runConfig struct {
	SeleniumAddress      string      `json:"seleniumAddress,omitempty"`
	Specs                []string    `json:"specs"`
	BaseURL              string      `json:"baseUrl"`
	Framework            string      `json:"framework"`
	ResultJSONOutputFile string      `json:"resultJsonOutputFile"`
	JasmineNodeOpts      jasmineOpts `json:"jasmineNodeOpts"`
}

// Prepare creates the workspace and writes the test script, the artifact and
// the driver configuration. On failure the partial workspace is removed.
func (s *Strategy) Prepare(ctx context.Context, req spec.Request) (engine.Execution, error) {
	argv, err := command(req.Options.DriverPath)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.NewManager(req.Options.WorkspaceRoot).Create(ctx)
	if err != nil {
		return nil, err
	}

	exec, err := setUp(ws, argv, req)
	if err != nil {
		if cerr := ws.Cleanup(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn(ctx, "cleanup after failed setup", zap.Error(cerr))
		}
		return nil, err
	}
	return exec, nil
}

func setUp(ws *workspace.Workspace, argv []string, req spec.Request) (*execution, error) {
	resultsPath, err := ws.Track(ResultsFile)
	if err != nil {
		return nil, err
	}
	config, err := renderConfig(ws, resultsPath, req.Options)
	if err != nil {
		return nil, err
	}
	err = ws.Materialize(map[string]string{
		SpecsFile:    req.Tests,
		ArtifactFile: req.Solution,
		ConfigFile:   config,
	})
	if err != nil {
		return nil, err
	}
	return newExecution(ws, argv, ws.Path(ConfigFile), resultsPath, req.Options), nil
}

func renderConfig(ws *workspace.Workspace, resultsPath string, opts spec.ExecutionOptions) (string, error) {
	baseURL, err := opts.PublicURL(ws.Path(ArtifactFile))
	if err != nil {
		return "", errors.Wrapf(err, errors.SetupFailed, "rewrite artifact path")
	}
	cfg := runConfig{
		SeleniumAddress:      opts.SeleniumAddress,
		Specs:                []string{ws.Path(SpecsFile)},
		BaseURL:              baseURL,
		Framework:            framework,
		ResultJSONOutputFile: resultsPath,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cfg); err != nil {
		return "", errors.Wrapf(err, errors.SetupFailed, "encode driver config")
	}
	return "exports.config = " + string(bytes.TrimSpace(buf.Bytes())) + ";\n", nil
}
