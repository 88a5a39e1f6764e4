// Package spec defines the verification request and its execution options.
package spec

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultTimeoutDelay bounds a run when the caller does not set one.
const DefaultTimeoutDelay = 10 * time.Second

// DefaultKillGrace is how long a driver gets to honor SIGTERM before SIGKILL.
const DefaultKillGrace = 2 * time.Second

// ExecutionOptions is read-only per request.
type ExecutionOptions struct {
	// TimeoutDelay is the wall-clock budget for the execution step.
	TimeoutDelay time.Duration
	// WorkspaceRoot is the directory under which workspaces are created.
	WorkspaceRoot string

	// DriverPath is the external test driver command line. It may carry arguments.
	DriverPath string
	// RunAsUID and RunAsGID drop the driver to another identity when positive.
	RunAsUID int
	RunAsGID int
	// KillGrace is the delay between SIGTERM and SIGKILL.
	KillGrace time.Duration

	// PublicURLBase replaces the part of a workspace path matched by PathRewriteRule.
	PublicURLBase string
	// PathRewriteRule is a regular expression; it defaults to the workspace root prefix.
	PathRewriteRule string
	// SeleniumAddress is handed to drivers that talk to a remote browser.
	SeleniumAddress string
}

// Request is immutable once submitted. Solution and Tests are opaque source text.
type Request struct {
	Solution string
	Tests    string
	Options  ExecutionOptions
}

// WithDefaults fills the zero-valued options that have a sensible default.
func (o ExecutionOptions) WithDefaults() ExecutionOptions {
	if o.TimeoutDelay <= 0 {
		o.TimeoutDelay = DefaultTimeoutDelay
	}
	if o.KillGrace <= 0 {
		o.KillGrace = DefaultKillGrace
	}
	return o
}

// RewriteRule compiles PathRewriteRule, falling back to a prefix match on the
// workspace root.
func (o ExecutionOptions) RewriteRule() (*regexp.Regexp, error) {
	rule := o.PathRewriteRule
	if rule == "" {
		if o.WorkspaceRoot == "" {
			return nil, fmt.Errorf("workspace root is required to rewrite paths")
		}
		rule = "^" + regexp.QuoteMeta(strings.TrimRight(o.WorkspaceRoot, "/"))
	}
	re, err := regexp.Compile(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid path rewrite rule %q: %w", rule, err)
	}
	return re, nil
}

// PublicURL maps a workspace-local path to the address the driver should use.
// Without a PublicURLBase the path is exposed as a file URL.
func (o ExecutionOptions) PublicURL(localPath string) (string, error) {
	if o.PublicURLBase == "" {
		return "file://" + localPath, nil
	}
	re, err := o.RewriteRule()
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(o.PublicURLBase, "/")
	return re.ReplaceAllLiteralString(localPath, base), nil
}
