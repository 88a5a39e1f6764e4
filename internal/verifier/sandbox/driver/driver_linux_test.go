//go:build linux

package driver_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeverifier/internal/verifier/sandbox"
	"codeverifier/internal/verifier/sandbox/driver"
	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/sandbox/spec"
	"codeverifier/pkg/errors"
)

// writeDriver creates a shell script standing in for the browser driver. It
// runs inside the workspace and receives the config path as $1.
func writeDriver(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driver.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write driver failed: %v", err)
	}
	return path
}

func run(t *testing.T, root, driverPath string, timeout time.Duration) (result.Report, error) {
	t.Helper()
	req := spec.Request{
		Solution: "<html></html>",
		Tests:    "describe()",
		Options: spec.ExecutionOptions{
			TimeoutDelay:  timeout,
			WorkspaceRoot: root,
			DriverPath:    driverPath,
			KillGrace:     200 * time.Millisecond,
		},
	}
	return sandbox.TestSolution(context.Background(), driver.NewStrategy(), req)
}

func assertWorkspaceGone(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read root failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace left behind: %v", entries[0].Name())
	}
}

func TestDriverExitOutcomes(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		wantSolved bool
		wantCount  int
		wantErrors string
	}{
		{
			name:       "clean exit with results",
			body:       `test -f "$1" && echo '[{"test":"renders","correct":true}]' > results.json`,
			wantSolved: true,
			wantCount:  1,
		},
		{
			name:      "failing exit with results",
			body:      `echo '[{"test":"renders","correct":false}]' > results.json; exit 1`,
			wantCount: 1,
		},
		{
			name:       "clean exit without results",
			body:       `exit 0`,
			wantErrors: "results are missing at ",
		},
		{
			name:       "failing exit without results",
			body:       `exit 2`,
			wantErrors: "results are missing at ",
		},
		{
			name:       "malformed results",
			body:       `echo 'not json' > results.json`,
			wantErrors: "failed to parse results: ",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			report, err := run(t, root, writeDriver(t, tc.body), 5*time.Second)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErrors != "" {
				if report.Solved || !strings.HasPrefix(report.Errors, tc.wantErrors) {
					t.Fatalf("expected errors %q, got %+v", tc.wantErrors, report)
				}
			} else {
				if report.Solved != tc.wantSolved || len(report.Results) != tc.wantCount {
					t.Fatalf("unexpected report %+v", report)
				}
			}
			assertWorkspaceGone(t, root)
		})
	}
}

func TestDriverArgumentsAreSplit(t *testing.T) {
	root := t.TempDir()
	script := writeDriver(t, `[ "$1" = "--flag" ] && [ -f "$2" ] && echo '[]' > results.json`)
	report, err := run(t, root, "/bin/sh "+script+" --flag", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Solved || report.Errors != "" {
		t.Fatalf("expected solved report, got %+v", report)
	}
}

func TestDriverTimeout(t *testing.T) {
	root := t.TempDir()
	script := writeDriver(t, `sleep 2; echo '[{"test":"late","correct":true}]' > results.json`)

	start := time.Now()
	report, err := run(t, root, script, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Solved || report.Errors != "timeout" || len(report.Results) != 0 {
		t.Fatalf("expected timeout report, got %+v", report)
	}
	if elapsed := time.Since(start); elapsed > 1500*time.Millisecond {
		t.Fatalf("driver was not killed promptly: %v", elapsed)
	}
	assertWorkspaceGone(t, root)
}

func TestDriverIgnoringSIGTERMIsKilled(t *testing.T) {
	root := t.TempDir()
	script := writeDriver(t, `trap '' TERM; sleep 5`)

	start := time.Now()
	report, err := run(t, root, script, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Errors != "timeout" {
		t.Fatalf("expected timeout report, got %+v", report)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("driver survived SIGKILL escalation: %v", elapsed)
	}
	assertWorkspaceGone(t, root)
}

func TestDriverSpawnError(t *testing.T) {
	root := t.TempDir()
	_, err := run(t, root, filepath.Join(t.TempDir(), "missing-driver"), time.Second)
	if !errors.Is(err, errors.DriverSpawnFailed) {
		t.Fatalf("expected DriverSpawnFailed, got %v", err)
	}
	assertWorkspaceGone(t, root)
}
