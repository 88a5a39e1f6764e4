//go:build !linux

package driver

import (
	"os"
	"syscall"

	"codeverifier/internal/verifier/sandbox/spec"
)

func sysProcAttr(opts spec.ExecutionOptions) *syscall.SysProcAttr {
	return nil
}

// terminate has no process groups or graceful signal to rely on here.
func terminate(p *os.Process, force bool) error {
	return p.Kill()
}
