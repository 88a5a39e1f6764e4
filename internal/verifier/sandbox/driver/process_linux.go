//go:build linux

package driver

import (
	"os"
	"syscall"

	"codeverifier/internal/verifier/sandbox/spec"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the driver in its own process group so the whole tree can
// be signaled, and drops it to RunAsUID when one is configured.
func sysProcAttr(opts spec.ExecutionOptions) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if opts.RunAsUID > 0 {
		gid := opts.RunAsGID
		if gid <= 0 {
			gid = unix.Getgid()
		}
		attr.Credential = &syscall.Credential{
			Uid:         uint32(opts.RunAsUID),
			Gid:         uint32(gid),
			NoSetGroups: true,
		}
	}
	return attr
}

// terminate signals the driver's process group.
func terminate(p *os.Process, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(-p.Pid, sig); err != nil {
		if err == unix.ESRCH {
			return os.ErrProcessDone
		}
		return p.Signal(sig)
	}
	return nil
}
