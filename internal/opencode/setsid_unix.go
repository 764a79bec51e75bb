//go:build !windows

package opencode

import (
	"os"
	"syscall"
)

// sessionAttr places the server in its own session so it does not share the
// parent's controlling terminal or receive its interrupt signals.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// terminate sends SIGTERM to the whole process group.
func terminate(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}
