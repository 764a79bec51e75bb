//go:build windows

package opencode

import (
	"os"
	"syscall"
)

func sessionAttr() *syscall.SysProcAttr {
	return nil
}

func terminate(p *os.Process) error {
	return p.Kill()
}
