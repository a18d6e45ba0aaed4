//go:build !windows

package shiny

import (
	"errors"
	"syscall"
)

// processGroup is empty here: the runtime leads its own process group,
// whose id is its pid.
type processGroup struct{}

// sysProcAttr starts the runtime in a new process group so its children
// can be killed with it.
func sysProcAttr(hideConsole bool) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func (p *Process) attachGroup() {}

func (p *Process) releaseGroup() {}

// killGroup sends SIGKILL to every process in the runtime's group.
func (p *Process) killGroup() error {
	pid := p.PID()
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
