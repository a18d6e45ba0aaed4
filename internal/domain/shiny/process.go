package shiny

import (
	"errors"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Process is the handle of a spawned runtime.
//
// Stdout and Stderr are consumed exactly once by the output drains. The
// process is reaped only after both drains hit end-of-input, so no output is
// lost to an early pipe close.
type Process struct {
	// Port is the port the runtime was told to bind.
	Port int

	// Stdout and Stderr are the read ends of the runtime's output pipes.
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	// Started is the spawn time.
	Started time.Time

	cmd  *exec.Cmd
	done chan struct{}

	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error
	group   processGroup

	reapOnce sync.Once
}

func newProcess(cmd *exec.Cmd, port int, stdout, stderr io.ReadCloser) *Process {
	p := &Process{
		Port:    port,
		Stdout:  stdout,
		Stderr:  stderr,
		Started: time.Now(),
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	p.exitCode.Store(-1)
	return p
}

// PID returns the OS process id, or -1 when the process never started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code, or -1 while running or when killed.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns the error reported by wait, if any.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Kill terminates the process and every process it started. Killing a
// process that already exited is not an error.
func (p *Process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.killGroup()
}

// Uptime returns how long the process has been running.
func (p *Process) Uptime() time.Duration {
	return time.Since(p.Started)
}

// reap waits for the process and records its exit status. It must only be
// called after both output pipes have been read to EOF.
func (p *Process) reap() {
	p.reapOnce.Do(func() {
		err := p.cmd.Wait()

		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		p.releaseGroup()
		p.exitCode.Store(int32(code))
		close(p.done)
	})
}
