//go:build windows

package shiny

import (
	"errors"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// processGroup holds the job object containing the runtime and everything
// it spawns (Rscript.exe starts R.exe).
type processGroup struct {
	job windows.Handle
}

// sysProcAttr keeps the runtime from flashing a console window.
func sysProcAttr(hideConsole bool) *syscall.SysProcAttr {
	if !hideConsole {
		return nil
	}
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

// attachGroup puts the runtime into a kill-on-close job. Without a job
// only the direct child can be killed.
func (p *Process) attachGroup() {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return
	}

	proc, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(p.PID()))
	if err != nil {
		windows.CloseHandle(job)
		return
	}
	defer windows.CloseHandle(proc)

	if err := windows.AssignProcessToJobObject(job, proc); err != nil {
		windows.CloseHandle(job)
		return
	}

	p.mu.Lock()
	p.group.job = job
	p.mu.Unlock()
}

// releaseGroup closes the job, which kills anything the runtime left
// behind.
func (p *Process) releaseGroup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.group.job != 0 {
		windows.CloseHandle(p.group.job)
		p.group.job = 0
	}
}

// killGroup terminates the job, or the direct child when there is none.
func (p *Process) killGroup() error {
	p.mu.RLock()
	job := p.group.job
	if job != 0 {
		err := windows.TerminateJobObject(job, 1)
		p.mu.RUnlock()
		return err
	}
	p.mu.RUnlock()

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
