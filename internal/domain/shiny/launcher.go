package shiny

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// LaunchConfig describes how to start the runtime.
type LaunchConfig struct {
	// RscriptPath is the runtime executable.
	RscriptPath string
	// RHome is the runtime home directory.
	RHome string
	// StartScript is the script that boots the Shiny app.
	StartScript string
	// LibPath is the package library search path.
	LibPath string
	// AppPath is the Shiny application directory.
	AppPath string
	// ListenHost is handed to the runtime as its bind address.
	ListenHost string
	// HideConsole suppresses the console window on platforms that open one.
	HideConsole bool
	// Env holds extra KEY=VALUE pairs appended after the runtime variables.
	Env []string
}

func (c LaunchConfig) validate() error {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, name)
	}
	switch {
	case c.RscriptPath == "":
		return missing("rscript path")
	case c.RHome == "":
		return missing("R home")
	case c.StartScript == "":
		return missing("start script")
	case c.LibPath == "":
		return missing("library path")
	case c.AppPath == "":
		return missing("app path")
	}
	return nil
}

// Launcher spawns the runtime with piped output.
type Launcher struct {
	cfg LaunchConfig
}

// NewLauncher creates a launcher. An empty ListenHost binds all interfaces.
func NewLauncher(cfg LaunchConfig) *Launcher {
	if cfg.ListenHost == "" {
		cfg.ListenHost = "0.0.0.0"
	}
	return &Launcher{cfg: cfg}
}

// Command builds the runtime command for port without starting it.
func (l *Launcher) Command(port int) *exec.Cmd {
	cmd := exec.Command(l.cfg.RscriptPath, "--vanilla", l.cfg.StartScript, "--verbose")
	cmd.Env = append(os.Environ(), l.environment(port)...)
	cmd.SysProcAttr = sysProcAttr(l.cfg.HideConsole)
	return cmd
}

func (l *Launcher) environment(port int) []string {
	lib := l.cfg.LibPath
	env := []string{
		"RHOME=" + l.cfg.RHome,
		"R_HOME_DIR=" + l.cfg.RHome,
		"RE_SHINY_PORT=" + strconv.Itoa(port),
		"RE_SHINY_PATH=" + l.cfg.AppPath,
		"RE_SHINY_HOST=" + l.cfg.ListenHost,
		"R_LIBS=" + lib,
		"R_LIBS_USER=" + lib,
		"R_LIBS_SITE=" + lib,
		"R_LIB_PATHS=" + lib,
	}
	return append(env, l.cfg.Env...)
}

// Launch starts the runtime bound to port.
//
// The returned process owns both output pipes. The caller must start
// draining them right away; a full pipe buffer blocks the runtime.
func (l *Launcher) Launch(port int) (*Process, error) {
	cmd := l.Command(port)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Path: l.cfg.RscriptPath, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, &SpawnError{Path: l.cfg.RscriptPath, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, &SpawnError{Path: l.cfg.RscriptPath, Err: err}
	}

	p := newProcess(cmd, port, stdout, stderr)
	p.attachGroup()
	return p, nil
}
