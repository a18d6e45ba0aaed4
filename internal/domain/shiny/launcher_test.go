package shiny

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLauncherCommand(t *testing.T) {
	cfg := launchConfig("/usr/bin/Rscript")
	cfg.Env = []string{"EXTRA=1"}
	cmd := NewLauncher(cfg).Command(3456)

	assert.Equal(t, []string{"/usr/bin/Rscript", "--vanilla", "start-shiny.R", "--verbose"}, cmd.Args)

	env := strings.Join(cmd.Env, "\n")
	for _, want := range []string{
		"RHOME=/opt/R",
		"R_HOME_DIR=/opt/R",
		"RE_SHINY_PORT=3456",
		"RE_SHINY_PATH=/srv/app",
		"RE_SHINY_HOST=0.0.0.0",
		"R_LIBS=/opt/R/library",
		"R_LIBS_USER=/opt/R/library",
		"R_LIBS_SITE=/opt/R/library",
		"R_LIB_PATHS=/opt/R/library",
		"EXTRA=1",
	} {
		assert.Contains(t, env, want)
	}
}

func TestLaunchConfigValidate(t *testing.T) {
	assert.NoError(t, launchConfig("/usr/bin/Rscript").validate())

	cfg := launchConfig("/usr/bin/Rscript")
	cfg.AppPath = ""
	err := cfg.validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "app path")
}

func TestLaunchSpawnError(t *testing.T) {
	_, err := NewLauncher(launchConfig("/nonexistent/Rscript")).Launch(3000)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "/nonexistent/Rscript", spawnErr.Path)
}

func TestLaunchReportsExitCode(t *testing.T) {
	p := spawn(t, scriptCrash)

	<-p.Done()
	assert.Equal(t, 1, p.ExitCode())
	assert.Error(t, p.ExitError())
	assert.True(t, p.Exited())
	assert.NoError(t, p.Kill(), "killing an exited process is not an error")
}
