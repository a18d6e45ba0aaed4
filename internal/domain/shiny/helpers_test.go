package shiny

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder collects events in arrival order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) topic(topic string) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

// statusWithPrefix returns status payloads starting with prefix.
func (r *recorder) statusWithPrefix(prefix string) []string {
	var out []string
	for _, ev := range r.topic(TopicStatus) {
		if msg, ok := ev.Payload.(string); ok && strings.HasPrefix(msg, prefix) {
			out = append(out, msg)
		}
	}
	return out
}

// stubProber never sees a server unless ok is set.
type stubProber struct {
	mu    sync.Mutex
	ok    bool
	calls int
}

func (p *stubProber) Probe(context.Context, int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.ok
}

func (p *stubProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

const (
	// scriptReady loads three packages and announces itself on stderr.
	scriptReady = `echo "R version 4.3.1"
echo "Loading required package: shiny" >&2
echo "Attaching package: 'dplyr'" >&2
echo "Loading required package: ggplot2" >&2
echo "Listening on http://0.0.0.0:$RE_SHINY_PORT" >&2
exec sleep 30
`
	// scriptReadyStdout announces itself on stdout after three attached
	// packages on stderr.
	scriptReadyStdout = `echo "Attaching package: 'shiny'" >&2
echo "Attaching package: 'dplyr'" >&2
echo "Attaching package: 'ggplot2'" >&2
sleep 0.2
echo "Listening on http://0.0.0.0:$RE_SHINY_PORT"
exec sleep 30
`
	// scriptSilent never prints the ready marker.
	scriptSilent = `exec sleep 30
`
	// scriptCrash exits before becoming ready.
	scriptCrash = `echo "Error in library(shiny): there is no package called 'shiny'" >&2
exit 1
`
	// scriptReadyThenExit becomes ready and dies shortly after.
	scriptReadyThenExit = `echo "Listening on http://0.0.0.0:$RE_SHINY_PORT" >&2
sleep 0.3
exit 3
`
)

// fakeRuntime writes an executable shell script standing in for Rscript.
func fakeRuntime(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake runtime is a shell script")
	}

	path := filepath.Join(t.TempDir(), "Rscript")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func launchConfig(rscript string) LaunchConfig {
	return LaunchConfig{
		RscriptPath: rscript,
		RHome:       "/opt/R",
		StartScript: "start-shiny.R",
		LibPath:     "/opt/R/library",
		AppPath:     "/srv/app",
	}
}

// testConfig uses short timings so failures surface quickly.
func testConfig(rscript string) Config {
	cfg := DefaultConfig()
	cfg.Launch = launchConfig(rscript)
	cfg.MaxRetries = 2
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.ReadyTimeout = 2 * time.Second
	cfg.PollInterval = 50 * time.Millisecond
	cfg.WatchInterval = 0
	return cfg
}

// newTestSupervisor builds a supervisor with a recording notifier, a stub
// prober and a sleep that only records its delays.
func newTestSupervisor(t *testing.T, cfg Config, opts ...Option) (*Supervisor, *recorder, *[]time.Duration) {
	t.Helper()

	rec := &recorder{}
	opts = append([]Option{WithNotifier(rec), WithProber(&stubProber{})}, opts...)

	sup, err := New(cfg, opts...)
	require.NoError(t, err)

	var mu sync.Mutex
	delays := &[]time.Duration{}
	sup.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*delays = append(*delays, d)
		mu.Unlock()
		return ctx.Err()
	}

	t.Cleanup(func() {
		sup.stopWatch()
		if p := sup.Registry().Take(); p != nil {
			p.Kill()
		}
	})

	return sup, rec, delays
}
