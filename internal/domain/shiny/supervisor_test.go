package shiny

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsMissingPaths(t *testing.T) {
	cfg := DefaultConfig()
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Launch = launchConfig("/usr/bin/Rscript")
	cfg.Ports = PortRange{Start: 5000, End: 4000}
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// freePort returns a port nothing is listening on.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestStartSuccess(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(fakeRuntime(t, scriptReady))
	cfg.Ports = PortRange{Start: port, End: port + 10}
	sup, rec, delays := newTestSupervisor(t, cfg)

	url, err := sup.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(port), url)

	started := rec.topic(TopicStarted)
	require.Len(t, started, 1)
	assert.Equal(t, url, started[0].Payload)
	assert.NotEmpty(t, started[0].RunID)
	assert.Empty(t, rec.topic(TopicError))
	assert.Empty(t, *delays)

	st := sup.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, url, st.URL)
	assert.Equal(t, port, st.Port)
	assert.Equal(t, 1, st.Attempt)

	proc := sup.Registry().Current()
	require.NotNil(t, proc)
	assert.Equal(t, port, proc.Port)
	assert.Equal(t, st.PID, proc.PID())
}

func TestStartReportsPackageLoadingBeforeStarted(t *testing.T) {
	sup, rec, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReady)))

	_, err := sup.Start(context.Background())
	require.NoError(t, err)

	var seq []string
	for _, ev := range rec.all() {
		switch ev.Topic {
		case TopicStatus:
			if msg := ev.Payload.(string); strings.HasPrefix(msg, "Loading packages") {
				seq = append(seq, msg)
			}
		case TopicStarted:
			seq = append(seq, "started")
		}
	}

	assert.Equal(t, []string{
		"Loading packages (1 loaded)",
		"Loading packages (2 loaded)",
		"Loading packages (3 loaded)",
		"started",
	}, seq)
}

func TestStartReadyOnStdout(t *testing.T) {
	sup, rec, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReadyStdout)))

	began := time.Now()
	url, err := sup.Start(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(began), 2*time.Second)

	started := rec.topic(TopicStarted)
	require.Len(t, started, 1)
	assert.Equal(t, url, started[0].Payload)
	assert.Equal(t, []string{
		"Loading packages (1 loaded)",
		"Loading packages (2 loaded)",
		"Loading packages (3 loaded)",
	}, rec.statusWithPrefix("Loading packages"))
}

func TestStartStageSequence(t *testing.T) {
	sup, rec, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReady)))

	_, err := sup.Start(context.Background())
	require.NoError(t, err)

	var statuses []Event
	for _, ev := range rec.topic(TopicStatus) {
		if !strings.HasPrefix(ev.Payload.(string), "Loading packages") {
			statuses = append(statuses, ev)
		}
	}
	require.GreaterOrEqual(t, len(statuses), 3)
	assert.Equal(t, "Attempting to start (try 1/2)", statuses[0].Payload)
	assert.True(t, strings.HasPrefix(statuses[1].Payload.(string), "Launching on port "))
	assert.Equal(t, "Waiting for packages to load (try 1/2)...", statuses[2].Payload)
}

func TestStartExhaustsRetries(t *testing.T) {
	cfg := testConfig(fakeRuntime(t, scriptCrash))
	cfg.MaxRetries = 4
	cfg.InitialBackoff = time.Second
	sup, rec, delays := newTestSupervisor(t, cfg)

	url, err := sup.Start(context.Background())
	assert.Empty(t, url)

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, 4, startErr.Attempts)
	assert.ErrorIs(t, err, ErrProcessExited)

	assert.Len(t, rec.statusWithPrefix("Attempting to start"), 4)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *delays)

	errs := rec.topic(TopicError)
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0].Payload.(string), "Failed to launch Shiny app: "))
	assert.Empty(t, rec.topic(TopicStarted))

	assert.Nil(t, sup.Registry().Current())
	assert.Equal(t, StateError, sup.Status().State)
	assert.Equal(t, StageFailed.String(), sup.Status().Stage)
}

func TestStartReadinessTimeoutKillsAttempt(t *testing.T) {
	cfg := testConfig(fakeRuntime(t, scriptSilent))
	cfg.ReadyTimeout = 200 * time.Millisecond
	sup, rec, delays := newTestSupervisor(t, cfg)

	_, err := sup.Start(context.Background())
	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.Len(t, *delays, 1)
	assert.Len(t, rec.statusWithPrefix("Attempt 1/2 failed"), 1)

	// No process from a failed attempt is left behind.
	assert.Nil(t, sup.Registry().Current())
}

func TestStartRetriesSpawnError(t *testing.T) {
	sup, rec, delays := newTestSupervisor(t, testConfig("/nonexistent/Rscript"))

	_, err := sup.Start(context.Background())

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Len(t, rec.statusWithPrefix("Attempting to start"), 2)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, *delays)
	assert.Len(t, rec.topic(TopicError), 1)
}

func TestStartPortExhausted(t *testing.T) {
	busy := occupied(t)
	cfg := testConfig(fakeRuntime(t, scriptReady))
	cfg.Ports = PortRange{Start: busy, End: busy + 1}
	sup, rec, _ := newTestSupervisor(t, cfg)

	_, err := sup.Start(context.Background())
	assert.ErrorIs(t, err, ErrPortExhausted)
	assert.Empty(t, rec.statusWithPrefix("Launching on port"))
}

func TestStartContextCancelledStopsRetrying(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptSilent)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := sup.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, 1, startErr.Attempts)
	assert.Nil(t, sup.Registry().Current())
}

func TestStartReplacesPreviousRuntime(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReady)))

	_, err := sup.Start(context.Background())
	require.NoError(t, err)
	first := sup.Registry().Current()
	require.NotNil(t, first)

	_, err = sup.Start(context.Background())
	require.NoError(t, err)
	second := sup.Registry().Current()

	assert.NotSame(t, first, second)
	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("previous runtime was not killed")
	}
}

func TestStop(t *testing.T) {
	sup, rec, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReady)))

	_, err := sup.Start(context.Background())
	require.NoError(t, err)
	proc := sup.Registry().Current()

	require.NoError(t, sup.Stop())
	assert.Nil(t, sup.Registry().Current())
	assert.Equal(t, StateStopped, sup.Status().State)
	assert.Len(t, rec.topic(TopicStopped), 1)

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runtime still alive after Stop")
	}

	err = sup.Stop()
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Len(t, rec.topic(TopicStopped), 1)
	assert.Empty(t, rec.topic(TopicLost))
}

func TestStopWithoutStart(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReady)))

	assert.ErrorIs(t, sup.Stop(), ErrNotRunning)
	assert.Equal(t, StateIdle, sup.Status().State)
}

func TestStopAbortsStart(t *testing.T) {
	cfg := testConfig(fakeRuntime(t, scriptSilent))
	cfg.ReadyTimeout = 10 * time.Second
	sup, rec, delays := newTestSupervisor(t, cfg)

	errc := make(chan error, 1)
	go func() {
		_, err := sup.Start(context.Background())
		errc <- err
	}()

	require.Eventually(t, func() bool {
		return sup.Registry().Current() != nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, sup.Stop())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStartAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	assert.Empty(t, *delays)
	assert.Empty(t, rec.topic(TopicError))
	assert.Empty(t, rec.topic(TopicStarted))
	assert.Equal(t, StateStopped, sup.Status().State)
}

func TestCloseAbortsStartDuringBackoff(t *testing.T) {
	cfg := testConfig(fakeRuntime(t, scriptCrash))
	cfg.MaxRetries = 3
	cfg.InitialBackoff = 30 * time.Second
	sup, rec, _ := newTestSupervisor(t, cfg)
	sup.sleep = sleepCtx

	errc := make(chan error, 1)
	go func() {
		_, err := sup.Start(context.Background())
		errc <- err
	}()

	require.Eventually(t, func() bool {
		return len(rec.statusWithPrefix("Attempt 1/3 failed")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	began := time.Now()
	require.NoError(t, sup.Close())
	assert.Less(t, time.Since(began), 5*time.Second)

	select {
	case err := <-errc:
		var startErr *StartError
		require.ErrorAs(t, err, &startErr)
		assert.Equal(t, 1, startErr.Attempts)
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Close")
	}

	assert.Nil(t, sup.Registry().Current())
	assert.Empty(t, rec.topic(TopicError))
	assert.Equal(t, StateStopped, sup.Status().State)
}

func TestCloseStopsRuntime(t *testing.T) {
	sup, rec, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReady)))

	_, err := sup.Start(context.Background())
	require.NoError(t, err)
	proc := sup.Registry().Current()
	require.NotNil(t, proc)

	require.NoError(t, sup.Close())

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runtime outlived Close")
	}
	assert.Len(t, rec.topic(TopicStopped), 1)
	assert.Equal(t, StateStopped, sup.Status().State)

	_, err = sup.Start(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, sup.Close())
}

func TestStopRacingStartOrdersEvents(t *testing.T) {
	for i := 0; i < 5; i++ {
		sup, rec, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReady)))

		done := make(chan struct{})
		go func() {
			defer close(done)
			sup.Start(context.Background())
		}()

	loop:
		for {
			select {
			case <-done:
				break loop
			default:
				if sup.Stop() == nil {
					break loop
				}
				time.Sleep(time.Millisecond)
			}
		}
		<-done

		var started, stopped int = -1, -1
		for i, ev := range rec.all() {
			switch ev.Topic {
			case TopicStarted:
				started = i
			case TopicStopped:
				stopped = i
			}
		}
		if started >= 0 && stopped >= 0 {
			assert.Less(t, started, stopped, "started must precede stopped")
		}
		if stopped >= 0 {
			assert.Equal(t, StateStopped, sup.Status().State)
			assert.Nil(t, sup.Registry().Current())
		}
	}
}

func TestLostOnProcessExit(t *testing.T) {
	sup, rec, _ := newTestSupervisor(t, testConfig(fakeRuntime(t, scriptReadyThenExit)))

	_, err := sup.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.topic(TopicLost)) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "Shiny process exited (code 3)", rec.topic(TopicLost)[0].Payload)
	assert.Nil(t, sup.Registry().Current())
	assert.Equal(t, StateError, sup.Status().State)
	assert.ErrorIs(t, sup.Stop(), ErrNotRunning)
}

func TestLostAfterMissedPings(t *testing.T) {
	cfg := testConfig(fakeRuntime(t, scriptReady))
	cfg.WatchInterval = 30 * time.Millisecond
	cfg.WatchTimeout = 100 * time.Millisecond
	cfg.WatchMaxMissed = 2
	sup, rec, _ := newTestSupervisor(t, cfg)

	// The fake prints the ready marker but never serves HTTP.
	_, err := sup.Start(context.Background())
	require.NoError(t, err)
	proc := sup.Registry().Current()

	require.Eventually(t, func() bool {
		return len(rec.topic(TopicLost)) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "Shiny app stopped responding after 2 missed pings", rec.topic(TopicLost)[0].Payload)
	assert.Nil(t, sup.Registry().Current())

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("unresponsive runtime was not killed")
	}
}

func TestWatchPingAnswered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sup, _, _ := newTestSupervisor(t, testConfig("/bin/true"))

	// Any HTTP answer counts, even an error status.
	assert.NoError(t, sup.ping(context.Background(), srv.URL))
}

func TestWatchPingRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	sup, _, _ := newTestSupervisor(t, testConfig("/bin/true"))
	assert.Error(t, sup.ping(context.Background(), "http://"+addr))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "port_exhausted", outcome(fmt.Errorf("%w: x", ErrPortExhausted)))
	assert.Equal(t, "spawn_error", outcome(&SpawnError{Err: errors.New("x")}))
	assert.Equal(t, "timeout", outcome(ErrReadinessTimeout))
	assert.Equal(t, "exited", outcome(ErrProcessExited))
	assert.Equal(t, "aborted", outcome(ErrStartAborted))
	assert.Equal(t, "error", outcome(errors.New("x")))
}
