package shiny

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shinyhost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/shinyhost/internal/shared/id"
)

const (
	// DefaultMaxRetries is the number of start attempts.
	DefaultMaxRetries = 4
	// DefaultWatchInterval is the liveness ping period once running.
	DefaultWatchInterval = 3 * time.Second
	// DefaultWatchTimeout bounds a single liveness ping.
	DefaultWatchTimeout = 2 * time.Second
	// DefaultWatchMaxMissed is the number of consecutive missed pings
	// after which the runtime is declared lost.
	DefaultWatchMaxMissed = 3
)

// Config controls the supervisor.
type Config struct {
	Launch LaunchConfig

	// BaseURL is the address the port scan binds against, e.g. "http://127.0.0.1".
	BaseURL string
	Ports   PortRange

	MaxRetries     int
	InitialBackoff time.Duration
	ReadyTimeout   time.Duration
	PollInterval   time.Duration
	ProbeTimeout   time.Duration

	// WatchInterval of zero disables liveness pings. Process exit is
	// observed either way.
	WatchInterval  time.Duration
	WatchTimeout   time.Duration
	WatchMaxMissed int
}

// DefaultConfig returns the reference timings. Launch paths are left empty.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://" + loopbackHost,
		Ports:          DefaultPortRange(),
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		ReadyTimeout:   DefaultReadyTimeout,
		PollInterval:   DefaultPollInterval,
		ProbeTimeout:   DefaultProbeTimeout,
		WatchInterval:  DefaultWatchInterval,
		WatchTimeout:   DefaultWatchTimeout,
		WatchMaxMissed: DefaultWatchMaxMissed,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Ports == (PortRange{}) {
		c.Ports = d.Ports
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.WatchTimeout <= 0 {
		c.WatchTimeout = d.WatchTimeout
	}
	if c.WatchMaxMissed <= 0 {
		c.WatchMaxMissed = d.WatchMaxMissed
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithNotifier sets the event observer.
func WithNotifier(n Notifier) Option {
	return func(s *Supervisor) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Supervisor) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithProber replaces the readiness probe.
func WithProber(p Prober) Option {
	return func(s *Supervisor) {
		s.prober = p
	}
}

// WithClassifier replaces the output markers.
func WithClassifier(c Classifier) Option {
	return func(s *Supervisor) {
		s.classifier = c
	}
}

// Supervisor starts, watches and stops the runtime. Construct one per
// application and share it; it owns the process registry.
type Supervisor struct {
	cfg        Config
	bindHost   string
	launcher   *Launcher
	monitor    *Monitor
	prober     Prober
	pinger     *retryablehttp.Client
	registry   *Registry
	classifier Classifier

	notifier Notifier
	logger   *zap.Logger
	metrics  MetricsRecorder

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	// startMu serializes Start. Stop never takes it.
	startMu sync.Mutex

	// mu guards status and orders status changes against registry moves.
	mu     sync.Mutex
	status Status

	watchMu sync.Mutex
	watch   *watcher

	// base is cancelled by Close and bounds every Start.
	base     context.Context
	shutdown context.CancelFunc
}

// run carries the identity of one Start call.
type run struct {
	id      string
	attempt int
}

// New creates a supervisor. Missing launch settings yield ErrInvalidConfig.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.Launch.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if !cfg.Ports.Valid() {
		return nil, fmt.Errorf("%w: port range %s", ErrInvalidConfig, cfg.Ports)
	}

	pinger := retryablehttp.NewClient()
	pinger.RetryMax = 1
	pinger.RetryWaitMin = 100 * time.Millisecond
	pinger.RetryWaitMax = 500 * time.Millisecond
	pinger.HTTPClient.Timeout = cfg.WatchTimeout
	pinger.Logger = nil
	// Only transport errors are retried; any HTTP answer means alive.
	pinger.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	s := &Supervisor{
		cfg:        cfg,
		bindHost:   BindHost(cfg.BaseURL),
		launcher:   NewLauncher(cfg.Launch),
		pinger:     pinger,
		registry:   NewRegistry(),
		classifier: DefaultClassifier(),
		notifier:   nopNotifier{},
		logger:     zap.NewNop(),
		metrics:    nopRecorder{},
		sleep:      sleepCtx,
		status:     Status{State: StateIdle, UpdatedAt: time.Now()},
	}

	s.base, s.shutdown = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(s)
	}

	if s.prober == nil {
		s.prober = NewHTTPProber(loopbackHost, cfg.ProbeTimeout)
	}
	s.monitor = NewMonitor(s.prober, cfg.ReadyTimeout, cfg.PollInterval)

	return s, nil
}

// Registry exposes the process slot.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Status returns a snapshot of the current state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start launches the runtime and blocks until it is ready or every attempt
// has failed. It returns the service URL, e.g. "http://127.0.0.1:3000".
//
// A runtime left over from an earlier Start is killed first. Concurrent
// calls are serialized. Stop aborts an in-flight Start by killing its
// process; Close aborts it through its context.
func (s *Supervisor) Start(ctx context.Context) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAfter := context.AfterFunc(s.base, cancel)
	defer stopAfter()

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.base.Err() != nil {
		return "", &StartError{Err: ErrClosed}
	}

	r := &run{id: id.NewRunID().String()}
	began := time.Now()

	s.logger.Info("Starting shiny app",
		zap.String("run_id", r.id),
		zap.String("request_id", tracing.RequestID(ctx).String()),
		zap.String("bind_host", s.bindHost),
		zap.Stringer("ports", s.cfg.Ports),
		zap.Int("max_retries", s.cfg.MaxRetries),
	)
	s.setStatus(Status{State: StateStarting, RunID: r.id})

	s.replacePrevious()

	backoff := NewBackoff(s.cfg.InitialBackoff)
	var lastErr error

	for r.attempt < s.cfg.MaxRetries {
		r.attempt++

		url, proc, err := s.attempt(ctx, r)
		if err == nil {
			s.metrics.AttemptFinished("success")
			s.metrics.StartFinished(true, time.Since(began))
			s.logger.Info("Shiny app ready",
				zap.String("run_id", r.id),
				zap.String("url", url),
				zap.Int("pid", proc.PID()),
				zap.Int("attempt", r.attempt),
				zap.Duration("elapsed", time.Since(began)),
			)
			s.startWatch(r, proc, url)
			return url, nil
		}

		lastErr = err
		s.metrics.AttemptFinished(outcome(err))

		if errors.Is(err, ErrStartAborted) || ctx.Err() != nil {
			break
		}

		if r.attempt >= s.cfg.MaxRetries {
			s.logger.Warn("Shiny attempt failed",
				zap.String("run_id", r.id),
				zap.Int("attempt", r.attempt),
				zap.Error(err),
			)
			break
		}

		delay := backoff.Next()
		s.logger.Warn("Shiny attempt failed, retrying",
			zap.String("run_id", r.id),
			zap.Int("attempt", r.attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		s.stage(r, StageAttemptFailed, fmt.Sprintf("Attempt %d/%d failed: %v. Retrying in %s",
			r.attempt, s.cfg.MaxRetries, err, delay))

		if err := s.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	s.metrics.StartFinished(false, time.Since(began))
	if s.base.Err() != nil {
		lastErr = ErrClosed
	}
	startErr := &StartError{Attempts: r.attempt, Err: lastErr}

	if errors.Is(lastErr, ErrStartAborted) || errors.Is(lastErr, ErrClosed) {
		s.logger.Info("Shiny start aborted", zap.String("run_id", r.id))
		return "", startErr
	}

	s.setStatus(Status{
		State:   StateError,
		Stage:   StageFailed.String(),
		Attempt: r.attempt,
		RunID:   r.id,
		Error:   startErr.Error(),
	})
	s.logger.Error("Failed to launch shiny app",
		zap.String("run_id", r.id),
		zap.Int("attempts", r.attempt),
		zap.Error(lastErr),
	)
	s.emit(r, TopicError, "Failed to launch Shiny app: "+lastErr.Error())

	return "", startErr
}

// attempt runs one cycle of port scan, spawn and readiness wait. On failure
// the attempt's process is killed before returning.
func (s *Supervisor) attempt(ctx context.Context, r *run) (string, *Process, error) {
	s.stage(r, StageAllocatingPort, fmt.Sprintf("Attempting to start (try %d/%d)", r.attempt, s.cfg.MaxRetries))

	port, err := FindPort(s.bindHost, s.cfg.Ports)
	if err != nil {
		return "", nil, err
	}

	s.stage(r, StageSpawning, fmt.Sprintf("Launching on port %d (try %d/%d)", port, r.attempt, s.cfg.MaxRetries))

	proc, err := s.launcher.Launch(port)
	if err != nil {
		return "", nil, err
	}

	ready := make(chan bool, 1)
	s.startDrains(r, proc, ready)

	if err := s.registry.Register(proc); err != nil {
		proc.Kill()
		return "", nil, err
	}

	s.logger.Debug("Shiny process spawned",
		zap.String("run_id", r.id),
		zap.Int("pid", proc.PID()),
		zap.Int("port", port),
	)

	s.mu.Lock()
	s.status.PID = proc.PID()
	s.status.Port = port
	s.mu.Unlock()

	s.stage(r, StageAwaitingReadiness, fmt.Sprintf("Waiting for packages to load (try %d/%d)...", r.attempt, s.cfg.MaxRetries))

	waitErr := s.monitor.Wait(ctx, ready, proc.Done(), port)

	url := fmt.Sprintf("http://%s", net.JoinHostPort(loopbackHost, strconv.Itoa(port)))
	if waitErr == nil && s.commitRunning(r, proc, url) {
		return url, proc, nil
	}

	// Stop already took the process out of the slot.
	if !s.registry.TakeIf(proc) {
		return "", nil, ErrStartAborted
	}
	proc.Kill()
	return "", nil, waitErr
}

// commitRunning records the running state and announces it if proc is
// still registered. Holding mu orders started before any stopped.
func (s *Supervisor) commitRunning(r *run, proc *Process, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.Holds(proc) {
		return false
	}
	s.status = Status{
		State:     StateRunning,
		Stage:     StageSucceeded.String(),
		URL:       url,
		PID:       proc.PID(),
		Port:      proc.Port,
		Attempt:   r.attempt,
		RunID:     r.id,
		UpdatedAt: time.Now(),
	}
	s.metrics.SetRunning(true)
	s.emit(r, TopicStarted, url)
	return true
}

// replacePrevious kills a runtime registered by an earlier Start.
func (s *Supervisor) replacePrevious() {
	s.stopWatch()

	prev := s.registry.Take()
	if prev == nil {
		return
	}

	s.logger.Info("Replacing running shiny process", zap.Int("pid", prev.PID()))
	if err := prev.Kill(); err != nil {
		s.logger.Warn("Failed to kill previous shiny process",
			zap.Int("pid", prev.PID()),
			zap.Error(err),
		)
	}
	s.metrics.SetRunning(false)
}

// Stop kills the registered runtime. It returns ErrNotRunning when nothing
// is registered and *StopError when the kill fails.
func (s *Supervisor) Stop() error {
	s.stopWatch()

	s.mu.Lock()
	proc, err := s.registry.Stop()
	if err != nil {
		if !errors.Is(err, ErrNotRunning) {
			s.status = Status{State: StateError, Error: err.Error(), UpdatedAt: time.Now()}
		}
		s.mu.Unlock()
		return err
	}
	s.status = Status{State: StateStopped, UpdatedAt: time.Now()}
	s.mu.Unlock()

	s.metrics.SetRunning(false)
	s.logger.Info("Stopped shiny app", zap.Int("pid", proc.PID()))
	s.emit(nil, TopicStopped, "")
	return nil
}

// Close aborts a Start in progress, waits for it to return and kills the
// runtime. Later calls to Start fail with ErrClosed.
func (s *Supervisor) Close() error {
	s.shutdown()

	s.startMu.Lock()
	defer s.startMu.Unlock()

	err := s.Stop()
	if errors.Is(err, ErrNotRunning) {
		s.setStatus(Status{State: StateStopped})
		return nil
	}
	return err
}

func (s *Supervisor) setStatus(st Status) {
	st.UpdatedAt = time.Now()
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// stage records the current step and reports it to the observer.
func (s *Supervisor) stage(r *run, stage Stage, msg string) {
	s.mu.Lock()
	s.status.Stage = stage.String()
	s.status.Attempt = r.attempt
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.emit(r, TopicStatus, msg)
}

func (s *Supervisor) emit(r *run, topic string, payload interface{}) {
	ev := Event{Topic: topic, Payload: payload, Time: time.Now()}
	if r != nil {
		ev.RunID = r.id
	}
	s.notifier.Notify(ev)
}

// outcome labels a failed attempt for metrics.
func outcome(err error) string {
	var spawnErr *SpawnError
	switch {
	case errors.Is(err, ErrPortExhausted):
		return "port_exhausted"
	case errors.As(err, &spawnErr):
		return "spawn_error"
	case errors.Is(err, ErrReadinessTimeout):
		return "timeout"
	case errors.Is(err, ErrProcessExited):
		return "exited"
	case errors.Is(err, ErrStartAborted):
		return "aborted"
	default:
		return "error"
	}
}
