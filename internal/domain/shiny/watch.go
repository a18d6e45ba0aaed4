package shiny

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shinyhost/internal/infrastructure/resilience"
)

// watcher follows a running runtime until it exits, stops answering, or is
// stopped.
type watcher struct {
	stop chan struct{}
	done chan struct{}
}

func (s *Supervisor) startWatch(r *run, proc *Process, url string) {
	w := &watcher{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	s.watchMu.Lock()
	s.watch = w
	s.watchMu.Unlock()

	go s.runWatch(r, w, proc, url)
}

// stopWatch ends the current watcher without waiting for it.
func (s *Supervisor) stopWatch() {
	s.watchMu.Lock()
	w := s.watch
	s.watch = nil
	s.watchMu.Unlock()

	if w != nil {
		close(w.stop)
	}
}

func (s *Supervisor) runWatch(r *run, w *watcher, proc *Process, url string) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var tick <-chan time.Time
	if s.cfg.WatchInterval > 0 {
		ticker := time.NewTicker(s.cfg.WatchInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	maxMissed := uint32(s.cfg.WatchMaxMissed)
	breaker := resilience.New("shiny-liveness", resilience.Settings{
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= maxMissed
		},
		OnStateChange: func(name string, from, to resilience.State) {
			s.logger.Debug("Liveness breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	for {
		select {
		case <-w.stop:
			return
		case <-proc.Done():
			s.lost(r, proc, fmt.Sprintf("Shiny process exited (code %d)", proc.ExitCode()))
			return
		case <-tick:
			err := breaker.Execute(func() error {
				return s.ping(ctx, url)
			})
			if err != nil {
				s.logger.Debug("Liveness ping missed", zap.String("url", url), zap.Error(err))
			}
			if breaker.State() == resilience.StateOpen {
				s.lost(r, proc, fmt.Sprintf("Shiny app stopped responding after %d missed pings", maxMissed))
				return
			}
		}
	}
}

// ping treats any HTTP answer as alive.
func (s *Supervisor) ping(ctx context.Context, url string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.pinger.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// lost clears the registry after the runtime went away on its own.
func (s *Supervisor) lost(r *run, proc *Process, reason string) {
	s.mu.Lock()
	if !s.registry.TakeIf(proc) {
		s.mu.Unlock()
		return
	}
	s.status = Status{
		State:     StateError,
		RunID:     r.id,
		Error:     reason,
		UpdatedAt: time.Now(),
	}
	s.mu.Unlock()

	proc.Kill()
	s.metrics.SetRunning(false)
	s.logger.Warn("Shiny app lost",
		zap.String("run_id", r.id),
		zap.Int("pid", proc.PID()),
		zap.String("reason", reason),
	)
	s.emit(r, TopicLost, reason)
}
