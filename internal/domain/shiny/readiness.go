package shiny

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultReadyTimeout leaves room for slow package loading.
	DefaultReadyTimeout = 40 * time.Second
	// DefaultPollInterval is the pause between probes.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultProbeTimeout bounds a single HEAD request.
	DefaultProbeTimeout = time.Second
)

// Prober checks whether something is serving HTTP on a local port.
type Prober interface {
	Probe(ctx context.Context, port int) bool
}

// HTTPProber connects over TCP and then issues a HEAD request.
type HTTPProber struct {
	host    string
	timeout time.Duration
	client  *resty.Client
}

// NewHTTPProber creates a prober for host. A zero timeout uses
// DefaultProbeTimeout.
func NewHTTPProber(host string, timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "shinyhost-probe/1.0")

	return &HTTPProber{
		host:    host,
		timeout: timeout,
		client:  client,
	}
}

// Probe reports true when the port accepts a TCP connection and a HEAD
// request answers with a 2xx status.
func (p *HTTPProber) Probe(ctx context.Context, port int) bool {
	addr := net.JoinHostPort(p.host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()

	resp, err := p.client.R().SetContext(ctx).Head("http://" + addr)
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}

// Monitor waits for a runtime to become ready.
type Monitor struct {
	prober   Prober
	timeout  time.Duration
	interval time.Duration
}

// NewMonitor creates a monitor. Zero durations fall back to the defaults.
func NewMonitor(prober Prober, timeout, interval time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		prober:   prober,
		timeout:  timeout,
		interval: interval,
	}
}

// Wait blocks until a ready signal arrives, a probe of port succeeds, the
// process exits, or the timeout elapses. Whichever success is observed first
// wins. A nil exited channel is never selected.
//
// Probes run under the overall deadline, so Wait returns within the timeout
// plus at most one poll interval.
func (m *Monitor) Wait(ctx context.Context, ready <-chan bool, exited <-chan struct{}, port int) error {
	deadline := time.Now().Add(m.timeout)
	probeCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case ok := <-ready:
			if ok {
				return nil
			}
		case <-exited:
			return ErrProcessExited
		case <-timer.C:
			return ErrReadinessTimeout
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.prober != nil && m.prober.Probe(probeCtx, port) {
				return nil
			}
		}
	}
}
