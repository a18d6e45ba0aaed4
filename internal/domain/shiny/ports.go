package shiny

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// DefaultPortStart is the first port scanned.
	DefaultPortStart = 3000
	// DefaultPortEnd is the exclusive upper bound of the scan.
	DefaultPortEnd = 8000

	loopbackHost = "127.0.0.1"
)

// PortRange is a half-open range [Start, End) of TCP ports.
type PortRange struct {
	Start int
	End   int
}

// DefaultPortRange returns 3000-8000.
func DefaultPortRange() PortRange {
	return PortRange{Start: DefaultPortStart, End: DefaultPortEnd}
}

func (r PortRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Valid reports whether the range holds at least one usable port.
func (r PortRange) Valid() bool {
	return r.Start > 0 && r.End > r.Start && r.End <= 65536
}

// BindHost derives the host to probe from a base URL such as
// "http://127.0.0.1". The scheme, any path and any port are dropped.
func BindHost(baseURL string) string {
	host := strings.TrimSpace(baseURL)
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return loopbackHost
	}
	return host
}

// FindPort returns the first port in r that can be bound on host.
//
// The probe listener is closed before returning, so the port is free again
// when the caller hands it to the runtime. Nothing stops another process from
// taking it in between; a lost race shows up later as a readiness timeout.
func FindPort(host string, r PortRange) (int, error) {
	if !r.Valid() {
		return 0, fmt.Errorf("%w: invalid range %s", ErrPortExhausted, r)
	}

	for port := r.Start; port < r.End; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}

	return 0, fmt.Errorf("%w: %s on %s", ErrPortExhausted, r, host)
}
