/*
Package resilience provides a circuit breaker.

The supervisor uses one breaker per running runtime to count missed liveness
pings: the breaker opens after the configured number of consecutive failures,
and an open breaker means the runtime is gone.

# Usage

	breaker := resilience.New("liveness", resilience.Settings{
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	err := breaker.Execute(func() error {
		return ping(ctx, url)
	})
	if breaker.State() == resilience.StateOpen {
		// give up on the target
	}

# States

  - Closed: calls pass through and outcomes are counted.
  - Open: calls are rejected with ErrCircuitOpen. The breaker never closes
    again; a restarted runtime gets a fresh breaker.
*/
package resilience
