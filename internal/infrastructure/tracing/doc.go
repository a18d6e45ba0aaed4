/*
Package tracing tags every control API request with a request ID and logs a
span when the request finishes.

The ID is taken from an incoming X-Request-ID header when it parses as a
req_<ulid>, otherwise a new one is generated. It is echoed in the response
header and stored in the request context, so the supervisor can stamp its
start logs with the request that asked for them.

# Usage

	tracer := tracing.New(logger.Named("trace"))
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// Downstream
	rid := tracing.RequestID(c.Request.Context())

Spans are collected on a buffered channel and logged by a single goroutine;
when the buffer is full, spans are dropped with a warning rather than
blocking the request.
*/
package tracing
