package tracing

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/shinyhost/internal/shared/id"
)

// HTTPMiddleware creates Gin middleware for request tracing. A well-formed
// incoming X-Request-ID is kept, anything else is replaced.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if rid := c.GetHeader(HeaderRequestID); rid != "" {
			if _, err := id.Parse(rid); err == nil {
				ctx = WithRequestID(ctx, id.RequestID(rid))
			}
		}

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}

		span, ctx := tracer.StartSpan(ctx, name)
		span.SetTag("http.method", c.Request.Method)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, span.RequestID.String())

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		span.Finish()
		tracer.Submit(span)
	}
}
