package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisorMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AttemptFinished("timeout")
	m.AttemptFinished("timeout")
	m.AttemptFinished("success")
	m.LogLine("stderr")
	m.SetRunning(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Attempts.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LogLines.WithLabelValues("stderr")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Running))

	m.SetRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Running))

	m.StartFinished(true, 3*time.Second)
	m.StartFinished(false, time.Minute)
	assert.Equal(t, 2, testutil.CollectAndCount(m.StartDuration))
}

func TestEventMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordEvent("started")
	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()
	m.IncWSDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSDropped))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/shiny/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(Handler(reg)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shiny/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/shiny/status", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "shinyhost_http_requests_total")
}

func TestNewMetricsPerRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
