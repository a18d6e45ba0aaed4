package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shinyhost/internal/domain/shiny"
)

// Version is reported by the root endpoint.
const Version = "0.3.0"

// Controller starts and stops the supervised runtime.
type Controller interface {
	Start(ctx context.Context) (string, error)
	Stop() error
	Status() shiny.Status
}

// Diagnoser runs the diagnostic script.
type Diagnoser interface {
	Run(ctx context.Context) (string, error)
}

// Subscribers reports connected event stream clients.
type Subscribers interface {
	Clients() int
}

// Handlers serves the control API.
type Handlers struct {
	controller  Controller
	diagnoser   Diagnoser
	subscribers Subscribers
	logger      *zap.Logger
	started     time.Time
}

// NewHandlers creates handlers. diagnoser and subscribers may be nil.
func NewHandlers(controller Controller, diagnoser Diagnoser, subscribers Subscribers, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		controller:  controller,
		diagnoser:   diagnoser,
		subscribers: subscribers,
		logger:      logger,
		started:     time.Now(),
	}
}

// Register mounts the routes on r.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.POST("/shiny/start", h.StartShiny)
	r.POST("/shiny/stop", h.StopShiny)
	r.GET("/shiny/status", h.ShinyStatus)
	r.POST("/shiny/diagnostics", h.RunDiagnostic)
}

// Root handles basic health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Shiny host (Go)",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	st := h.controller.Status()

	subscribers := 0
	if h.subscribers != nil {
		subscribers = h.subscribers.Clients()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"shiny":       gin.H{"state": st.State, "url": st.URL},
		"diagnostics": gin.H{"configured": h.diagnoser != nil},
		"subscribers": subscribers,
	})
}

// StartShiny launches the runtime and blocks until it is ready or every
// attempt failed.
func (h *Handlers) StartShiny(c *gin.Context) {
	url, err := h.controller.Start(c.Request.Context())
	if err != nil {
		h.fail(c, "start", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"url":     url,
		"status":  h.controller.Status(),
	})
}

// StopShiny kills the running runtime.
func (h *Handlers) StopShiny(c *gin.Context) {
	if err := h.controller.Stop(); err != nil {
		h.fail(c, "stop", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  h.controller.Status(),
	})
}

// ShinyStatus returns the supervisor snapshot.
func (h *Handlers) ShinyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

// RunDiagnostic runs the diagnostic script and returns its output.
func (h *Handlers) RunDiagnostic(c *gin.Context) {
	if h.diagnoser == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "diagnostic script not configured"})
		return
	}

	output, err := h.diagnoser.Run(c.Request.Context())
	if err != nil {
		h.fail(c, "diagnostic", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"output":  output,
	})
}
