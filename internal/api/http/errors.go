package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shinyhost/internal/domain/diagnostic"
	"github.com/GriffinCanCode/shinyhost/internal/domain/shiny"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		startErr *shiny.StartError
		stopErr  *shiny.StopError
		diagErr  *diagnostic.Error
	)

	switch {
	case errors.Is(err, shiny.ErrStartAborted):
		return http.StatusConflict
	case errors.As(err, &startErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, shiny.ErrNotRunning):
		return http.StatusConflict
	case errors.As(err, &stopErr):
		return http.StatusInternalServerError
	case errors.Is(err, diagnostic.ErrNoScript):
		return http.StatusNotFound
	case errors.As(err, &diagErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response for op.
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	code := statusFor(err)
	body := gin.H{
		"success": false,
		"error":   err.Error(),
	}

	var (
		startErr *shiny.StartError
		diagErr  *diagnostic.Error
	)
	if errors.As(err, &startErr) {
		body["attempts"] = startErr.Attempts
	}
	if errors.As(err, &diagErr) {
		body["exit_code"] = diagErr.ExitCode
		body["output"] = diagErr.Output
	}

	if code >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("op", op), zap.Int("status", code), zap.Error(err))
	} else {
		h.logger.Info("Request rejected", zap.String("op", op), zap.Int("status", code), zap.Error(err))
	}

	c.JSON(code, body)
}
