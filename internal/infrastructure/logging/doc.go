// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for log shippers
//   - Development: colored console output
//
// Output of the supervised runtime is logged at debug level under the
// "shiny" logger name, so LOG_LEVEL=debug is enough to see everything R
// prints.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level})
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Error("Failed to launch", zap.Error(err))
package logging
