// Package main is the entry point for the Shiny host server.
//
// The server supervises a single R/Shiny runtime for a desktop shell:
//
//	UI shell → Shiny host (Go) → Rscript start-shiny.R → Shiny app
//	         ← /events (websocket progress, logs)
//
// The server provides:
//   - REST API to start, stop and inspect the runtime
//   - WebSocket stream of start progress and runtime output
//   - Diagnostic script runner
//   - Prometheus metrics
//
// Configuration:
//   - Environment variables (RSCRIPT_PATH, R_HOME_DIR, START_SHINY_PATH,
//     R_LIB_PATH and SHINY_APP_PATH are required)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 8000
//
//	# Development mode (colored logs), start the app immediately
//	./server -dev -autostart
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, the runtime is killed
package main
