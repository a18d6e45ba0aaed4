// Package http exposes the supervisor over a small JSON control API.
//
// Routes:
//   - GET  /               service banner
//   - GET  /health         liveness of the host itself
//   - POST /shiny/start    start the runtime, blocks until ready or failed
//   - POST /shiny/stop     kill the runtime
//   - GET  /shiny/status   current supervisor snapshot
//   - POST /shiny/diagnostics  run the diagnostic script
//
// Failures map to status codes: an exhausted start is 503, stopping with
// nothing running is 409, a failed diagnostic is 422.
package http
