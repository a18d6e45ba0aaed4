// Package server wires configuration, logging, metrics, the supervisor and
// the HTTP/WebSocket surfaces into one process.
//
// Closing the server always stops the supervised runtime, so the R process
// never outlives the host.
package server
