// Package ws streams supervisor events to WebSocket subscribers.
//
// The Hub implements shiny.Notifier. Every event becomes one JSON frame:
//
//	{"type":"event","topic":"shiny-status","payload":"Loading packages (2 loaded)",
//	 "run_id":"run_01J...","timestamp":1718000000000}
//
// A new subscriber first receives a "system" frame. Subscribers may send
// {"type":"ping"} and get {"type":"pong"} back.
package ws
