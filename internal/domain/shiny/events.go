package shiny

import "time"

// Event topics emitted to the observer.
const (
	TopicStatus  = "status"
	TopicStarted = "started"
	TopicError   = "error"
	TopicStopped = "stopped"
	TopicLog     = "log"
	TopicLost    = "lost"
)

// Stream names a runtime output stream.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Event is a fire-and-forget notification for the observer.
type Event struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
	RunID   string      `json:"run_id,omitempty"`
	Time    time.Time   `json:"timestamp"`
}

// LogLine is the payload of TopicLog events.
type LogLine struct {
	Stream Stream `json:"stream"`
	Line   string `json:"line"`
}

// Notifier receives events. Implementations must accept concurrent calls
// and must not block.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

// Notify calls f(ev).
func (f NotifierFunc) Notify(ev Event) {
	f(ev)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// MetricsRecorder receives supervisor measurements.
type MetricsRecorder interface {
	AttemptFinished(outcome string)
	StartFinished(success bool, d time.Duration)
	LogLine(stream string)
	SetRunning(running bool)
}

type nopRecorder struct{}

func (nopRecorder) AttemptFinished(string)             {}
func (nopRecorder) StartFinished(bool, time.Duration) {}
func (nopRecorder) LogLine(string)                     {}
func (nopRecorder) SetRunning(bool)                    {}
