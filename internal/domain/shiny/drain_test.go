package shiny

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name   string
		stream Stream
		line   string
		want   Match
	}{
		{"ready on stdout", StreamStdout, "Listening on http://0.0.0.0:3000", Match{Ready: true}},
		{"ready on stderr", StreamStderr, "Listening on http://0.0.0.0:3000", Match{Ready: true}},
		{"loading on stderr", StreamStderr, "Loading required package: shiny", Match{Loading: true}},
		{"attaching on stderr", StreamStderr, "Attaching package: 'dplyr'", Match{Loading: true}},
		{"loading ignored on stdout", StreamStdout, "Loading required package: shiny", Match{}},
		{"case sensitive", StreamStderr, "listening on port 3000", Match{}},
		{"both markers", StreamStderr, "Attaching package: x; Listening on :3000", Match{Ready: true, Loading: true}},
		{"plain line", StreamStdout, "[1] TRUE", Match{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.stream, tt.line))
		})
	}
}

func newDrainSupervisor(t *testing.T) (*Supervisor, *recorder) {
	t.Helper()
	sup, rec, _ := newTestSupervisor(t, testConfig("/bin/true"))
	return sup, rec
}

func TestDrainForwardsLinesAndCountsPackages(t *testing.T) {
	sup, rec := newDrainSupervisor(t)
	ready := make(chan bool, 1)

	out := strings.Join([]string{
		"Loading required package: shiny",
		"Attaching package: 'dplyr'",
		"some warning",
		"Listening on http://0.0.0.0:3000",
		"Listening on http://0.0.0.0:3000",
	}, "\n")

	sup.drain(&run{id: "run_test", attempt: 1}, StreamStderr, strings.NewReader(out), ready)

	logs := rec.topic(TopicLog)
	require.Len(t, logs, 5)
	assert.Equal(t, LogLine{Stream: StreamStderr, Line: "some warning"}, logs[2].Payload)
	assert.Equal(t, "run_test", logs[0].RunID)

	assert.Equal(t, []string{"Loading packages (1 loaded)", "Loading packages (2 loaded)"},
		rec.statusWithPrefix("Loading packages"))

	// Two ready lines never block on the single-slot channel.
	assert.True(t, <-ready)
	assert.Len(t, ready, 0)
}

func TestDrainStdoutDoesNotCountPackages(t *testing.T) {
	sup, rec := newDrainSupervisor(t)
	ready := make(chan bool, 1)

	sup.drain(&run{id: "run_test"}, StreamStdout, strings.NewReader("Loading required package: shiny\n"), ready)

	assert.Len(t, rec.topic(TopicLog), 1)
	assert.Empty(t, rec.statusWithPrefix("Loading packages"))
	assert.Len(t, ready, 0)
}

func TestDrainReplacesInvalidUTF8(t *testing.T) {
	sup, rec := newDrainSupervisor(t)

	sup.drain(&run{}, StreamStdout, strings.NewReader("caf\xe9\n"), make(chan bool, 1))

	logs := rec.topic(TopicLog)
	require.Len(t, logs, 1)
	assert.Equal(t, "caf\uFFFD", logs[0].Payload.(LogLine).Line)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestDrainStopsOnReadError(t *testing.T) {
	sup, rec := newDrainSupervisor(t)

	done := make(chan struct{})
	go func() {
		sup.drain(&run{}, StreamStdout, failingReader{err: io.ErrClosedPipe}, make(chan bool, 1))
		close(done)
	}()

	<-done
	assert.Empty(t, rec.all())
}
