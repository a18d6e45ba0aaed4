package shiny

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const maxLineSize = 1024 * 1024

// Classifier holds the substring markers matched against runtime output.
// Matching is case-sensitive.
type Classifier struct {
	// Ready markers announce that the runtime is listening.
	Ready []string
	// Loading markers count package loads. Only stderr is checked.
	Loading []string
}

// DefaultClassifier returns the markers printed by R and Shiny.
func DefaultClassifier() Classifier {
	return Classifier{
		Ready:   []string{"Listening on"},
		Loading: []string{"Loading required package:", "Attaching package:"},
	}
}

// Match is the classification of a single line.
type Match struct {
	Ready   bool
	Loading bool
}

// Classify tests line against every marker set independently.
func (c Classifier) Classify(stream Stream, line string) Match {
	var m Match
	m.Ready = containsAny(line, c.Ready)
	if stream == StreamStderr {
		m.Loading = containsAny(line, c.Loading)
	}
	return m
}

func containsAny(line string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// startDrains reads both output streams of proc until EOF and reaps the
// process once both are done. Ready markers are signalled on ready without
// blocking.
func (s *Supervisor) startDrains(r *run, proc *Process, ready chan<- bool) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.drain(r, StreamStdout, proc.Stdout, ready)
	}()
	go func() {
		defer wg.Done()
		s.drain(r, StreamStderr, proc.Stderr, ready)
	}()
	go func() {
		wg.Wait()
		proc.reap()
	}()
}

// drain forwards every line of one stream and fires the effects of its
// matches. A read error ends the loop; the other stream and the probe remain
// as readiness sources.
func (s *Supervisor) drain(r *run, stream Stream, rd io.Reader, ready chan<- bool) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	loaded := 0
	for scanner.Scan() {
		line := strings.ToValidUTF8(scanner.Text(), "\uFFFD")

		s.logger.Debug("shiny output", zap.String("stream", string(stream)), zap.String("line", line))
		s.metrics.LogLine(string(stream))
		s.emit(r, TopicLog, LogLine{Stream: stream, Line: line})

		m := s.classifier.Classify(stream, line)
		if m.Loading {
			loaded++
			s.emit(r, TopicStatus, fmt.Sprintf("Loading packages (%d loaded)", loaded))
		}
		if m.Ready {
			select {
			case ready <- true:
			default:
			}
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Debug("shiny output reader stopped",
			zap.String("stream", string(stream)),
			zap.Error(err),
		)
		// Keep the pipe empty so the runtime never blocks on a write.
		io.Copy(io.Discard, rd)
	}
}
