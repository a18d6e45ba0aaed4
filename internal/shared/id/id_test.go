package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	assert.NotEqual(t, id1.String(), id2.String())
	assert.Len(t, gen.GenerateString(), 26)
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{RunPrefix, RequestPrefix} {
		t.Run(prefix, func(t *testing.T) {
			id := gen.GenerateWithPrefix(prefix)
			require.True(t, strings.HasPrefix(id, prefix+"_"), id)

			parts := strings.Split(id, "_")
			require.Len(t, parts, 2)
			assert.True(t, IsValid(parts[1]))
		})
	}
}

func TestNewRunID(t *testing.T) {
	runID := NewRunID()
	reqID := NewRequestID()

	assert.True(t, strings.HasPrefix(runID.String(), "run_"))
	assert.True(t, strings.HasPrefix(reqID.String(), "req_"))
	assert.NotEqual(t, runID, NewRunID())
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(NewGenerator().GenerateString()))

	for _, id := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		assert.False(t, IsValid(id), id)
	}
}

func TestParsePrefixed(t *testing.T) {
	runID := NewRunID()

	parsed, err := Parse(runID.String())
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(runID.String(), "run_"), parsed.String())

	_, err = Parse("run_nope")
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Millisecond)
	runID := NewRunID()
	after := time.Now().Add(time.Millisecond)

	ts, err := Timestamp(runID.String())
	require.NoError(t, err)
	assert.False(t, ts.Before(before.Truncate(time.Millisecond)))
	assert.False(t, ts.After(after))
}

func TestConcurrentGeneration(t *testing.T) {
	const n = 200
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[RunID]struct{}, n)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewRunID()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}
