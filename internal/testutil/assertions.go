package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/stream"
)

// AssertStatus checks that a status event reports the expected status and
// its matching message.
func AssertStatus(t *testing.T, st *stream.StatusEvent, expected interp.Status) {
	t.Helper()
	require.NotNil(t, st, "status event should not be nil")
	assert.Equal(t, expected, st.Status, "unexpected run status")
	assert.Equal(t, expected.Message(), st.Message, "status message should match status")
}

// AssertReplay replays events and checks the reconstructed output and
// status. It returns the status event for further checks.
func AssertReplay(t *testing.T, events []*stream.Event, expectedOutput string, expectedStatus interp.Status) *stream.StatusEvent {
	t.Helper()
	out, st, err := stream.Replay(events)
	require.NoError(t, err, "events should replay")
	assert.Equal(t, expectedOutput, string(out), "replayed output")
	AssertStatus(t, st, expectedStatus)
	return st
}

// AssertFixture replays events and checks them against a fixture.
func AssertFixture(t *testing.T, events []*stream.Event, f Fixture) *stream.StatusEvent {
	t.Helper()
	return AssertReplay(t, events, f.Output, f.Status)
}

// AssertOutput checks that the output chunks in events concatenate to the
// expected output, without requiring a status event.
func AssertOutput(t *testing.T, events []*stream.Event, expected string) {
	t.Helper()
	var out []byte
	for _, event := range events {
		if event.Type != stream.MessageTypeOutput {
			continue
		}
		data, err := event.OutputData()
		require.NoError(t, err)
		out = append(out, data.Bytes...)
	}
	assert.Equal(t, expected, string(out), "concatenated output chunks")
}

// AssertChunks checks the chunking of output in events: chunks are
// numbered from zero, never empty and never larger than capacity, and
// every chunk but the last is exactly capacity bytes.
func AssertChunks(t *testing.T, events []*stream.Event, capacity int) {
	t.Helper()
	var chunks []*stream.OutputEvent
	for _, event := range events {
		if event.Type != stream.MessageTypeOutput {
			continue
		}
		data, err := event.OutputData()
		require.NoError(t, err)
		chunks = append(chunks, data)
	}

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index, "chunk index")
		assert.NotEmpty(t, chunk.Bytes, "chunk %d should not be empty", i)
		assert.LessOrEqual(t, len(chunk.Bytes), capacity, "chunk %d exceeds capacity", i)
		if i < len(chunks)-1 {
			assert.Len(t, chunk.Bytes, capacity, "chunk %d should be full", i)
		}
	}
}

// AssertEventTypes checks the sequence of event types.
func AssertEventTypes(t *testing.T, events []*stream.Event, expected ...stream.MessageType) {
	t.Helper()
	actual := make([]stream.MessageType, len(events))
	for i, event := range events {
		actual[i] = event.Type
	}
	assert.Equal(t, expected, actual, "event types")
}

// AssertSequenced checks that events carry consecutive sequence numbers
// starting at first.
func AssertSequenced(t *testing.T, events []*stream.Event, first uint64) {
	t.Helper()
	for i, event := range events {
		assert.Equal(t, first+uint64(i), event.Seq, "event %d (%s) sequence", i, event.Type)
	}
}
