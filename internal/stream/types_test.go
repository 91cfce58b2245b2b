package stream

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/bfi/internal/interp"
)

func TestNewEvent(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC()
	event, err := NewEvent(MessageTypeRun, RunEvent{ID: "run-1", ProgramLength: 4})
	require.NoError(t, err)

	assert.Equal(t, MessageTypeRun, event.Type)
	assert.Equal(t, uint64(0), event.Seq)
	assert.False(t, event.Timestamp.Before(before))
	assert.JSONEq(t, `{"id":"run-1","program_length":4,"input_length":0,"output_buffer":0,"started_at":"0001-01-01T00:00:00Z"}`, string(event.Data))
}

func TestNewEventUnmarshalable(t *testing.T) {
	t.Parallel()

	_, err := NewEvent(MessageTypeRun, make(chan int))
	assert.Error(t, err)
	assert.Panics(t, func() { MustNewEvent(MessageTypeRun, make(chan int)) })
}

func TestEventMarshalUnmarshal(t *testing.T) {
	t.Parallel()

	event := MustNewEvent(MessageTypeOutput, OutputEvent{Index: 2, Bytes: []byte{0, 'a', 0xff}})
	event.Seq = 9
	event.RunID = "run-1"

	data, err := event.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, event.Seq, got.Seq)
	assert.Equal(t, event.RunID, got.RunID)
	assert.Equal(t, event.Type, got.Type)
	assert.True(t, event.Timestamp.Equal(got.Timestamp))

	out, err := got.OutputData()
	require.NoError(t, err)
	assert.Equal(t, 2, out.Index)
	assert.Equal(t, []byte{0, 'a', 0xff}, out.Bytes)
}

func TestUnmarshalEventInvalid(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalEvent([]byte(`{`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal event")
}

func TestEventDataAccessors(t *testing.T) {
	t.Parallel()

	t.Run("status", func(t *testing.T) {
		t.Parallel()

		event := MustNewEvent(MessageTypeStatus, StatusEvent{Status: interp.StatusMismatchedBrackets, Steps: 3})
		assert.Contains(t, string(event.Data), `"status":"mismatched_brackets"`)

		data, err := event.StatusData()
		require.NoError(t, err)
		assert.Equal(t, interp.StatusMismatchedBrackets, data.Status)
		assert.Equal(t, int64(3), data.Steps)
	})

	t.Run("command", func(t *testing.T) {
		t.Parallel()

		event := MustNewEvent(MessageTypeCommand, NewCancelCommand("cmd-1"))
		cmd, err := event.CommandData()
		require.NoError(t, err)
		assert.Equal(t, "cmd-1", cmd.ID)
		assert.Equal(t, CommandTypeCancel, cmd.Type)
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()

		event := MustNewEvent(MessageTypeAck, NewSuccessAck("x"))
		_, err := event.RunData()
		assert.Error(t, err)
		_, err = event.OutputData()
		assert.Error(t, err)
		_, err = event.StatusData()
		assert.Error(t, err)
		_, err = event.CommandData()
		assert.Error(t, err)

		ack, err := event.AckData()
		require.NoError(t, err)
		assert.Equal(t, "x", ack.CommandID)
	})

	t.Run("bad payload", func(t *testing.T) {
		t.Parallel()

		event := &Event{Type: MessageTypeRun, Data: json.RawMessage(`"nope"`)}
		_, err := event.RunData()
		assert.Error(t, err)
	})
}

func TestNewStatusEvent(t *testing.T) {
	t.Parallel()

	res := interp.Result{
		Status: interp.StatusCancelled,
		State:  interp.State{PC: 4, InputCursor: 2, Status: interp.StatusCancelled},
		Steps:  10,
		Output: 5,
		Chunks: 1,
	}
	status := NewStatusEvent(res)

	assert.Equal(t, interp.StatusCancelled, status.Status)
	assert.Equal(t, "Cancelled.", status.Message)
	assert.Equal(t, int64(10), status.Steps)
	assert.Equal(t, 5, status.OutputBytes)
	assert.Equal(t, 1, status.Chunks)
	assert.Equal(t, 4, status.PC)
	assert.Equal(t, 2, status.InputCursor)
	assert.False(t, status.FinishedAt.IsZero())
}

func TestAckCreators(t *testing.T) {
	t.Parallel()

	ok := NewSuccessAck("a")
	assert.Equal(t, AckStatusSuccess, ok.Status)
	assert.Empty(t, ok.Error)

	failed := NewErrorAck("b", errors.New("run already finished"))
	assert.Equal(t, AckStatusError, failed.Status)
	assert.Equal(t, "run already finished", failed.Error)
}
