// Package stream provides the event types and storage shared by the run
// host, the run server and remote clients. A run is recorded as an ordered
// sequence of events: one run event, zero or more output events, and one
// status event. Commands and acks may be interleaved.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/thruflo/bfi/internal/interp"
)

// MessageType identifies the type of message in the stream.
type MessageType string

const (
	// Host → Client message types

	// MessageTypeRun announces a run and its parameters.
	MessageTypeRun MessageType = "run"
	// MessageTypeOutput carries one output chunk.
	MessageTypeOutput MessageType = "output"
	// MessageTypeStatus carries the terminal status of a run.
	MessageTypeStatus MessageType = "status"
	// MessageTypeAck is a command acknowledgment.
	MessageTypeAck MessageType = "ack"

	// Client → Host command types

	// MessageTypeCommand is a command from client to host.
	MessageTypeCommand MessageType = "command"
)

// CommandType identifies the type of command sent from client to host.
type CommandType string

const (
	// CommandTypeCancel requests cooperative cancellation of the run.
	CommandTypeCancel CommandType = "cancel"
)

// Event represents a message in the stream.
// Events are serialized to JSON for storage and transmission.
type Event struct {
	// Seq is the sequence number assigned by the FileStore.
	// Zero for events not yet persisted.
	Seq uint64 `json:"seq,omitempty"`

	// RunID identifies the run the event belongs to.
	RunID string `json:"run_id,omitempty"`

	// Type identifies what kind of event this is.
	Type MessageType `json:"type"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Data contains the type-specific payload.
	// Use the typed accessor methods to get the concrete type.
	Data json.RawMessage `json:"data"`
}

// NewEvent creates a new Event with the given type and data.
func NewEvent(msgType MessageType, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	return &Event{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}, nil
}

// MustNewEvent creates a new Event, panicking on error.
// Use only when the data is known to be serializable.
func MustNewEvent(msgType MessageType, data any) *Event {
	e, err := NewEvent(msgType, data)
	if err != nil {
		panic(err)
	}
	return e
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an Event from JSON bytes.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}

// RunData returns the run data if this is a run event.
func (e *Event) RunData() (*RunEvent, error) {
	if e.Type != MessageTypeRun {
		return nil, fmt.Errorf("event is not a run event: %s", e.Type)
	}
	var data RunEvent
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run data: %w", err)
	}
	return &data, nil
}

// OutputData returns the output data if this is an output event.
func (e *Event) OutputData() (*OutputEvent, error) {
	if e.Type != MessageTypeOutput {
		return nil, fmt.Errorf("event is not an output event: %s", e.Type)
	}
	var data OutputEvent
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
	}
	return &data, nil
}

// StatusData returns the status data if this is a status event.
func (e *Event) StatusData() (*StatusEvent, error) {
	if e.Type != MessageTypeStatus {
		return nil, fmt.Errorf("event is not a status event: %s", e.Type)
	}
	var data StatusEvent
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data: %w", err)
	}
	return &data, nil
}

// CommandData returns the command data if this is a command event.
func (e *Event) CommandData() (*Command, error) {
	if e.Type != MessageTypeCommand {
		return nil, fmt.Errorf("event is not a command: %s", e.Type)
	}
	var data Command
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command data: %w", err)
	}
	return &data, nil
}

// AckData returns the ack data if this is an ack event.
func (e *Event) AckData() (*Ack, error) {
	if e.Type != MessageTypeAck {
		return nil, fmt.Errorf("event is not an ack: %s", e.Type)
	}
	var data Ack
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ack data: %w", err)
	}
	return &data, nil
}

// RunEvent describes a run as it starts.
type RunEvent struct {
	ID            string    `json:"id"`
	ProgramLength int       `json:"program_length"`
	InputLength   int       `json:"input_length"`
	OutputBuffer  int       `json:"output_buffer"`
	StartedAt     time.Time `json:"started_at"`
}

// OutputEvent carries one chunk of program output. Chunks are numbered from
// zero in delivery order.
type OutputEvent struct {
	Index int    `json:"index"`
	Bytes []byte `json:"bytes"`
}

// StatusEvent describes how a run ended.
type StatusEvent struct {
	Status      interp.Status `json:"status"`
	Message     string        `json:"message"`
	Steps       int64         `json:"steps"`
	OutputBytes int           `json:"output_bytes"`
	Chunks      int           `json:"chunks"`
	PC          int           `json:"pc"`
	InputCursor int           `json:"input_cursor"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// NewStatusEvent builds a StatusEvent from an engine result.
func NewStatusEvent(res interp.Result) *StatusEvent {
	return &StatusEvent{
		Status:      res.Status,
		Message:     res.Status.Message(),
		Steps:       res.Steps,
		OutputBytes: res.Output,
		Chunks:      res.Chunks,
		PC:          res.State.PC,
		InputCursor: res.State.InputCursor,
		FinishedAt:  time.Now().UTC(),
	}
}

// Command represents a command from client to host.
type Command struct {
	// ID is a unique identifier for this command, used for acknowledgment.
	ID string `json:"id"`

	// Type identifies what kind of command this is.
	Type CommandType `json:"type"`
}

// NewCancelCommand creates a new cancel command.
func NewCancelCommand(id string) *Command {
	return &Command{
		ID:   id,
		Type: CommandTypeCancel,
	}
}

// AckStatus represents the result of command processing.
type AckStatus string

const (
	AckStatusSuccess AckStatus = "success"
	AckStatusError   AckStatus = "error"
)

// Ack represents an acknowledgment of a command.
type Ack struct {
	// CommandID is the ID of the command being acknowledged.
	CommandID string `json:"command_id"`
	// Status indicates whether the command succeeded or failed.
	Status AckStatus `json:"status"`
	// Error contains the error message if Status is "error".
	Error string `json:"error,omitempty"`
}

// NewSuccessAck creates a success acknowledgment.
func NewSuccessAck(commandID string) *Ack {
	return &Ack{
		CommandID: commandID,
		Status:    AckStatusSuccess,
	}
}

// NewErrorAck creates an error acknowledgment.
func NewErrorAck(commandID string, err error) *Ack {
	return &Ack{
		CommandID: commandID,
		Status:    AckStatusError,
		Error:     err.Error(),
	}
}
