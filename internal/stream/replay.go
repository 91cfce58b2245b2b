package stream

import (
	"errors"
	"fmt"
)

// ErrNoStatus is returned by Replay when the events do not include the
// status event that ends a run.
var ErrNoStatus = errors.New("run has no status event")

// ReplayError describes an event sequence that could not have been
// produced by a single run.
type ReplayError struct {
	Seq     uint64
	Message string
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("invalid event at seq %d: %s", e.Seq, e.Message)
}

// Replay reconstructs the output and terminal status of a run from its
// recorded events. Output chunks must be numbered consecutively from zero
// and precede a single status event; totals in the status must agree with
// the chunks seen. Command and ack events are ignored.
//
// If the status event is missing, Replay returns the output so far together
// with ErrNoStatus.
func Replay(events []*Event) ([]byte, *StatusEvent, error) {
	var (
		out    []byte
		chunks int
		runID  string
		status *StatusEvent
	)

	for i, event := range events {
		if event.RunID != "" {
			if runID == "" {
				runID = event.RunID
			} else if event.RunID != runID {
				return out, nil, &ReplayError{Seq: event.Seq, Message: fmt.Sprintf("belongs to run %s, not %s", event.RunID, runID)}
			}
		}

		switch event.Type {
		case MessageTypeRun:
			if i != 0 {
				return out, nil, &ReplayError{Seq: event.Seq, Message: "run event is not first"}
			}
			if _, err := event.RunData(); err != nil {
				return out, nil, err
			}

		case MessageTypeOutput:
			if status != nil {
				return out, nil, &ReplayError{Seq: event.Seq, Message: "output after status"}
			}
			data, err := event.OutputData()
			if err != nil {
				return out, nil, err
			}
			if data.Index != chunks {
				return out, nil, &ReplayError{Seq: event.Seq, Message: fmt.Sprintf("chunk %d out of order, expected %d", data.Index, chunks)}
			}
			out = append(out, data.Bytes...)
			chunks++

		case MessageTypeStatus:
			if status != nil {
				return out, nil, &ReplayError{Seq: event.Seq, Message: "duplicate status"}
			}
			data, err := event.StatusData()
			if err != nil {
				return out, nil, err
			}
			if !data.Status.Terminal() {
				return out, nil, &ReplayError{Seq: event.Seq, Message: fmt.Sprintf("status %s is not terminal", data.Status)}
			}
			if data.Chunks != chunks || data.OutputBytes != len(out) {
				return out, nil, &ReplayError{Seq: event.Seq, Message: fmt.Sprintf(
					"status reports %d chunks and %d bytes, saw %d and %d",
					data.Chunks, data.OutputBytes, chunks, len(out))}
			}
			status = data
		}
	}

	if status == nil {
		return out, nil, ErrNoStatus
	}
	return out, status, nil
}
