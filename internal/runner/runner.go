// Package runner hosts interpreter runs. Each run executes on its own
// goroutine and reports progress as stream events: a run event, one output
// event per chunk, and a final status event.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thruflo/bfi/internal/config"
	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/logging"
	"github.com/thruflo/bfi/internal/output"
	"github.com/thruflo/bfi/internal/program"
	"github.com/thruflo/bfi/internal/stream"
)

// eventBuffer is the capacity of a run's event channel.
const eventBuffer = 64

// Errors returned by the runner.
var (
	ErrUnknownRun = errors.New("unknown run")
	ErrFinished   = errors.New("run already finished")
)

// Recorder persists run events. *stream.FileStore implements it.
type Recorder interface {
	Append(event *stream.Event) error
}

// Request describes a run to start.
type Request struct {
	Source string
	Input  []byte

	// Recorder, if set, receives every event before it is published on
	// Run.Events.
	Recorder Recorder
}

// Runner starts runs with shared engine settings.
type Runner struct {
	Config config.Engine
	Logger *logging.Logger
}

// New creates a Runner. A nil logger discards everything.
func New(cfg config.Engine, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{Config: cfg, Logger: logger}
}

// Start begins a run and returns immediately. Cancelling ctx cancels the
// run. The caller must drain Run.Events until it is closed.
func (r *Runner) Start(ctx context.Context, req Request) *Run {
	logger := r.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		token:     interp.NewToken(),
		events:    make(chan *stream.Event, eventBuffer),
		done:      make(chan struct{}),
		recorder:  req.Recorder,
	}
	run.log = logger.With("run", run.ID)

	stop := run.token.Bind(ctx)
	go func() {
		defer stop()
		run.execute(r.Config, req)
	}()

	return run
}

// Run is a single execution of a program.
type Run struct {
	ID        string
	StartedAt time.Time

	token    *interp.Token
	events   chan *stream.Event
	done     chan struct{}
	recorder Recorder
	log      *logging.Logger

	// Set before done is closed
	result     interp.Result
	finishedAt time.Time

	mu  sync.Mutex
	err error
}

// execute runs the program and publishes its events.
func (run *Run) execute(cfg config.Engine, req Request) {
	defer close(run.done)
	defer close(run.events)

	basic := run.log.For(logging.CategoryBasic)

	prog, err := program.FilterLimit(req.Source, cfg.MaxProgramBytes)
	run.emit(stream.MessageTypeRun, stream.RunEvent{
		ID:            run.ID,
		ProgramLength: prog.Len(),
		InputLength:   len(req.Input),
		OutputBuffer:  cfg.OutputBuffer,
		StartedAt:     run.StartedAt,
	})

	var res interp.Result
	if err != nil {
		run.log.Warn("program rejected", "error", err)
		res = interp.Result{
			Status: interp.StatusOutOfMemory,
			State:  interp.State{Status: interp.StatusOutOfMemory},
		}
	} else {
		basic.Debug("run started", "program", prog.Len(), "input", len(req.Input))

		engine := interp.New(
			interp.WithLogger(run.log),
			interp.WithOutputCapacity(cfg.OutputBuffer),
			interp.WithMemoryLimit(cfg.MaxMemoryBytes),
		)

		index := 0
		sink := output.SinkFunc(func(p []byte) {
			run.emit(stream.MessageTypeOutput, stream.OutputEvent{Index: index, Bytes: p})
			index++
		})
		res = engine.Run(prog, req.Input, run.token, sink)
	}

	run.result = res
	run.finishedAt = time.Now().UTC()
	run.emit(stream.MessageTypeStatus, stream.NewStatusEvent(res))

	basic.Debug("run finished",
		"status", res.Status.String(),
		"steps", res.Steps,
		"bytes", res.Output,
		"chunks", res.Chunks)
}

// emit records and publishes one event.
func (run *Run) emit(msgType stream.MessageType, data any) {
	event, err := stream.NewEvent(msgType, data)
	if err != nil {
		run.log.Error("failed to create event", "type", string(msgType), "error", err)
		run.setErr(err)
		return
	}
	event.RunID = run.ID

	if run.recorder != nil {
		if err := run.recorder.Append(event); err != nil {
			run.log.Warn("failed to record event", "type", string(msgType), "error", err)
			run.setErr(fmt.Errorf("failed to record event: %w", err))
		}
	}

	run.events <- event
}

func (run *Run) setErr(err error) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.err == nil {
		run.err = err
	}
}

// Err returns the first error encountered while publishing events. It does
// not reflect the run's status.
func (run *Run) Err() error {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.err
}

// Events returns the run's events in order. The channel is closed after the
// status event.
func (run *Run) Events() <-chan *stream.Event {
	return run.events
}

// Done returns a channel that is closed when the run has finished.
func (run *Run) Done() <-chan struct{} {
	return run.done
}

// Cancel requests cooperative cancellation. The run stops after its current
// instruction with StatusCancelled unless it has already finished.
func (run *Run) Cancel() {
	run.token.Cancel()
}

// Wait blocks until the run finishes and returns its result.
func (run *Run) Wait() interp.Result {
	<-run.done
	return run.result
}

// Result returns the result if the run has finished.
func (run *Run) Result() (interp.Result, bool) {
	select {
	case <-run.done:
		return run.result, true
	default:
		return interp.Result{}, false
	}
}

// FinishedAt returns when the run finished, or the zero time if it is still
// running.
func (run *Run) FinishedAt() time.Time {
	select {
	case <-run.done:
		return run.finishedAt
	default:
		return time.Time{}
	}
}

// Handle applies a client command to the run and returns its ack.
func (run *Run) Handle(cmd *stream.Command) *stream.Ack {
	switch cmd.Type {
	case stream.CommandTypeCancel:
		select {
		case <-run.done:
			return stream.NewErrorAck(cmd.ID, ErrFinished)
		default:
		}
		run.Cancel()
		run.log.Info("cancel requested", "command", cmd.ID)
		return stream.NewSuccessAck(cmd.ID)
	default:
		return stream.NewErrorAck(cmd.ID, fmt.Errorf("unknown command type: %s", cmd.Type))
	}
}
