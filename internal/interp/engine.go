package interp

import (
	"github.com/thruflo/bfi/internal/logging"
	"github.com/thruflo/bfi/internal/output"
	"github.com/thruflo/bfi/internal/program"
	"github.com/thruflo/bfi/internal/tape"
)

// State is the engine's view of a run.
type State struct {
	PC          int    // Index of the next instruction, in [0, len]
	InputCursor int    // Index of the next input byte, in [0, len(input)]
	Status      Status // StatusRunning until the run ends
}

// Result describes a finished run.
type Result struct {
	Status Status
	State  State
	Steps  int64 // Instructions completed
	Output int   // Bytes emitted
	Chunks int   // Chunks delivered to the sink
}

// Engine runs programs one at a time.
type Engine struct {
	capacity int
	memLimit int
	log      *logging.Logger
	traceLog *logging.Logger
	outLog   *logging.Logger

	state State
	tape  *tape.Tape
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Instruction tracing is written to its
// interpreter category and chunk delivery to its output category.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithOutputCapacity sets the output chunk size. Non-positive values keep
// the default.
func WithOutputCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.capacity = n
		}
	}
}

// WithMemoryLimit bounds the bytes a run may allocate for its program copy,
// tape and output buffer. A run that would exceed it ends with
// StatusOutOfMemory before executing anything. Zero means no limit.
func WithMemoryLimit(n int) Option {
	return func(e *Engine) {
		e.memLimit = n
	}
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		capacity: output.DefaultCapacity,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.traceLog = e.log.For(logging.CategoryInterpreter)
	e.outLog = e.log.For(logging.CategoryOutput)
	return e
}

// State returns the state of the current or most recent run.
func (e *Engine) State() State {
	return e.state
}

// Tape returns the tape of the most recent run, or nil before the first.
func (e *Engine) Tape() *tape.Tape {
	return e.tape
}

// Run executes prog against input, delivering output chunks to sink, until
// the program ends, a bracket cannot be matched, or tok is cancelled. All
// buffered output reaches sink before Run returns.
func (e *Engine) Run(prog program.Program, input []byte, tok *Token, sink output.Sink) Result {
	e.state = State{Status: StatusRunning}

	if e.memLimit > 0 && prog.Len()+tape.DefaultSize+e.capacity > e.memLimit {
		e.log.Warn("run exceeds memory limit",
			"program", prog.Len(), "limit", e.memLimit)
		e.state.Status = StatusOutOfMemory
		return Result{Status: StatusOutOfMemory, State: e.state}
	}

	out, err := output.NewChannel(e.capacity, sink)
	if err != nil {
		e.log.Error("failed to allocate output buffer", "error", err)
		e.state.Status = StatusOutOfMemory
		return Result{Status: StatusOutOfMemory, State: e.state}
	}
	if e.outLog.Enabled(logging.LevelDebug) {
		out.OnFlush(func(n int) {
			e.outLog.Debug("chunk delivered", "bytes", n)
		})
	}
	e.tape = tape.New()

	trace := e.traceLog.Enabled(logging.LevelDebug)
	n := prog.Len()
	var steps int64

	status := StatusRunning
	switch {
	case n == 0:
		status = StatusSuccess
	case tok.Cancelled():
		status = StatusCancelled
	}

	for status == StatusRunning {
		if trace {
			e.traceLog.Debug("step", "pc", e.state.PC, "op", prog.At(e.state.PC), "cell", int(e.tape.Get()))
		}
		if !e.step(prog, input, out) {
			e.traceLog.Debug("no matching bracket", "pc", e.state.PC, "op", prog.At(e.state.PC))
			status = StatusMismatchedBrackets
			break
		}
		steps++

		if e.state.PC == n {
			status = StatusSuccess
		} else if tok.Cancelled() {
			e.traceLog.Debug("cancellation observed", "pc", e.state.PC)
			status = StatusCancelled
		}
	}

	out.FlushRemaining()
	e.state.Status = status

	return Result{
		Status: status,
		State:  e.state,
		Steps:  steps,
		Output: out.Written(),
		Chunks: out.Chunks(),
	}
}

// step executes the instruction at pc. It returns false if a bracket scan
// failed, leaving pc on the offending bracket.
func (e *Engine) step(prog program.Program, input []byte, out *output.Channel) bool {
	pc := e.state.PC

	switch prog.At(pc) {
	case program.OpRight:
		e.tape.Forward()
	case program.OpLeft:
		e.tape.Backward()
	case program.OpInc:
		e.tape.Increment()
	case program.OpDec:
		e.tape.Decrement()
	case program.OpIn:
		if e.state.InputCursor < len(input) {
			e.tape.Set(input[e.state.InputCursor])
			e.state.InputCursor++
		} else {
			e.tape.Set(0)
		}
	case program.OpOut:
		out.Append(e.tape.Get())
	case program.OpOpen, program.OpClose:
		next, ok := Resolve(prog, pc, e.tape.Get())
		if !ok {
			return false
		}
		e.state.PC = next
		return true
	}

	e.state.PC = pc + 1
	return true
}
