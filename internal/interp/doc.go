// Package interp executes filtered tape-language programs.
//
// An Engine owns a Tape, an input cursor and an output.Channel for the
// duration of one run. Each step executes one instruction:
//
//   - '>' and '<' move the tape cursor, wrapping at either end
//   - '+' and '-' change the current cell modulo 256
//   - ',' reads the next input byte, or 0 once input is exhausted
//   - '.' appends the current cell to the output channel
//   - '[' and ']' are resolved by scanning the program for the matching
//     bracket each time they execute (see Resolve)
//
// A run ends with exactly one terminal Status. After every step the engine
// checks, in order: a failed bracket scan (StatusMismatchedBrackets), the end
// of the program (StatusSuccess), and the cancellation Token
// (StatusCancelled). Buffered output is always flushed to the sink before Run
// returns, whatever the outcome.
//
// An Engine is not safe for concurrent runs. Callers that run programs in the
// background own that goroutine; see package runner.
package interp
