// Package program turns raw source text into the instruction stream the
// interpreter executes. Every character outside the eight-symbol alphabet is
// a comment and is dropped.
package program

import (
	"errors"
	"fmt"
)

// Instruction symbols.
const (
	OpRight byte = '>'
	OpLeft  byte = '<'
	OpInc   byte = '+'
	OpDec   byte = '-'
	OpIn    byte = ','
	OpOut   byte = '.'
	OpOpen  byte = '['
	OpClose byte = ']'
)

// ErrTooLarge is returned by FilterLimit when the filtered program would not
// fit in the allowed number of bytes.
var ErrTooLarge = errors.New("program too large")

// Program is an immutable, filtered instruction sequence.
type Program struct {
	code []byte
}

// IsInstruction reports whether c belongs to the instruction alphabet.
func IsInstruction(c byte) bool {
	switch c {
	case OpRight, OpLeft, OpInc, OpDec, OpIn, OpOut, OpOpen, OpClose:
		return true
	}
	return false
}

// Filter returns the instructions in src, in order.
func Filter(src string) Program {
	return FilterBytes([]byte(src))
}

// FilterBytes is Filter for a byte slice. src is not retained.
func FilterBytes(src []byte) Program {
	code := make([]byte, 0, countInstructions(src))
	for _, c := range src {
		if IsInstruction(c) {
			code = append(code, c)
		}
	}
	return Program{code: code}
}

// FilterLimit filters src, failing with ErrTooLarge instead of allocating a
// program longer than max bytes.
func FilterLimit(src string, max int) (Program, error) {
	n := countInstructions([]byte(src))
	if max > 0 && n > max {
		return Program{}, fmt.Errorf("%w: %d instructions exceeds limit of %d", ErrTooLarge, n, max)
	}
	return Filter(src), nil
}

func countInstructions(src []byte) int {
	n := 0
	for _, c := range src {
		if IsInstruction(c) {
			n++
		}
	}
	return n
}

// Len returns the number of instructions.
func (p Program) Len() int {
	return len(p.code)
}

// At returns the instruction at index i.
func (p Program) At(i int) byte {
	return p.code[i]
}

// String returns the program text.
func (p Program) String() string {
	return string(p.code)
}

// Balanced reports whether every '[' has a matching ']' at the same depth.
// The interpreter never consults this; it is a diagnostic for hosts.
func (p Program) Balanced() bool {
	depth := 0
	for _, c := range p.code {
		switch c {
		case OpOpen:
			depth++
		case OpClose:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
