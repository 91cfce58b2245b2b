// Package tape implements the interpreter's memory: a fixed ring of byte
// cells addressed by a single cursor.
package tape

import "fmt"

// DefaultSize is the number of cells in a standard tape.
const DefaultSize = 65536

// Tape is a circular byte memory. Moving past either end wraps around, and
// cell arithmetic wraps modulo 256.
type Tape struct {
	cells    []byte
	position int
}

// New returns a zeroed tape of DefaultSize cells.
func New() *Tape {
	return &Tape{cells: make([]byte, DefaultSize)}
}

// NewSize returns a zeroed tape of n cells.
func NewSize(n int) (*Tape, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid tape size %d: must be positive", n)
	}
	return &Tape{cells: make([]byte, n)}, nil
}

// Get returns the current cell.
func (t *Tape) Get() byte {
	return t.cells[t.position]
}

// Set overwrites the current cell.
func (t *Tape) Set(v byte) {
	t.cells[t.position] = v
}

// Increment adds one to the current cell, 255 becomes 0.
func (t *Tape) Increment() {
	t.cells[t.position]++
}

// Decrement subtracts one from the current cell, 0 becomes 255.
func (t *Tape) Decrement() {
	t.cells[t.position]--
}

// Forward moves the cursor one cell right.
func (t *Tape) Forward() {
	t.position++
	if t.position == len(t.cells) {
		t.position = 0
	}
}

// Backward moves the cursor one cell left.
func (t *Tape) Backward() {
	if t.position == 0 {
		t.position = len(t.cells)
	}
	t.position--
}

// Position returns the cursor index.
func (t *Tape) Position() int {
	return t.position
}

// Size returns the number of cells.
func (t *Tape) Size() int {
	return len(t.cells)
}
