package interp

import "github.com/thruflo/bfi/internal/program"

// Resolve returns the next program counter for the bracket instruction at
// pc, given the current cell value. ok is false when the matching bracket
// does not exist within the program.
//
// At '[' a zero cell skips past the matching ']'; at ']' a non-zero cell
// returns to the matching '[' so the loop condition is tested again. Any
// other combination falls through to pc+1. Targets are found by scanning on
// every call; nothing is cached between iterations.
func Resolve(p program.Program, pc int, cell byte) (next int, ok bool) {
	switch p.At(pc) {
	case program.OpOpen:
		if cell != 0 {
			return pc + 1, true
		}
		end, found := matchForward(p, pc)
		if !found {
			return pc, false
		}
		return end + 1, true

	case program.OpClose:
		if cell == 0 {
			return pc + 1, true
		}
		start, found := matchBackward(p, pc)
		if !found {
			return pc, false
		}
		return start, true
	}
	return pc + 1, true
}

// matchForward finds the ']' closing the '[' at pc.
func matchForward(p program.Program, pc int) (int, bool) {
	depth := 1
	for i := pc + 1; i < p.Len(); i++ {
		switch p.At(i) {
		case program.OpOpen:
			depth++
		case program.OpClose:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// matchBackward finds the '[' opening the ']' at pc. Index 0 is a valid
// match.
func matchBackward(p program.Program, pc int) (int, bool) {
	depth := 1
	for i := pc - 1; i >= 0; i-- {
		switch p.At(i) {
		case program.OpClose:
			depth++
		case program.OpOpen:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
