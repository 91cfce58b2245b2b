package interp

import "fmt"

// Status is the state of a run. Every status except StatusRunning is
// terminal.
type Status int

const (
	StatusRunning            Status = iota
	StatusSuccess                   // Program counter reached the end
	StatusMismatchedBrackets        // A bracket scan ran off the program
	StatusOutOfMemory               // Working memory could not be allocated
	StatusCancelled                 // Caller cancelled between instructions
)

var statusNames = map[Status]string{
	StatusRunning:            "running",
	StatusSuccess:            "success",
	StatusMismatchedBrackets: "mismatched_brackets",
	StatusOutOfMemory:        "out_of_memory",
	StatusCancelled:          "cancelled",
}

// String returns the wire name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	_, known := statusNames[s]
	return known && s != StatusRunning
}

// Message returns a human-readable description of the status.
func (s Status) Message() string {
	switch s {
	case StatusRunning:
		return "Running."
	case StatusSuccess:
		return "Finished."
	case StatusMismatchedBrackets:
		return "Mismatched brackets."
	case StatusOutOfMemory:
		return "Out of memory."
	case StatusCancelled:
		return "Cancelled."
	default:
		return s.String()
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(text))
}
