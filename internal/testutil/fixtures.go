package testutil

import "github.com/thruflo/bfi/internal/interp"

// HelloWorld prints "Hello World!\n".
const HelloWorld = `++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++.`

// Cat copies its input to its output.
const Cat = `,[.,]`

// Reverse prints its input backwards.
const Reverse = `>,[>,]<[.<]`

// Infinite never terminates and never produces output.
const Infinite = `+[]`

// Fixture is a program together with the input it is run on and the
// result it must produce.
type Fixture struct {
	Name   string
	Source string
	Input  string
	Output string
	Status interp.Status
}

// Fixtures returns programs covering each way a run can end, other than
// cancellation.
func Fixtures() []Fixture {
	return []Fixture{
		{Name: "empty", Source: "", Status: interp.StatusSuccess},
		{Name: "comments only", Source: "this program does nothing", Status: interp.StatusSuccess},
		{Name: "hello world", Source: HelloWorld, Output: "Hello World!\n", Status: interp.StatusSuccess},
		{Name: "cat", Source: Cat, Input: "echo", Output: "echo", Status: interp.StatusSuccess},
		{Name: "reverse", Source: Reverse, Input: "stressed", Output: "desserts", Status: interp.StatusSuccess},
		{Name: "read past end", Source: "+,.", Output: "\x00", Status: interp.StatusSuccess},
		{Name: "three", Source: "+++.", Output: "\x03", Status: interp.StatusSuccess},
		{Name: "wrapping decrement", Source: "-.", Output: "\xff", Status: interp.StatusSuccess},
		{Name: "entered unmatched open", Source: "+[", Status: interp.StatusSuccess},
		{Name: "output before unmatched close", Source: "+.+]", Output: "\x01", Status: interp.StatusMismatchedBrackets},
		{Name: "unmatched close", Source: "+]", Status: interp.StatusMismatchedBrackets},
		{Name: "skipped unmatched open", Source: "[", Status: interp.StatusMismatchedBrackets},
	}
}

// FixtureSources returns the fixtures keyed by name.
func FixtureSources() map[string]Fixture {
	m := make(map[string]Fixture)
	for _, f := range Fixtures() {
		m[f.Name] = f
	}
	return m
}
