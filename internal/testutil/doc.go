// Package testutil provides shared test utilities for bfi.
//
// # Fixtures
//
// The fixtures.go file provides sample programs:
//
//   - HelloWorld, Cat, Reverse, Infinite - program sources
//   - Fixtures() - programs with their input, expected output and status
//   - FixtureSources() - the same fixtures keyed by name
//
// # Environment Helpers
//
// The env.go file provides test environment setup:
//
//   - SetupTestDir(t) - creates a temp directory with .bfi/config.yaml
//   - WriteConfig(t, base, cfg) - saves a config under base/.bfi
//   - WriteProgram(t, dir, name, source) - writes a program file
//   - ReadEvents(t, path) - reads a recorded NDJSON event log
//   - FindProjectRoot(t) - finds the directory holding go.mod
//   - MustMarshalJSON(t, v), MustUnmarshalJSON(t, data, v)
//   - WriteTestFile(t, base, path, content) - writes a file in test dir
//
// # Assertions
//
// The assertions.go file checks recorded runs:
//
//   - AssertStatus(t, st, status) - status and its message
//   - AssertReplay(t, events, output, status), AssertFixture(t, events, f)
//   - AssertOutput(t, events, output) - concatenated chunks
//   - AssertChunks(t, events, capacity) - chunk numbering and sizes
//   - AssertEventTypes(t, events, types...), AssertSequenced(t, events, first)
//
// # Timeouts
//
// RunContext and ServerContext return contexts that expire after RunTimeout
// and ServerTimeout, or before the test binary's own deadline when that is
// closer.
//
// # Usage
//
//	func TestSomething(t *testing.T) {
//	    dir, cfg := testutil.SetupTestDir(t)
//	    for _, f := range testutil.Fixtures() {
//	        // ... run f.Source with f.Input, recording to a file in dir ...
//	        testutil.AssertFixture(t, testutil.ReadEvents(t, path), f)
//	    }
//	}
package testutil
