// Package integration holds integration and end-to-end tests, gated behind
// the "integration" and "e2e" build tags.
package integration
