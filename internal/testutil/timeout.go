package testutil

import (
	"context"
	"testing"
	"time"
)

// Bounds for contexts handed to runs and servers in tests.
const (
	// RunTimeout bounds a single interpreter run, local or remote. Fixture
	// programs finish in milliseconds; only Infinite needs cancelling.
	RunTimeout = 10 * time.Second

	// ServerTimeout bounds a run server's lifetime in a test.
	ServerTimeout = 30 * time.Second

	// cleanupMargin is left between a context's deadline and the test
	// binary's, so Stop and t.Cleanup still get to run.
	cleanupMargin = 5 * time.Second
)

// RunContext returns a context for one interpreter run. It expires after
// RunTimeout, or earlier if the test binary's deadline is closer.
func RunContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return boundedContext(t, RunTimeout)
}

// ServerContext returns a context for a run server's lifetime. It expires
// after ServerTimeout, or earlier if the test binary's deadline is closer.
func ServerContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return boundedContext(t, ServerTimeout)
}

func boundedContext(t *testing.T, limit time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	testDeadline, ok := t.Deadline()
	return contextBefore(time.Now().Add(limit), testDeadline, ok)
}

// contextBefore returns a context that expires at deadline, or at
// testDeadline less cleanupMargin when that is earlier and still ahead.
func contextBefore(deadline, testDeadline time.Time, hasTestDeadline bool) (context.Context, context.CancelFunc) {
	if hasTestDeadline {
		if margin := testDeadline.Add(-cleanupMargin); margin.Before(deadline) && time.Until(margin) > 0 {
			deadline = margin
		}
	}
	return context.WithDeadline(context.Background(), deadline)
}
