package interp

import (
	"context"
	"sync/atomic"
)

// Token is a cooperative cancellation flag. Any goroutine may cancel it at
// any time; the engine looks at it once per instruction. A nil *Token is
// never cancelled.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{}
}

// Cancel requests that the run stop. It is idempotent.
func (t *Token) Cancel() {
	if t != nil {
		t.cancelled.Store(true)
	}
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Bind cancels t when ctx is done. The returned stop function detaches t
// from ctx and reports whether it did so before ctx fired.
func (t *Token) Bind(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, t.Cancel)
}
