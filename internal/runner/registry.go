package runner

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/thruflo/bfi/internal/stream"
)

// Entry is a registered run and the event log it is recorded to.
type Entry struct {
	Run   *Run
	Store *stream.FileStore

	// logMu serializes writers to Store
	logMu sync.Mutex
}

// WithLog calls f with the entry's event log. Events appended by f are not
// interleaved with events appended by other WithLog calls.
func (e *Entry) WithLog(f func(store *stream.FileStore) error) error {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	return f(e.Store)
}

// Registry tracks runs by ID.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add registers a run with its event log.
func (r *Registry) Add(run *Run, store *stream.FileStore) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &Entry{Run: run, Store: store}
	r.entries[run.ID] = entry
	return entry
}

// Get returns the entry for id, or ErrUnknownRun.
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrUnknownRun
	}
	return entry, nil
}

// List returns all entries, oldest first.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Run.StartedAt.Before(entries[j].Run.StartedAt)
	})
	return entries
}

// Len returns the number of registered runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Prune removes finished runs that finished before cutoff, closing their
// stores and deleting the log files behind them. It returns the number
// removed.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	var pruned []*Entry
	for id, e := range r.entries {
		finished := e.Run.FinishedAt()
		if !finished.IsZero() && finished.Before(cutoff) {
			pruned = append(pruned, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range pruned {
		if e.Store == nil {
			continue
		}
		e.Store.Close()
		if err := os.Remove(e.Store.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.Run.log.Warn("failed to remove event log", "path", e.Store.Path(), "error", err)
		}
	}
	return len(pruned)
}

// CloseAll closes every entry's store, leaving the log files in place.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Store != nil {
			e.Store.Close()
		}
	}
}

// CancelAll cancels every run that is still going.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.Run.Cancel()
	}
}
