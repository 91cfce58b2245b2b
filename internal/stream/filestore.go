package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrClosed is returned when appending to a closed FileStore.
var ErrClosed = errors.New("file store closed")

// FileStore provides file-based persistent storage for stream events.
// Events are stored as newline-delimited JSON (NDJSON) with sequence
// numbers assigned on append.
type FileStore struct {
	// path is the NDJSON file
	path string

	// mu protects the file, the index, the sequence counter and closed state
	mu sync.Mutex

	// file is opened for appending
	file *os.File

	// nextSeq is the next sequence number to assign (1-based)
	nextSeq uint64

	// index locates each event line in the file, in file order
	index []indexEntry

	// unordered is set when a loaded file's sequence numbers decrease, so
	// the index cannot be searched
	unordered bool

	// size is the number of bytes of complete lines in the file
	size int64

	// partial is set when the file ends in an unterminated line
	partial bool

	// closed indicates whether Close has been called
	closed bool

	// longPoll notifies subscribers of new events
	longPoll *longPollManager
}

// indexEntry is the byte offset of the line holding event seq.
type indexEntry struct {
	seq    uint64
	offset int64
}

// longPollManager manages channels waiting for new events.
type longPollManager struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

func (lp *longPollManager) notify() {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	for _, ch := range lp.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (lp *longPollManager) register(ch chan struct{}) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.waiters = append(lp.waiters, ch)
}

func (lp *longPollManager) unregister(ch chan struct{}) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	for i, w := range lp.waiters {
		if w == ch {
			lp.waiters = append(lp.waiters[:i], lp.waiters[i+1:]...)
			break
		}
	}
}

// NewFileStore opens or creates the NDJSON file at path.
// If the file exists, it reads existing events to determine the next sequence number.
func NewFileStore(path string) (*FileStore, error) {
	return openFileStore(path, false)
}

// CreateFileStore creates the NDJSON file at path, discarding any events
// already in it. Sequence numbers start again at 1.
func CreateFileStore(path string) (*FileStore, error) {
	return openFileStore(path, true)
}

func openFileStore(path string, truncate bool) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stream directory: %w", err)
	}

	flags := os.O_APPEND | os.O_CREATE | os.O_RDWR
	if truncate {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream file: %w", err)
	}

	fs := &FileStore{
		path:     path,
		file:     file,
		longPoll: &longPollManager{},
	}
	if err := fs.load(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to scan existing events: %w", err)
	}
	return fs, nil
}

// load indexes the events already in the file.
func (fs *FileStore) load() error {
	if _, err := fs.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var maxSeq uint64
	br := bufio.NewReader(fs.file)
	for {
		line, err := br.ReadBytes('\n')
		if err == io.EOF {
			fs.partial = len(line) > 0
			break
		}
		if err != nil {
			return err
		}

		var head struct {
			Seq uint64 `json:"seq"`
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && json.Unmarshal(trimmed, &head) == nil {
			if n := len(fs.index); n > 0 && head.Seq < fs.index[n-1].seq {
				fs.unordered = true
			}
			fs.index = append(fs.index, indexEntry{seq: head.Seq, offset: fs.size})
			maxSeq = max(maxSeq, head.Seq)
		}
		fs.size += int64(len(line))
	}

	fs.nextSeq = maxSeq + 1
	return nil
}

// Append writes an event to the stream file with an assigned sequence number.
// The event's Seq field will be updated with the assigned sequence number.
// This operation is atomic with respect to other Append and Read operations.
func (fs *FileStore) Append(event *Event) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.closed {
		return ErrClosed
	}

	// Assign sequence number
	event.Seq = fs.nextSeq

	// Serialize event
	data, err := json.Marshal(event)
	if err != nil {
		event.Seq = 0
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	line := append(data, '\n')

	// Terminate a torn line left by an earlier writer
	offset := fs.size
	if fs.partial {
		line = append([]byte{'\n'}, line...)
	}

	n, err := fs.file.Write(line)
	if err != nil {
		event.Seq = 0
		// Whatever reached the file is now an unterminated line
		fs.partial = fs.partial || n > 0
		return fmt.Errorf("failed to append event: %w", err)
	}
	if fs.partial {
		offset, _ = fs.file.Seek(0, io.SeekCurrent)
		offset -= int64(len(data) + 1)
		fs.partial = false
	}

	fs.index = append(fs.index, indexEntry{seq: event.Seq, offset: offset})
	fs.size = offset + int64(len(data)+1)
	fs.nextSeq++

	// Notify subscribers
	fs.longPoll.notify()

	return nil
}

// Read reads events starting from the given sequence number (inclusive).
// Returns all events with Seq >= fromSeq.
// If fromSeq is 0, all events are returned.
// Only the part of the file holding those events is read, and appends are
// not blocked while it is.
func (fs *FileStore) Read(fromSeq uint64) ([]*Event, error) {
	fs.mu.Lock()
	start, end := fs.span(fromSeq)
	fs.mu.Unlock()

	events := []*Event{}
	if start >= end {
		return events, nil
	}

	f, err := os.Open(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return events, nil
		}
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	defer f.Close()

	all, err := ReadEvents(io.NewSectionReader(f, start, end-start))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	for _, event := range all {
		if event.Seq >= fromSeq {
			events = append(events, event)
		}
	}
	return events, nil
}

// span returns the byte range of the file holding events from fromSeq on.
// fs.mu must be held.
func (fs *FileStore) span(fromSeq uint64) (start, end int64) {
	if fs.unordered {
		return 0, fs.size
	}
	i := sort.Search(len(fs.index), func(i int) bool {
		return fs.index[i].seq >= fromSeq
	})
	if i == len(fs.index) {
		return fs.size, fs.size
	}
	return fs.index[i].offset, fs.size
}

// ReadFile reads every well-formed event from an NDJSON file. Malformed
// lines are skipped.
func ReadFile(path string) ([]*Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadEvents(f)
}

// ReadEvents decodes NDJSON events from r, skipping malformed lines.
func ReadEvents(r io.Reader) ([]*Event, error) {
	br := bufio.NewReader(r)
	var events []*Event
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var event Event
			if jsonErr := json.Unmarshal(line, &event); jsonErr == nil {
				events = append(events, &event)
			}
		}
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
	}
}

// Subscribe returns a channel that receives events as they are written.
// Appends wake subscribers immediately; the store is also polled at the
// specified interval.
// The channel is closed when the context is canceled.
// fromSeq specifies the starting sequence number (inclusive); use 0 for all events.
func (fs *FileStore) Subscribe(ctx context.Context, fromSeq uint64, pollInterval time.Duration) (<-chan *Event, error) {
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive: %s", pollInterval)
	}

	ch := make(chan *Event, 100) // Buffer to prevent blocking writers

	// Register before the initial read so no append is missed
	notifyCh := make(chan struct{}, 1)
	fs.longPoll.register(notifyCh)

	go func() {
		defer close(ch)
		defer fs.longPoll.unregister(notifyCh)

		nextSeq := fromSeq
		if nextSeq == 0 {
			nextSeq = 1
		}

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		deliver := func() bool {
			events, err := fs.Read(nextSeq)
			if err != nil {
				return true
			}
			for _, event := range events {
				select {
				case <-ctx.Done():
					return false
				case ch <- event:
					if event.Seq >= nextSeq {
						nextSeq = event.Seq + 1
					}
				}
			}
			return true
		}

		// Do an initial read immediately
		if !deliver() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-notifyCh:
			case <-ticker.C:
			}
			if !deliver() {
				return
			}
		}
	}()

	return ch, nil
}

// LastSeq returns the sequence number of the last event written,
// or 0 if no events have been written.
func (fs *FileStore) LastSeq() uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.nextSeq <= 1 {
		return 0
	}
	return fs.nextSeq - 1
}

// Close closes the file store and releases resources.
// It is safe to call Close multiple times.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.closed {
		return nil
	}
	fs.closed = true

	return fs.file.Close()
}

// Path returns the path to the stream file.
func (fs *FileStore) Path() string {
	return fs.path
}
