package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/thruflo/bfi/internal/interp"
	"github.com/thruflo/bfi/internal/runner"
	"github.com/thruflo/bfi/internal/stream"
)

// maxSubmitBytes bounds the body of POST /runs.
const maxSubmitBytes = 32 << 20

// storePollInterval is how often waiting readers re-check a run's event log
// in addition to being woken by appends.
const storePollInterval = 250 * time.Millisecond

func summarize(entry *runner.Entry) stream.RunSummary {
	summary := stream.RunSummary{
		ID:        entry.Run.ID,
		Status:    interp.StatusRunning.String(),
		StartedAt: entry.Run.StartedAt,
	}
	if res, finished := entry.Run.Result(); finished {
		summary.Status = res.Status.String()
		finishedAt := entry.Run.FinishedAt()
		summary.FinishedAt = &finishedAt
	}
	if entry.Store != nil {
		summary.LastSeq = entry.Store.LastSeq()
	}
	return summary
}

// handleListRuns handles GET /runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.List()
	runs := make([]stream.RunSummary, 0, len(entries))
	for _, entry := range entries {
		runs = append(runs, summarize(entry))
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleCreateRun handles POST /runs. The run starts immediately and its
// events are recorded to <data dir>/<id>.ndjson.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.submits.allow(w, r); !ok {
		return
	}

	var req stream.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	run := s.runner.Start(s.ctx, runner.Request{
		Source: req.Source,
		Input:  []byte(req.Input),
	})

	store, err := stream.NewFileStore(filepath.Join(s.dataDir, run.ID+".ndjson"))
	if err != nil {
		s.log.Error("failed to create event log", "run", run.ID, "error", err)
		run.Cancel()
		go drainEvents(run)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	entry := s.registry.Add(run, store)
	s.recorders.Add(1)
	go s.record(entry)

	s.log.Info("run submitted", "run", run.ID, "source_bytes", len(req.Source), "input_bytes", len(req.Input))
	writeJSON(w, http.StatusCreated, stream.SubmitResponse{ID: run.ID})
}

// record appends a run's events to its log until the run finishes.
func (s *Server) record(entry *runner.Entry) {
	defer s.recorders.Done()
	for event := range entry.Run.Events() {
		err := entry.WithLog(func(store *stream.FileStore) error {
			return store.Append(event)
		})
		if err != nil {
			s.log.Warn("failed to record event", "run", entry.Run.ID, "type", string(event.Type), "error", err)
		}
	}
}

func drainEvents(run *runner.Run) {
	for range run.Events() {
	}
}

// lookupRun resolves the {id} path value, writing 404 if it is unknown.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*runner.Entry, bool) {
	entry, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	return entry, true
}

// handleEvents handles GET /runs/{id}/events. Events with seq >= from_seq
// are returned as a JSON array. With wait=1 an empty result blocks until an
// event is appended or the long-poll timeout passes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var fromSeq uint64
	if v := query.Get("from_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid from_seq", http.StatusBadRequest)
			return
		}
		fromSeq = n
	}
	wait := query.Get("wait") == "1" || query.Get("wait") == "true"

	events, err := entry.Store.Read(fromSeq)
	if err == nil && len(events) == 0 && wait {
		events, err = s.waitForEvents(r.Context(), entry.Store, fromSeq)
	}
	if err != nil {
		s.log.Error("failed to read events", "run", entry.Run.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*stream.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// waitForEvents blocks until the store holds an event with seq >= fromSeq,
// then returns every such event.
func (s *Server) waitForEvents(ctx context.Context, store *stream.FileStore, fromSeq uint64) ([]*stream.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.longPollTimeout)
	defer cancel()

	sub, err := store.Subscribe(ctx, fromSeq, storePollInterval)
	if err != nil {
		return nil, err
	}
	select {
	case <-sub:
	case <-ctx.Done():
		return []*stream.Event{}, nil
	}
	cancel()
	return store.Read(fromSeq)
}

// handleCancel handles POST /runs/{id}/cancel. The cancel command and its
// ack are both recorded to the run's event log.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	cmd := stream.NewCancelCommand(uuid.NewString())
	ack, err := s.applyCommand(entry, cmd)
	if errors.Is(err, runner.ErrFinished) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		s.log.Error("failed to record command", "run", entry.Run.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ack.Status != stream.AckStatusSuccess {
		http.Error(w, ack.Error, http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusAccepted, stream.CancelResponse{
		Status:    "cancelling",
		CommandID: cmd.ID,
	})
}

// applyCommand records cmd, hands it to the run and records the ack. The
// log is held throughout, so the ack precedes any status the command causes.
func (s *Server) applyCommand(entry *runner.Entry, cmd *stream.Command) (*stream.Ack, error) {
	var ack *stream.Ack
	err := entry.WithLog(func(store *stream.FileStore) error {
		if err := appendEvent(store, entry.Run.ID, stream.MessageTypeCommand, cmd); err != nil {
			return err
		}
		ack = entry.Run.Handle(cmd)
		return appendEvent(store, entry.Run.ID, stream.MessageTypeAck, ack)
	})
	if err != nil {
		return nil, err
	}
	return ack, nil
}

func appendEvent(store *stream.FileStore, runID string, msgType stream.MessageType, data any) error {
	event, err := stream.NewEvent(msgType, data)
	if err != nil {
		return err
	}
	event.RunID = runID
	if err := store.Append(event); err != nil {
		if errors.Is(err, stream.ErrClosed) {
			return runner.ErrFinished
		}
		return err
	}
	return nil
}
