package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thruflo/bfi/internal/runner"
	"github.com/thruflo/bfi/internal/stream"
)

const (
	// wsWriteWait is the time allowed to write one message to the peer.
	wsWriteWait = 10 * time.Second
	// wsMaxCommandBytes bounds a command frame from the peer.
	wsMaxCommandBytes = 4096
)

// upgrader accepts any origin; the token gates access.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket handles GET /runs/{id}/ws. The run's events from
// from_seq onwards are sent as JSON text frames and the connection is
// closed normally after the status event. Frames from the peer are decoded
// as commands and applied to the run; their acks arrive as events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	var fromSeq uint64
	if v := r.URL.Query().Get("from_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid from_seq", http.StatusBadRequest)
			return
		}
		fromSeq = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.log.Warn("websocket upgrade failed", "run", entry.Run.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	go s.readCommands(ctx, cancel, conn, entry)

	events, err := entry.Store.Subscribe(ctx, fromSeq, storePollInterval)
	if err != nil {
		s.log.Error("failed to subscribe", "run", entry.Run.ID, "error", err)
		return
	}

	for event := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(event); err != nil {
			s.log.Debug("websocket write failed", "run", entry.Run.ID, "error", err)
			return
		}
		if event.Type == stream.MessageTypeStatus {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			return
		}
	}

	// Server shutting down
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

// readCommands applies commands sent by the peer until the connection
// fails or ctx is done. It cancels the connection's context on return.
func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, entry *runner.Entry) {
	defer cancel()
	conn.SetReadLimit(wsMaxCommandBytes)

	for ctx.Err() == nil {
		var cmd stream.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.log.Debug("websocket read failed", "run", entry.Run.ID, "error", err)
			}
			return
		}
		if cmd.ID == "" {
			cmd.ID = uuid.NewString()
		}

		ack, err := s.applyCommand(entry, &cmd)
		if err != nil {
			s.log.Warn("failed to apply command", "run", entry.Run.ID, "command", cmd.ID, "error", err)
			continue
		}
		s.log.Info("command applied", "run", entry.Run.ID, "command", cmd.ID, "status", string(ack.Status))
	}
}
