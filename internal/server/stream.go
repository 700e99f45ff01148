package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/btouchard/oibench/internal/broadcast"
)

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.stream(w, r, e.Channel, websocket.MessageBinary)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.batch.Updates(), websocket.MessageText)
}

// stream upgrades the request and forwards ch to the socket until the
// channel closes or the peer goes away. Server shutdown drops the
// connection without a close handshake.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, ch *broadcast.Channel, typ websocket.MessageType) {
	if ch.IsClosed() {
		http.Error(w, "stream closed", http.StatusGone)
		return
	}

	s.streams.Add(1)
	defer s.streams.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		slog.Debug("websocket upgrade failed", "channel", ch.Name(), "error", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	// Observers never send; CloseRead answers pings and cancels ctx when
	// the peer closes the connection.
	ctx := conn.CloseRead(r.Context())

	slog.Debug("observer attached", "channel", ch.Name(), "remote", r.RemoteAddr)

	err = ch.Stream(ctx, broadcast.SinkFunc(func(ctx context.Context, msg []byte) error {
		return conn.Write(ctx, typ, msg)
	}))

	if err == nil || errors.Is(err, broadcast.ErrClosed) {
		_ = conn.Close(websocket.StatusNormalClosure, "stream closed")
		return
	}
	slog.Debug("observer detached", "channel", ch.Name(), "remote", r.RemoteAddr, "error", err)
}
