package server

import (
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// pingInterval bounds how long an abandoned peer can hold a quiet stream
// open before the write side notices.
const pingInterval = 30 * time.Second

// handleConversationStream streams conversation list snapshots for one
// user. Each frame is a complete engine snapshot; slow readers skip
// intermediate snapshots rather than falling behind.
func (s *Server) handleConversationStream(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("user")
	if email == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// This endpoint never reads application frames; CloseRead keeps the
	// read side pumping so the context cancels the moment the peer goes
	// away, even with no snapshot traffic.
	ctx := conn.CloseRead(r.Context())

	eng, err := s.engines.acquire(s, email)
	if err != nil {
		s.log.Error().Err(err).Str("user", email).Msg("failed to start engine")
		conn.Close(websocket.StatusInternalError, "engine unavailable")
		return
	}
	defer s.engines.release(email)

	snapshots, cancel := eng.Subscribe()
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, snap); err != nil {
				s.log.Debug().Err(err).Str("user", email).Msg("conversation stream closed")
				return
			}
		}
	}
}

// handleMessageStream streams full message history snapshots for one
// conversation.
func (s *Server) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation")
	if conversationID == "" {
		http.Error(w, "missing conversation parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := conn.CloseRead(r.Context())

	messages, cancel := s.store.WatchMessages(ctx, conversationID)
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case history, ok := <-messages:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, history); err != nil {
				s.log.Debug().Err(err).Str("conversation", conversationID).Msg("message stream closed")
				return
			}
		}
	}
}
