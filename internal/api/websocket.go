package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleStream upgrades the connection and forwards the event stream. An
// owner_id query parameter narrows the stream to one owner; without it the
// client sees every event. Slow consumers lose events instead of blocking
// the trading path.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.respondError(w, http.StatusServiceUnavailable, "event stream is not enabled")
		return
	}

	ownerFilter := r.URL.Query().Get("owner_id")

	// Subscribe before the handshake completes so clients never miss
	// events published right after the dial returns.
	stream, cancel := s.bus.Subscribe()
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Readers only tell us when the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for event := range stream {
		if ownerFilter != "" && event.OwnerID != ownerFilter {
			continue
		}

		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}
