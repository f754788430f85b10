package broadcast

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const writeTimeout = 5 * time.Second

// Server upgrades HTTP connections to receive-only websocket subscriptions.
// Subscribers send nothing the server acts on; the read side exists only to
// detect disconnects.
type Server struct {
	hub *Hub
	log zerolog.Logger
}

func NewServer(hub *Hub, logger zerolog.Logger) *Server {
	return &Server{
		hub: hub,
		log: logger.With().Str("component", "wsserver").Logger(),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Subscribers are local tooling; origin checks belong to a fronting
		// proxy if one is deployed.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket accept failed")
		return
	}

	sub := s.hub.Register()
	defer sub.Close()

	// CloseRead discards inbound frames and cancels the context on
	// disconnect.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case payload := <-sub.C:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Str("subscriber_id", sub.ID).Msg("subscriber write failed")
				_ = conn.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}
