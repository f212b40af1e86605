// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/quizduel/internal/events"
	"github.com/jason-s-yu/quizduel/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Subprotocol clients must request on /session/ws.
const Subprotocol = "quizduel"

// Custom close codes.
const (
	BadSubprotocolError   = 3000
	InvalidAuthTokenError = 3001
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// handleWS streams the caller's events. The socket is push-only; clients still
// act through the HTTP routes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	player, authErr := s.authenticate(r)

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.logger.WithError(err).Warn("websocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "unexpected handler exit")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must use the '"+Subprotocol+"' subprotocol")
		return
	}
	if authErr != nil {
		c.Close(InvalidAuthTokenError, "invalid auth token")
		return
	}

	log := s.logger.WithField("player_id", player.ID)
	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, r.URL.Path, player.ID)

	sub := s.hub.Subscribe(player.ID)
	defer sub.Close()

	// reads are only used to observe the client closing
	ctx := c.CloseRead(r.Context())
	err = writePump(ctx, c, sub, log)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, r.URL.Path, err)

	c.Close(websocket.StatusNormalClosure, "")
}

// writePump forwards subscription events to the socket and keeps it alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, sub *events.Subscription, log logrus.FieldLogger) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.WithError(err).Warn("failed to marshal event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
