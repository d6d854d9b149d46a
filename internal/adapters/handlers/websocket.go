// Package handlers is the HTTP boundary: it upgrades connections to
// websockets and exposes the create-room form. It holds no game logic of
// its own — every request is translated into a message for the
// GameServer/Player actors.
package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pokerroom/server/internal/adapters/remote"
	"github.com/pokerroom/server/internal/core/messages"
	"github.com/pokerroom/server/internal/core/player"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades inbound connections and spawns one Player actor
// per socket.
type WebSocketHandler struct {
	gameServer messages.GameServerAddr
	logger     *zap.Logger
	playerCfg  player.Config
}

// NewWebSocketHandler builds a handler bound to the given registry address.
func NewWebSocketHandler(gameServer messages.GameServerAddr, logger *zap.Logger, pingPeriod time.Duration, sendTimeout time.Duration, mailboxCapacity int) *WebSocketHandler {
	return &WebSocketHandler{
		gameServer: gameServer,
		logger:     logger,
		playerCfg: player.Config{
			MailboxCapacity: mailboxCapacity,
			PingPeriod:      pingPeriod,
			SendTimeout:     sendTimeout,
		},
	}
}

// ServeHTTP upgrades the request to a websocket and hands it to a fresh
// Player actor. The socket's lifetime is then owned by that actor.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := remote.NewConnection(ws, h.logger)
	player.Run(conn, h.gameServer, h.logger, h.playerCfg)
}
