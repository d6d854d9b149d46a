package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pokerroom/server/internal/core/messages"
)

// RoomHandler serves the create-room form: the one HTTP-only way to
// allocate a room with no socket-bound creator.
type RoomHandler struct {
	gameServer  messages.GameServerAddr
	logger      *zap.Logger
	sendTimeout time.Duration
}

// NewRoomHandler builds a handler bound to the given registry address.
func NewRoomHandler(gameServer messages.GameServerAddr, logger *zap.Logger, sendTimeout time.Duration) *RoomHandler {
	return &RoomHandler{gameServer: gameServer, logger: logger, sendTimeout: sendTimeout}
}

type createRoomRequest struct {
	Deck string `json:"deck"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
}

// Create allocates a new empty room and returns its id.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Deck == "" {
		http.Error(w, "deck is required", http.StatusBadRequest)
		return
	}

	reply := make(chan string, 1)
	ctx, cancel := context.WithTimeout(r.Context(), h.sendTimeout)
	defer cancel()

	if err := h.gameServer.Send(ctx, messages.CreateExternal{Deck: req.Deck, Reply: reply}); err != nil {
		h.logger.Error("failed to reach game server", zap.Error(err))
		http.Error(w, "could not create room", http.StatusInternalServerError)
		return
	}

	select {
	case roomID := <-reply:
		if roomID == "" {
			http.Error(w, "could not allocate a room", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(createRoomResponse{RoomID: roomID})
	case <-ctx.Done():
		http.Error(w, "timed out creating room", http.StatusGatewayTimeout)
	}
}
