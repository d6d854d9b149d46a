// Package gameserver implements the GameServer registry actor: the single
// process-wide mapping from room id to its resident Room actor, and the
// only component that ever constructs or restores a Room.
package gameserver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pokerroom/server/internal/actor"
	"github.com/pokerroom/server/internal/core/messages"
	"github.com/pokerroom/server/internal/core/ports"
	"github.com/pokerroom/server/internal/core/room"
	"github.com/pokerroom/server/internal/roomid"
)

const DefaultSendTimeout = 2 * time.Second

// Config tunes the registry and every Room it spawns.
type Config struct {
	MailboxCapacity     int
	RoomMailboxCapacity int
	SendTimeout         time.Duration
	Room                room.Config
}

func (c Config) withDefaults() Config {
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = 64
	}
	if c.RoomMailboxCapacity <= 0 {
		c.RoomMailboxCapacity = 32
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

// GameServer is the registry actor's state.
type GameServer struct {
	rooms  map[string]messages.RoomAddr
	store  ports.RoomEventStore
	logger *zap.Logger
	cfg    Config
}

// New constructs registry state ready to be started with actor.Run.
func New(store ports.RoomEventStore, logger *zap.Logger, cfg Config) *GameServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameServer{
		rooms:  make(map[string]messages.RoomAddr),
		store:  store,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

func (g *GameServer) Setup(*actor.Context[messages.GameServerMessage])    {}
func (g *GameServer) TearDown(*actor.Context[messages.GameServerMessage]) {}

// HandleMessage processes exactly one GameServerMessage.
func (g *GameServer) HandleMessage(ctx *actor.Context[messages.GameServerMessage], msg messages.GameServerMessage) {
	switch m := msg.(type) {
	case messages.Create:
		if _, ok := g.create(m.Deck, m.PlayerAddr, m.Player); !ok {
			g.rejectAddr(m.PlayerAddr, messages.CreateGameError)
		}
	case messages.CreateExternal:
		id, ok := g.create(m.Deck, messages.PlayerAddr{}, messages.PlayerInfo{})
		if !ok {
			id = ""
		}
		select {
		case m.Reply <- id:
		default:
			g.logger.Warn("create-external reply channel not ready", zap.String("room_id", id))
		}
	case messages.Join:
		g.join(m)
	}
}

// maxRoomIDAttempts bounds the (vanishingly unlikely) retry loop against a
// freshly minted room id colliding with one already resident.
const maxRoomIDAttempts = 5

func (g *GameServer) create(deck string, playerAddr messages.PlayerAddr, player messages.PlayerInfo) (string, bool) {
	var id string
	for i := 0; i < maxRoomIDAttempts; i++ {
		candidate := roomid.New()
		if _, exists := g.rooms[candidate]; !exists {
			id = candidate
			break
		}
	}
	if id == "" {
		g.logger.Error("failed to allocate a free room id", zap.Int("attempts", maxRoomIDAttempts))
		return "", false
	}

	var rm *room.Room
	if player.ID != "" {
		rm = room.NewWithCreator(id, deck, playerAddr, player, g.store, g.logger, g.cfg.Room)
	} else {
		rm = room.NewEmpty(id, deck, g.store, g.logger, g.cfg.Room)
	}

	addr, _ := actor.Run[messages.RoomMessage](rm, actor.Options{
		MailboxCapacity: g.cfg.RoomMailboxCapacity,
		Logger:          g.logger,
	})
	g.rooms[id] = addr

	g.logger.Info("room created", zap.String("room_id", id), zap.String("deck", deck))
	return id, true
}

func (g *GameServer) join(m messages.Join) {
	if addr, ok := g.rooms[m.RoomID]; ok {
		if addr.Alive() {
			g.forwardJoinResident(addr, m)
			return
		}
		delete(g.rooms, m.RoomID)
	}

	events, err := g.store.Load(context.Background(), m.RoomID)
	if err != nil {
		g.logger.Error("failed to load room history", zap.String("room_id", m.RoomID), zap.Error(err))
		g.reject(m, messages.RoomDoesNotExist)
		return
	}

	rm, ok := room.Restore(m.RoomID, events, g.store, g.logger, g.cfg.Room)
	if !ok {
		g.reject(m, messages.RoomDoesNotExist)
		return
	}

	addr, _ := actor.Run[messages.RoomMessage](rm, actor.Options{
		MailboxCapacity: g.cfg.RoomMailboxCapacity,
		Logger:          g.logger,
	})
	g.rooms[m.RoomID] = addr
	g.logger.Info("room restored", zap.String("room_id", m.RoomID))
	g.forwardJoinFresh(addr, m)
}

// forwardJoinResident forwards a join to a room already tracked in g.rooms.
// A send failure here means the room terminated between the Alive() check
// and this send; the stale entry is dropped and the player is rejected as
// if the room never existed, not with a generic JoinGameError.
func (g *GameServer) forwardJoinResident(addr messages.RoomAddr, m messages.Join) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.SendTimeout)
	defer cancel()
	if err := addr.Send(ctx, messages.JoinRequest{PlayerAddr: m.PlayerAddr, Info: m.Player}); err != nil {
		g.logger.Error("failed to forward join to resident room, dropping stale entry",
			zap.String("room_id", m.RoomID), zap.Error(err))
		delete(g.rooms, m.RoomID)
		g.reject(m, messages.RoomDoesNotExist)
	}
}

// forwardJoinFresh forwards a join to a room this call just created or
// restored. A send failure here is not a stale-entry race — the actor was
// started moments ago — so it is reported as a generic join failure.
func (g *GameServer) forwardJoinFresh(addr messages.RoomAddr, m messages.Join) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.SendTimeout)
	defer cancel()
	if err := addr.Send(ctx, messages.JoinRequest{PlayerAddr: m.PlayerAddr, Info: m.Player}); err != nil {
		g.logger.Error("failed to forward join to freshly started room", zap.String("room_id", m.RoomID), zap.Error(err))
		g.reject(m, messages.JoinGameError)
	}
}

func (g *GameServer) reject(m messages.Join, reason messages.RejectReason) {
	g.rejectAddr(m.PlayerAddr, reason)
}

func (g *GameServer) rejectAddr(addr messages.PlayerAddr, reason messages.RejectReason) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.SendTimeout)
	defer cancel()
	if err := addr.Send(ctx, messages.RejectedMsg{Reason: reason}); err != nil {
		g.logger.Debug("failed to deliver rejection", zap.Error(err))
	}
}
