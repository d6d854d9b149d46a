// Package room implements the Room actor: the voting state machine and
// membership set for one planning-poker session.
package room

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pokerroom/server/internal/actor"
	"github.com/pokerroom/server/internal/core/domain"
	"github.com/pokerroom/server/internal/core/messages"
	"github.com/pokerroom/server/internal/core/ports"
)

// Default tuning, overridable per Config. The idle grace period matches
// spec's "fixed at 5 minutes" baseline but is exposed as a parameter, not a
// contract (source ambiguity noted in the design docs).
const (
	DefaultIdleGrace   = 5 * time.Minute
	DefaultSendTimeout = 2 * time.Second
)

// Config tunes a Room's timing behaviour.
type Config struct {
	IdleGrace   time.Duration
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleGrace <= 0 {
		c.IdleGrace = DefaultIdleGrace
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

type gamePlayer struct {
	addr messages.PlayerAddr
	info messages.PlayerInfo
	vote *string
}

func (p *gamePlayer) state() domain.PlayerState {
	return domain.PlayerState{ID: p.info.ID, Name: p.info.Name, Voter: p.info.Voter}
}

// Room is the per-session actor state. It satisfies actor.Actor[messages.RoomMessage].
type Room struct {
	id      string
	deck    string
	players map[string]*gamePlayer
	open    bool

	store  ports.RoomEventStore
	logger *zap.Logger
	cfg    Config
}

func newRoom(id, deck string, store ports.RoomEventStore, logger *zap.Logger, cfg Config) *Room {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Room{
		id:      id,
		deck:    deck,
		players: make(map[string]*gamePlayer),
		store:   store,
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
}

// NewEmpty constructs a freshly created room with no members, persisting its
// Created event. This is the path taken by an explicit create request with
// no socket-bound creator (the HTTP create-room form).
func NewEmpty(id, deck string, store ports.RoomEventStore, logger *zap.Logger, cfg Config) *Room {
	r := newRoom(id, deck, store, logger, cfg)
	r.persist(context.Background(), domain.Created(deck))
	return r
}

// NewWithCreator constructs a freshly created room whose sole initial member
// is the creator, persisting both its Created and PlayerJoined events. The
// creator receives Welcome from Setup, not from a later JoinRequest.
func NewWithCreator(id, deck string, creatorAddr messages.PlayerAddr, creator messages.PlayerInfo, store ports.RoomEventStore, logger *zap.Logger, cfg Config) *Room {
	r := newRoom(id, deck, store, logger, cfg)
	r.players[creator.ID] = &gamePlayer{addr: creatorAddr, info: creator}
	r.persist(context.Background(), domain.Created(deck))
	r.persist(context.Background(), domain.PlayerJoinedEvent(creator.ID))
	return r
}

// Restore rebuilds an empty room from its durable event log. It returns
// (nil, false) if the log is corrupt: missing its leading Created event, or
// carrying more than one. Restored rooms never replay past membership —
// players must re-join.
func Restore(id string, events []domain.RoomEvent, store ports.RoomEventStore, logger *zap.Logger, cfg Config) (*Room, bool) {
	if len(events) == 0 || events[0].Kind != domain.EventCreated {
		return nil, false
	}
	for _, evt := range events[1:] {
		if evt.Kind == domain.EventCreated {
			return nil, false
		}
	}
	return newRoom(id, events[0].Deck, store, logger, cfg), true
}

// ID returns the room's identifier.
func (r *Room) ID() string { return r.id }

// Setup sends Welcome to whatever membership the room was constructed with
// (only non-empty for NewWithCreator's single creator).
func (r *Room) Setup(ctx *actor.Context[messages.RoomMessage]) {
	if len(r.players) == 0 {
		return
	}
	welcome := messages.Welcome{
		RoomID:  r.id,
		Room:    ctx.Addr(),
		State:   r.gameState(),
		Players: r.playerStates(),
	}
	for _, p := range r.sortedPlayers() {
		r.sendToPlayer(context.Background(), p, welcome)
	}
}

// TearDown logs the room's closure.
func (r *Room) TearDown(ctx *actor.Context[messages.RoomMessage]) {
	r.logger.Info("room closed", zap.String("room_id", r.id))
}

// HandleMessage processes exactly one RoomMessage.
func (r *Room) HandleMessage(ctx *actor.Context[messages.RoomMessage], msg messages.RoomMessage) {
	switch m := msg.(type) {
	case messages.JoinRequest:
		r.addPlayer(ctx, m.PlayerAddr, m.Info)
	case messages.PlayerLeft:
		r.removePlayer(ctx, m.PlayerID)
	case messages.PlayerVoted:
		r.setVote(m.PlayerID, m.Vote)
	case messages.UpdatePlayer:
		r.updatePlayer(m.PlayerID, m.Voter, m.Name)
	case messages.ForceOpen:
		r.forceOpen()
	case messages.Restart:
		r.restart()
	case messages.Close:
		r.logger.Info("room forced closed", zap.String("room_id", r.id))
		ctx.ForceQuit()
	case messages.CloseWhenEmpty:
		if len(r.players) == 0 {
			r.logger.Info("room closed: idle and empty", zap.String("room_id", r.id))
			ctx.ForceQuit()
		}
	}
}

func (r *Room) addPlayer(ctx *actor.Context[messages.RoomMessage], addr messages.PlayerAddr, info messages.PlayerInfo) {
	gp := &gamePlayer{addr: addr, info: info}
	r.players[info.ID] = gp
	r.persist(context.Background(), domain.PlayerJoinedEvent(info.ID))

	welcome := messages.Welcome{
		RoomID:  r.id,
		Room:    ctx.Addr(),
		State:   r.gameState(),
		Players: r.playerStates(),
	}
	r.sendToPlayer(context.Background(), gp, welcome)
	r.broadcastExcept(context.Background(), info.ID, messages.PlayerJoinedMsg{Player: gp.state()})
}

func (r *Room) removePlayer(ctx *actor.Context[messages.RoomMessage], id string) {
	delete(r.players, id)
	r.persist(context.Background(), domain.PlayerLeftEvent(id))
	r.broadcastAll(context.Background(), messages.PlayerLeftMsg{PlayerID: id})
	r.updateStateAndBroadcast(context.Background())

	if len(r.players) == 0 {
		r.logger.Info("room empty, arming idle timer", zap.String("room_id", r.id), zap.Duration("grace", r.cfg.IdleGrace))
		ctx.Delay(messages.CloseWhenEmpty{}, r.cfg.IdleGrace)
	}
}

func (r *Room) setVote(id string, vote *string) {
	if r.open {
		r.logger.Warn("vote discarded: round already open", zap.String("room_id", r.id), zap.String("player_id", id))
		return
	}

	p, ok := r.players[id]
	if !ok {
		r.logger.Warn("vote discarded: unknown player", zap.String("room_id", r.id), zap.String("player_id", id))
		return
	}
	if !p.info.Voter {
		r.logger.Warn("vote discarded: non-voter", zap.String("room_id", r.id), zap.String("player_id", id))
		return
	}

	p.vote = vote
	r.recomputeOpen()
	r.broadcastGameState(context.Background())
}

func (r *Room) updatePlayer(id string, voter bool, name *string) {
	p, ok := r.players[id]
	if !ok {
		r.logger.Warn("ignoring update for unknown player", zap.String("room_id", r.id), zap.String("player_id", id))
		return
	}

	p.info.Voter = voter
	p.info.Name = name
	r.broadcastAll(context.Background(), messages.PlayerChangedMsg{Player: p.state()})
	r.updateStateAndBroadcast(context.Background())
}

func (r *Room) forceOpen() {
	if r.open {
		return
	}
	r.open = true
	r.broadcastGameState(context.Background())
}

func (r *Room) restart() {
	r.open = false
	for _, p := range r.players {
		p.vote = nil
	}
	r.broadcastGameState(context.Background())
}

// recomputeOpen implements the reveal rule: open transitions false->true
// once every voter has voted and there are at least two voters. It never
// auto-closes.
func (r *Room) recomputeOpen() bool {
	if r.open {
		return false
	}
	voters := 0
	allVoted := true
	for _, p := range r.players {
		if !p.info.Voter {
			continue
		}
		voters++
		if p.vote == nil {
			allVoted = false
		}
	}
	if allVoted && voters >= 2 {
		r.open = true
		return true
	}
	return false
}

func (r *Room) updateStateAndBroadcast(ctx context.Context) {
	if r.recomputeOpen() {
		r.broadcastGameState(ctx)
	}
}

func (r *Room) broadcastGameState(ctx context.Context) {
	r.broadcastAll(ctx, messages.GameStateChangedMsg{State: r.gameState()})
}

func (r *Room) gameState() domain.GameState {
	votes := make(map[string]*string, len(r.players))
	for id, p := range r.players {
		if !p.info.Voter {
			continue
		}
		votes[id] = domain.RedactedVote(p.vote, r.open)
	}
	return domain.GameState{Deck: r.deck, Open: r.open, Votes: votes}
}

func (r *Room) playerStates() []domain.PlayerState {
	out := make([]domain.PlayerState, 0, len(r.players))
	for _, p := range r.sortedPlayers() {
		out = append(out, p.state())
	}
	return out
}

// sortedPlayers returns members in a fixed (id-ascending) order so that
// broadcast fan-out order is deterministic per round, as required by the
// per-player ordering guarantee.
func (r *Room) sortedPlayers() []*gamePlayer {
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*gamePlayer, len(ids))
	for i, id := range ids {
		out[i] = r.players[id]
	}
	return out
}

func (r *Room) sendToPlayer(ctx context.Context, p *gamePlayer, msg messages.GamePlayerMessage) {
	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()
	if err := p.addr.Send(sendCtx, msg); err != nil {
		r.logger.Error("failed to send to player",
			zap.String("room_id", r.id), zap.String("player_id", p.info.ID), zap.Error(err))
	}
}

func (r *Room) broadcastAll(ctx context.Context, msg messages.GamePlayerMessage) {
	for _, p := range r.sortedPlayers() {
		r.sendToPlayer(ctx, p, msg)
	}
}

func (r *Room) broadcastExcept(ctx context.Context, exceptID string, msg messages.GamePlayerMessage) {
	for _, p := range r.sortedPlayers() {
		if p.info.ID == exceptID {
			continue
		}
		r.sendToPlayer(ctx, p, msg)
	}
}

func (r *Room) persist(ctx context.Context, evt domain.RoomEvent) {
	if r.store == nil {
		return
	}
	if err := r.store.Append(ctx, r.id, evt); err != nil {
		r.logger.Error("failed to persist room event",
			zap.String("room_id", r.id), zap.Stringer("event", evt), zap.Error(err))
	}
}
