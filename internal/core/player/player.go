// Package player implements the Player actor: the per-connection bridge
// between a client's websocket and the Room/GameServer actors.
package player

import (
	"context"
	"crypto/rand"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pokerroom/server/internal/actor"
	"github.com/pokerroom/server/internal/adapters/remote"
	"github.com/pokerroom/server/internal/core/messages"
)

// Conn is the subset of *remote.Connection a Player depends on. Declaring it
// here (rather than depending on the concrete type) lets tests substitute a
// fake socket.
type Conn interface {
	Send(remote.Message) error
	Recv() (remote.Message, error)
	Ping() error
	Close() error
}

// Config tunes a Player's timing and buffering.
type Config struct {
	MailboxCapacity int
	PingPeriod      time.Duration
	SendTimeout     time.Duration
}

const (
	DefaultMailboxCapacity = 16
	DefaultSendTimeout     = 2 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = DefaultMailboxCapacity
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = remote.PingPeriod()
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

// Display names are free text, not a leaderboard key, but still bounded to
// keep the room's broadcast payloads sane.
const (
	minPlayerNameLength = 1
	maxPlayerNameLength = 40
)

func validPlayerName(name *string) bool {
	if name == nil {
		return true
	}
	n := utf8.RuneCountInString(*name)
	return n >= minPlayerNameLength && n <= maxPlayerNameLength
}

// pendingRoomID is held in p.roomID between sending a CreateRoom request and
// receiving the Welcome that names the room the registry actually allocated
// — the id isn't known until then, so it can't be compared against a
// specific expected value the way a JoinRoom target can.
const pendingRoomID = "<to be created>"

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// genID mints a 16-character random identifier for a newly connected
// player. It is not a secret, only a collision-resistant label.
func genID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("player: crypto/rand unavailable: " + err.Error())
	}
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out)
}

// Player is one connected client's actor state.
type Player struct {
	id    string
	voter bool
	name  *string

	gameServer messages.GameServerAddr
	conn       Conn
	logger     *zap.Logger
	cfg        Config

	inRoom bool
	roomID string
	room   messages.RoomAddr

	mailbox chan messages.GamePlayerMessage
	quit    chan struct{}
	quitSet sync.Once
	done    chan struct{}
}

// Run starts a Player actor bound to conn and returns its address. The
// returned Stopper lets the owner force a disconnect (e.g. server shutdown).
func Run(conn Conn, gameServer messages.GameServerAddr, logger *zap.Logger, cfg Config) (messages.PlayerAddr, actor.Stopper) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	p := &Player{
		id:         genID(),
		voter:      true,
		gameServer: gameServer,
		conn:       conn,
		logger:     logger,
		cfg:        cfg,
		mailbox:    make(chan messages.GamePlayerMessage, cfg.MailboxCapacity),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	self := actor.NewAddr[messages.GamePlayerMessage](p.mailbox, p.done)
	go p.run(self)

	return self, actor.NewStopper(p.quit, &p.quitSet, p.done)
}

func (p *Player) run(self messages.PlayerAddr) {
	defer close(p.done)
	defer p.teardown()

	if err := p.conn.Send(remote.Welcome{PlayerID: p.id}); err != nil {
		p.logger.Debug("failed to greet new connection", zap.Error(err))
		return
	}

	recvCh := make(chan remote.Message)
	recvErrCh := make(chan error, 1)
	go p.recvPump(recvCh, recvErrCh)

	ticker := time.NewTicker(p.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return

		case msg, ok := <-p.mailbox:
			if !ok {
				return
			}
			p.handleDownstream(self, msg)

		case rmsg := <-recvCh:
			if _, closed := rmsg.(remote.Close); closed {
				return
			}
			p.handleUpstream(self, rmsg)

		case err := <-recvErrCh:
			p.logger.Debug("connection read failed", zap.String("player_id", p.id), zap.Error(err))
			return

		case <-ticker.C:
			if err := p.conn.Ping(); err != nil {
				p.logger.Debug("ping failed", zap.String("player_id", p.id), zap.Error(err))
				return
			}
		}
	}
}

func (p *Player) recvPump(out chan<- remote.Message, errs chan<- error) {
	for {
		msg, err := p.conn.Recv()
		if err != nil {
			errs <- err
			return
		}
		select {
		case out <- msg:
		case <-p.quit:
			return
		}
		if _, closed := msg.(remote.Close); closed {
			return
		}
	}
}

func (p *Player) teardown() {
	if p.inRoom {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
		_ = p.room.Send(ctx, messages.PlayerLeft{PlayerID: p.id})
		cancel()
	}
	_ = p.conn.Close()
}

func (p *Player) handleDownstream(self messages.PlayerAddr, msg messages.GamePlayerMessage) {
	switch m := msg.(type) {
	case messages.Welcome:
		if p.roomID != pendingRoomID && m.RoomID != p.roomID {
			p.logger.Warn("ignoring welcome for unexpected room",
				zap.String("player_id", p.id), zap.String("expected", p.roomID), zap.String("actual", m.RoomID))
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
			_ = m.Room.Send(ctx, messages.PlayerLeft{PlayerID: p.id})
			cancel()
			return
		}
		p.roomID = m.RoomID
		p.room = m.Room
		p.inRoom = true
		p.writeToClient(remote.Joined{Room: m.RoomID, State: m.State, Players: m.Players})
	case messages.RejectedMsg:
		p.writeToClient(remote.Rejected{})
	case messages.PlayerJoinedMsg:
		p.writeToClient(remote.PlayerJoined{Player: m.Player})
	case messages.PlayerChangedMsg:
		p.writeToClient(remote.PlayerChanged{Player: m.Player})
	case messages.PlayerLeftMsg:
		p.writeToClient(remote.PlayerLeft{PlayerID: m.PlayerID})
	case messages.GameStateChangedMsg:
		p.writeToClient(remote.GameChanged{GameState: m.State})
	}
}

func (p *Player) handleUpstream(self messages.PlayerAddr, msg remote.Message) {
	switch m := msg.(type) {
	case *remote.Vote:
		if p.inRoom {
			p.sendRoom(messages.PlayerVoted{PlayerID: p.id, Vote: m.Vote})
		}
	case *remote.UpdatePlayer:
		if !validPlayerName(m.Name) {
			p.logger.Warn("rejecting out-of-bounds player name", zap.String("player_id", p.id))
			return
		}
		p.voter = m.Voter
		p.name = m.Name
		if p.inRoom {
			p.sendRoom(messages.UpdatePlayer{PlayerID: p.id, Voter: m.Voter, Name: m.Name})
		}
	case *remote.ForceOpen:
		if p.inRoom {
			p.sendRoom(messages.ForceOpen{})
		}
	case *remote.Restart:
		if p.inRoom {
			p.sendRoom(messages.Restart{})
		}
	case *remote.JoinRoom:
		if p.roomID == m.Room {
			return
		}
		p.leaveCurrentRoom()
		p.roomID = m.Room
		p.sendGameServer(messages.Join{RoomID: m.Room, PlayerAddr: self, Player: p.info()})
	case *remote.CreateRoom:
		p.leaveCurrentRoom()
		p.roomID = pendingRoomID
		p.sendGameServer(messages.Create{Deck: m.Deck, PlayerAddr: self, Player: p.info()})
	}
}

func (p *Player) info() messages.PlayerInfo {
	return messages.PlayerInfo{ID: p.id, Voter: p.voter, Name: p.name}
}

func (p *Player) leaveCurrentRoom() {
	if !p.inRoom {
		return
	}
	p.sendRoom(messages.PlayerLeft{PlayerID: p.id})
	p.inRoom = false
	p.room = messages.RoomAddr{}
	p.roomID = ""
}

func (p *Player) sendRoom(msg messages.RoomMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
	defer cancel()
	if err := p.room.Send(ctx, msg); err != nil {
		p.logger.Debug("failed to reach room", zap.String("player_id", p.id), zap.Error(err))
	}
}

func (p *Player) sendGameServer(msg messages.GameServerMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
	defer cancel()
	if err := p.gameServer.Send(ctx, msg); err != nil {
		p.logger.Debug("failed to reach game server", zap.String("player_id", p.id), zap.Error(err))
	}
}

func (p *Player) writeToClient(msg remote.Message) {
	if err := p.conn.Send(msg); err != nil {
		p.logger.Debug("failed to write to client", zap.String("player_id", p.id), zap.Error(err))
	}
}
