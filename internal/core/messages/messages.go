// Package messages defines the typed envelopes exchanged between the three
// actor kinds (Room, Player, GameServer) and the address aliases bound to
// them. It exists as its own package — rather than living beside each actor
// the way the reference implementation's enums do — because Go actors that
// address each other bidirectionally would otherwise form an import cycle:
// Room needs Player's address type to reply, Player needs Room's address
// type to forward votes, and GameServer needs both.
package messages

import (
	"github.com/pokerroom/server/internal/actor"
	"github.com/pokerroom/server/internal/core/domain"
)

// RejectReason enumerates why the GameServer could not place a player.
type RejectReason string

const (
	RoomDoesNotExist RejectReason = "RoomDoesNotExist"
	CreateGameError  RejectReason = "CreateGameError"
	JoinGameError    RejectReason = "JoinGameError"
)

// PlayerInfo is the identity/role a player presents when joining a room.
type PlayerInfo struct {
	ID    string
	Voter bool
	Name  *string
}

// RoomMessage is the mailbox type of a Room actor.
type RoomMessage interface{ isRoomMessage() }

// JoinRequest asks the room to admit a player.
type JoinRequest struct {
	PlayerAddr PlayerAddr
	Info       PlayerInfo
}

func (JoinRequest) isRoomMessage() {}

// PlayerLeft tells the room a member has departed.
type PlayerLeft struct{ PlayerID string }

func (PlayerLeft) isRoomMessage() {}

// PlayerVoted carries a vote (or vote withdrawal, Vote == nil) for PlayerID.
type PlayerVoted struct {
	PlayerID string
	Vote     *string
}

func (PlayerVoted) isRoomMessage() {}

// UpdatePlayer changes a member's voter flag and/or display name.
type UpdatePlayer struct {
	PlayerID string
	Voter    bool
	Name     *string
}

func (UpdatePlayer) isRoomMessage() {}

// ForceOpen reveals the current round regardless of vote completeness.
type ForceOpen struct{}

func (ForceOpen) isRoomMessage() {}

// Restart clears all votes and closes the round.
type Restart struct{}

func (Restart) isRoomMessage() {}

// Close shuts the room down immediately.
type Close struct{}

func (Close) isRoomMessage() {}

// CloseWhenEmpty is the room's own delayed self-message armed when its
// membership drops to zero; it is a no-op if a player rejoined first.
type CloseWhenEmpty struct{}

func (CloseWhenEmpty) isRoomMessage() {}

// GamePlayerMessage is the mailbox type of a Player actor: everything a Room
// (or the GameServer, for rejections) pushes downstream to a connected
// player.
type GamePlayerMessage interface{ isGamePlayerMessage() }

// Welcome is sent to a joining player once admitted, carrying the room's
// address (so the player can address it directly thereafter) and the
// current membership/voting snapshot.
type Welcome struct {
	RoomID  string
	Room    RoomAddr
	State   domain.GameState
	Players []domain.PlayerState
}

func (Welcome) isGamePlayerMessage() {}

// RejectedMsg tells a player the server could not place them.
type RejectedMsg struct{ Reason RejectReason }

func (RejectedMsg) isGamePlayerMessage() {}

// PlayerJoinedMsg announces a new member to the rest of the room.
type PlayerJoinedMsg struct{ Player domain.PlayerState }

func (PlayerJoinedMsg) isGamePlayerMessage() {}

// PlayerChangedMsg announces a member's updated voter flag/name.
type PlayerChangedMsg struct{ Player domain.PlayerState }

func (PlayerChangedMsg) isGamePlayerMessage() {}

// PlayerLeftMsg announces a member's departure.
type PlayerLeftMsg struct{ PlayerID string }

func (PlayerLeftMsg) isGamePlayerMessage() {}

// GameStateChangedMsg announces a voting/reveal state change.
type GameStateChangedMsg struct{ State domain.GameState }

func (GameStateChangedMsg) isGamePlayerMessage() {}

// GameServerMessage is the mailbox type of the GameServer registry actor.
type GameServerMessage interface{ isGameServerMessage() }

// Create asks the registry to allocate a new room for the requesting
// player, who becomes its sole initial member.
type Create struct {
	Deck       string
	PlayerAddr PlayerAddr
	Player     PlayerInfo
}

func (Create) isGameServerMessage() {}

// CreateExternal asks the registry to allocate a new, empty room with no
// socket-bound creator — the path taken by the HTTP create-room form. The
// new room's id is delivered on Reply; the channel must have capacity for
// at least one send, since the registry never blocks waiting for a reader.
type CreateExternal struct {
	Deck  string
	Reply chan<- string
}

func (CreateExternal) isGameServerMessage() {}

// Join asks the registry to place a player into an existing (possibly
// restored-from-store) room.
type Join struct {
	RoomID     string
	PlayerAddr PlayerAddr
	Player     PlayerInfo
}

func (Join) isGameServerMessage() {}

// Address aliases. These are the only place the actor package's generic
// Addr is instantiated for each actor kind.
type (
	RoomAddr       = actor.Addr[RoomMessage]
	PlayerAddr     = actor.Addr[GamePlayerMessage]
	GameServerAddr = actor.Addr[GameServerMessage]
)
