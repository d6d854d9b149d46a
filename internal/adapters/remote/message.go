// Package remote implements the wire-level adapter between a player's
// full-duplex socket and the in-process actor world: a tagged JSON message
// envelope and a connection wrapper that maintains ping/pong liveness.
package remote

import (
	"encoding/json"
	"fmt"

	"github.com/pokerroom/server/internal/core/domain"
)

// Type is the wire discriminator carried in every envelope's "type" field.
type Type string

const (
	TypeVote          Type = "Vote"
	TypeUpdatePlayer  Type = "UpdatePlayer"
	TypeForceOpen     Type = "ForceOpen"
	TypeRestart       Type = "Restart"
	TypeJoinRoom      Type = "JoinRoom"
	TypeCreateRoom    Type = "CreateRoom"
	TypeWelcome       Type = "Welcome"
	TypeRejected      Type = "Rejected"
	TypeJoined        Type = "Joined"
	TypePlayerJoined  Type = "PlayerJoined"
	TypePlayerChanged Type = "PlayerChanged"
	TypePlayerLeft    Type = "PlayerLeft"
	TypeGameChanged   Type = "GameChanged"
)

// Message is implemented by every concrete wire message, plus the one
// pseudo message (Close) that Connection.Recv synthesizes internally on
// disconnect — it never actually crosses the wire.
type Message interface {
	messageType() Type
}

// Upstream (client -> server).

type Vote struct {
	Vote *string `json:"vote"`
}

func (Vote) messageType() Type { return TypeVote }

type UpdatePlayer struct {
	Voter bool    `json:"voter"`
	Name  *string `json:"name"`
}

func (UpdatePlayer) messageType() Type { return TypeUpdatePlayer }

type ForceOpen struct{}

func (ForceOpen) messageType() Type { return TypeForceOpen }

type Restart struct{}

func (Restart) messageType() Type { return TypeRestart }

type JoinRoom struct {
	Room string `json:"room"`
}

func (JoinRoom) messageType() Type { return TypeJoinRoom }

type CreateRoom struct {
	Deck string `json:"deck"`
}

func (CreateRoom) messageType() Type { return TypeCreateRoom }

// Downstream (server -> client).

type Welcome struct {
	PlayerID string `json:"player_id"`
}

func (Welcome) messageType() Type { return TypeWelcome }

type Rejected struct{}

func (Rejected) messageType() Type { return TypeRejected }

type Joined struct {
	Room    string                `json:"room"`
	State   domain.GameState      `json:"state"`
	Players []domain.PlayerState  `json:"players"`
}

func (Joined) messageType() Type { return TypeJoined }

type PlayerJoined struct {
	Player domain.PlayerState `json:"player"`
}

func (PlayerJoined) messageType() Type { return TypePlayerJoined }

type PlayerChanged struct {
	Player domain.PlayerState `json:"player"`
}

func (PlayerChanged) messageType() Type { return TypePlayerChanged }

type PlayerLeft struct {
	PlayerID string `json:"player_id"`
}

func (PlayerLeft) messageType() Type { return TypePlayerLeft }

type GameChanged struct {
	GameState domain.GameState `json:"game_state"`
}

func (GameChanged) messageType() Type { return TypeGameChanged }

// typeClose is a discriminator private to this package: Close is a pseudo
// message synthesized by Connection.Recv on disconnect, never encoded onto
// or decoded off the wire.
const typeClose Type = "__close"

// Close signals the remote end hung up or sent a close frame. Recv returns
// it directly; it never round-trips through Encode/Decode.
type Close struct{}

func (Close) messageType() Type { return typeClose }

// Encode serialises msg as a single JSON text frame payload, e.g.
// {"game_state":{...},"type":"GameChanged"} (keys come out sorted).
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("remote: encode %T: %w", msg, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("remote: encode %T: %w", msg, err)
	}
	typeBytes, err := json.Marshal(msg.messageType())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeBytes
	return json.Marshal(fields)
}

// ErrUnknownType is returned by Decode when the envelope's "type" field does
// not name a recognised upstream variant. Per the wire contract, unknown
// variants must be ignored rather than treated as a protocol error.
var ErrUnknownType = fmt.Errorf("remote: unknown message type")

type envelopeHead struct {
	Type Type `json:"type"`
}

// Decode parses a single text frame payload into its concrete upstream
// message. It returns ErrUnknownType (wrapped) for a well-formed envelope
// whose type the server does not understand.
func Decode(data []byte) (Message, error) {
	var head envelopeHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("remote: decode envelope: %w", err)
	}

	var msg Message
	switch head.Type {
	case TypeVote:
		var m Vote
		msg = &m
	case TypeUpdatePlayer:
		var m UpdatePlayer
		msg = &m
	case TypeForceOpen:
		msg = &ForceOpen{}
	case TypeRestart:
		msg = &Restart{}
	case TypeJoinRoom:
		var m JoinRoom
		msg = &m
	case TypeCreateRoom:
		var m CreateRoom
		msg = &m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("remote: decode %s: %w", head.Type, err)
	}
	return msg, nil
}
