// Package domain holds the types shared across the room/session engine:
// the durable event log entries, the deck/voting value objects, and the
// read-only state snapshots broadcast to clients.
package domain

import "fmt"

// EventKind discriminates the durable RoomEvent log.
type EventKind string

const (
	EventCreated      EventKind = "Created"
	EventPlayerJoined EventKind = "PlayerJoined"
	EventPlayerLeft   EventKind = "PlayerLeft"
)

// RoomEvent is one entry of a room's durable, ordered event log. Exactly one
// field is meaningful for a given Kind; Deck is set only for EventCreated,
// PlayerID only for EventPlayerJoined/EventPlayerLeft.
type RoomEvent struct {
	Kind     EventKind `json:"kind"`
	Deck     string    `json:"deck,omitempty"`
	PlayerID string    `json:"player_id,omitempty"`
}

// Created builds the single event that must open every room's log.
func Created(deck string) RoomEvent {
	return RoomEvent{Kind: EventCreated, Deck: deck}
}

// PlayerJoinedEvent records a membership event.
func PlayerJoinedEvent(playerID string) RoomEvent {
	return RoomEvent{Kind: EventPlayerJoined, PlayerID: playerID}
}

// PlayerLeftEvent records a membership event.
func PlayerLeftEvent(playerID string) RoomEvent {
	return RoomEvent{Kind: EventPlayerLeft, PlayerID: playerID}
}

func (e RoomEvent) String() string {
	switch e.Kind {
	case EventCreated:
		return fmt.Sprintf("Created{deck=%s}", e.Deck)
	default:
		return fmt.Sprintf("%s{player_id=%s}", e.Kind, e.PlayerID)
	}
}

// PlayerState is the membership-diff snapshot broadcast to clients.
type PlayerState struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Voter bool    `json:"voter"`
}

// hiddenVote is the sentinel transmitted in place of a real vote value while
// a room's round is not open.
const hiddenVote = "?"

// GameState is the voting-round snapshot broadcast to clients. Votes maps
// each voter's id to nil (not voted), the hidden-vote sentinel ("?") while
// the round is closed, or the real vote string once open.
type GameState struct {
	Deck  string             `json:"deck"`
	Open  bool               `json:"open"`
	Votes map[string]*string `json:"votes"`
}

// RedactedVote returns what should be broadcast for a voter's vote given the
// room's open flag: nil if they haven't voted, the hidden sentinel if they
// have but the round is closed, or the real value if the round is open.
func RedactedVote(vote *string, open bool) *string {
	if vote == nil {
		return nil
	}
	if open {
		return vote
	}
	hidden := hiddenVote
	return &hidden
}
