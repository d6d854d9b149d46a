// Package ports declares the interfaces that bound the core's dependency on
// durable storage. Core code depends only on RoomEventStore; no concrete
// database type ever leaks into internal/core.
package ports

import (
	"context"

	"github.com/pokerroom/server/internal/core/domain"
)

// RoomEventStore persists and retrieves a per-room ordered log of domain
// events. There is exactly one concurrent writer per room (that room's own
// actor); readers (GameServer, on restore) may run at any time.
type RoomEventStore interface {
	// Append adds evt to room id's log. Failure is the caller's to log and
	// suppress — durability is a best-effort audit trail, not a
	// correctness requirement of the live session.
	Append(ctx context.Context, roomID string, evt domain.RoomEvent) error

	// Load returns room id's events in append order, or an empty slice if
	// the room has no recorded history.
	Load(ctx context.Context, roomID string) ([]domain.RoomEvent, error)

	// Migrate brings the store's schema up to date. Called once at
	// startup before any room traffic is served.
	Migrate(ctx context.Context) error
}
