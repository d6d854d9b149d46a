// Package roomid generates room identifiers: a time-ordered 128-bit value
// rendered URL-safe, so ids are lexicographically sortable and collision-free
// within a process without a registry round-trip.
package roomid

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid"
)

// entropy is shared across calls; ulid's Monotonic wrapper guarantees
// strictly increasing ids for identical-millisecond timestamps, which is
// what "time-ordered" requires under load.
var entropy = ulid.Monotonic(rand.Reader, 0)

// New generates a fresh room id.
func New() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}
