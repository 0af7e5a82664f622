// Package store implements the append-only, time-ordered event store.
// Each game server has its own strictly increasing event ID sequence;
// the ID, not the timestamp, is the authoritative pagination cursor.
package store

import (
	"github.com/squadron-project/squadron/internal/events"
)

// DefaultRetention is the default number of events kept per server per
// type before the oldest entries are evicted.
const DefaultRetention = 5000

// Store is the event store contract shared by the in-memory and
// durable backends. There is exactly one writer per server (that
// server's session manager); readers only query.
type Store interface {
	// Append assigns the next monotonic event ID for the server,
	// stores the event, and evicts entries past the retention bound.
	// The assigned ID is written back into ev and returned.
	Append(ev *events.Event) (uint64, error)

	// Query returns up to limit events of the given type, oldest-first
	// within the page. A non-zero before cursor selects the newest
	// events strictly older than it; a non-zero after cursor selects
	// the oldest events strictly newer than it. The second return
	// value reports whether more events exist beyond the page in the
	// direction of travel.
	Query(serverID string, typ events.Type, limit int, before, after uint64) ([]events.Event, bool, error)

	Close() error
}
