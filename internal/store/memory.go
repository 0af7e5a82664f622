package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/squadron-project/squadron/internal/events"
)

// MemoryStore keeps per-server, per-type ordered slices of events in
// memory. State is volatile and resets on process restart.
type MemoryStore struct {
	mu        sync.RWMutex
	retention int
	servers   map[string]*serverLog
}

type serverLog struct {
	nextID uint64
	byType map[events.Type][]events.Event
}

// NewMemoryStore creates an in-memory event store. A retention of zero
// falls back to DefaultRetention.
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		retention: retention,
		servers:   make(map[string]*serverLog),
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ev *events.Event) (uint64, error) {
	if !ev.Type.Valid() {
		return 0, fmt.Errorf("invalid event type %q", ev.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.servers[ev.ServerID]
	if !ok {
		sl = &serverLog{nextID: 1, byType: make(map[events.Type][]events.Event)}
		s.servers[ev.ServerID] = sl
	}

	ev.ID = sl.nextID
	sl.nextID++

	list := append(sl.byType[ev.Type], *ev)
	if len(list) > s.retention {
		list = list[len(list)-s.retention:]
	}
	sl.byType[ev.Type] = list

	return ev.ID, nil
}

// Query implements Store.
func (s *MemoryStore) Query(serverID string, typ events.Type, limit int, before, after uint64) ([]events.Event, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("limit must be positive, got %d", limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.servers[serverID]
	if !ok {
		return []events.Event{}, false, nil
	}
	list := sl.byType[typ]

	switch {
	case before > 0:
		// Newest events strictly older than the cursor.
		end := sort.Search(len(list), func(i int) bool { return list[i].ID >= before })
		start := end - limit
		if start < 0 {
			start = 0
		}
		return copyEvents(list[start:end]), start > 0, nil

	case after > 0:
		// Oldest events strictly newer than the cursor.
		start := sort.Search(len(list), func(i int) bool { return list[i].ID > after })
		end := start + limit
		hasMore := end < len(list)
		if end > len(list) {
			end = len(list)
		}
		return copyEvents(list[start:end]), hasMore, nil

	default:
		// Most recent page.
		start := len(list) - limit
		if start < 0 {
			start = 0
		}
		return copyEvents(list[start:]), start > 0, nil
	}
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func copyEvents(src []events.Event) []events.Event {
	out := make([]events.Event, len(src))
	copy(out, src)
	return out
}
