package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/squadron-project/squadron/internal/events"
)

// SQLiteStore persists events to a SQLite database keyed by
// (server_id, event_type, event_id), surviving process restarts.
type SQLiteStore struct {
	mu        sync.Mutex
	db        *sql.DB
	retention int

	// Per-server next event ID, loaded lazily from MAX(event_id).
	nextIDs map[string]uint64
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	server_id  TEXT    NOT NULL,
	event_id   INTEGER NOT NULL,
	event_type TEXT    NOT NULL,
	timestamp  TEXT    NOT NULL,
	payload    TEXT    NOT NULL,
	PRIMARY KEY (server_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_events_server_type
	ON events (server_id, event_type, event_id);
`

// NewSQLiteStore opens or creates the event database at dbPath.
func NewSQLiteStore(dbPath string, retention int) (*SQLiteStore, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	// SQLite doesn't support concurrent writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("event database opened")

	return &SQLiteStore{
		db:        db,
		retention: retention,
		nextIDs:   make(map[string]uint64),
	}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ev *events.Event) (uint64, error) {
	if !ev.Type.Valid() {
		return 0, fmt.Errorf("invalid event type %q", ev.Type)
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.nextIDs[ev.ServerID]
	if !ok {
		var max sql.NullInt64
		row := s.db.QueryRow("SELECT MAX(event_id) FROM events WHERE server_id = ?", ev.ServerID)
		if err := row.Scan(&max); err != nil {
			return 0, fmt.Errorf("failed to load event sequence for %s: %w", ev.ServerID, err)
		}
		next = uint64(max.Int64) + 1
	}

	ev.ID = next
	s.nextIDs[ev.ServerID] = next + 1

	_, err = s.db.Exec(
		"INSERT INTO events (server_id, event_id, event_type, timestamp, payload) VALUES (?, ?, ?, ?, ?)",
		ev.ServerID, int64(ev.ID), string(ev.Type), ev.Timestamp.UTC().Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	// Evict entries past the retention bound for this server+type.
	_, err = s.db.Exec(`
		DELETE FROM events WHERE server_id = ? AND event_type = ? AND event_id <= (
			SELECT event_id FROM events WHERE server_id = ? AND event_type = ?
			ORDER BY event_id DESC LIMIT 1 OFFSET ?)`,
		ev.ServerID, string(ev.Type), ev.ServerID, string(ev.Type), s.retention,
	)
	if err != nil {
		log.Warn().Err(err).Str("server_id", ev.ServerID).Msg("event eviction failed")
	}

	return ev.ID, nil
}

// Query implements Store.
func (s *SQLiteStore) Query(serverID string, typ events.Type, limit int, before, after uint64) ([]events.Event, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var (
		rows *sql.Rows
		err  error
		desc bool
	)

	// Fetch limit+1 rows to detect whether another page exists.
	switch {
	case before > 0:
		rows, err = s.db.Query(
			"SELECT event_id, timestamp, payload FROM events WHERE server_id = ? AND event_type = ? AND event_id < ? ORDER BY event_id DESC LIMIT ?",
			serverID, string(typ), int64(before), limit+1)
		desc = true
	case after > 0:
		rows, err = s.db.Query(
			"SELECT event_id, timestamp, payload FROM events WHERE server_id = ? AND event_type = ? AND event_id > ? ORDER BY event_id ASC LIMIT ?",
			serverID, string(typ), int64(after), limit+1)
	default:
		rows, err = s.db.Query(
			"SELECT event_id, timestamp, payload FROM events WHERE server_id = ? AND event_type = ? ORDER BY event_id DESC LIMIT ?",
			serverID, string(typ), limit+1)
		desc = true
	}
	if err != nil {
		return nil, false, fmt.Errorf("event query failed: %w", err)
	}
	defer rows.Close()

	var page []events.Event
	for rows.Next() {
		var (
			id      int64
			ts      string
			payload string
		)
		if err := rows.Scan(&id, &ts, &payload); err != nil {
			return nil, false, fmt.Errorf("failed to scan event row: %w", err)
		}

		when, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, false, fmt.Errorf("failed to parse event timestamp %q: %w", ts, err)
		}

		decoded, err := events.DecodePayload(typ, []byte(payload))
		if err != nil {
			return nil, false, err
		}

		page = append(page, events.Event{
			ServerID:  serverID,
			ID:        uint64(id),
			Type:      typ,
			Timestamp: when,
			Payload:   decoded,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("event query failed: %w", err)
	}

	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}

	// Pages are always returned oldest-first.
	if desc {
		for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
			page[i], page[j] = page[j], page[i]
		}
	}

	if page == nil {
		page = []events.Event{}
	}
	return page, hasMore, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
