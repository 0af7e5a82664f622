// Package events defines the typed domain events produced by a game
// server's remote-console broadcast stream, and the parsers that turn
// semi-structured broadcast text into them.
package events

import "time"

// Type identifies the kind of domain event.
type Type string

const (
	TypeChat       Type = "chat"
	TypeConnection Type = "connection"
	TypeTeamkill   Type = "teamkill"
)

// KnownTypes lists every event type in a stable order.
var KnownTypes = []Type{TypeChat, TypeConnection, TypeTeamkill}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case TypeChat, TypeConnection, TypeTeamkill:
		return true
	}
	return false
}

// Event is a single immutable domain event. ID is assigned by the
// event store on append and is the authoritative pagination cursor;
// it strictly increases per server.
type Event struct {
	ServerID  string      `json:"server_id"`
	ID        uint64      `json:"id"`
	Type      Type        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ChatPayload carries a chat broadcast.
type ChatPayload struct {
	Channel    string `json:"channel"` // "all", "team", "squad", "admin"
	PlayerName string `json:"player_name"`
	SteamID    string `json:"steam_id"`
	EOSID      string `json:"eos_id"`
	Message    string `json:"message"`
}

// ConnectionPayload carries a player connect or disconnect broadcast.
type ConnectionPayload struct {
	PlayerName string `json:"player_name"`
	SteamID    string `json:"steam_id"`
	EOSID      string `json:"eos_id"`
	IP         string `json:"ip,omitempty"`
	Connected  bool   `json:"connected"`
}

// TeamkillPayload carries a teamkill broadcast.
type TeamkillPayload struct {
	VictimName    string  `json:"victim_name"`
	KillerName    string  `json:"killer_name"`
	KillerSteamID string  `json:"killer_steam_id"`
	KillerEOSID   string  `json:"killer_eos_id"`
	Weapon        string  `json:"weapon"`
	Damage        float64 `json:"damage"`
}
