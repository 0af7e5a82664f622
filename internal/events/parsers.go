package events

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnrecognizedBroadcast is returned when a broadcast line matches no
// known event pattern. Callers log it and move on; broadcast text is
// fragile and new kinds appear across game patches.
var ErrUnrecognizedBroadcast = errors.New("unrecognized broadcast")

// Regex patterns for the broadcast line formats emitted on the
// remote-console chat channel.
var (
	reChat = regexp.MustCompile(
		`^\[Chat(All|Team|Squad|Admin)\]\s+\[Online IDs:EOS:\s*(\S+)(?:\s+steam:\s*(\d+))?\]\s+(.+?)\s+:\s+(.*)$`)
	rePlayerJoined = regexp.MustCompile(
		`^Player\s+(.+?)\s+\(Online IDs:EOS:\s*(\S+)(?:\s+steam:\s*(\d+))?\)\s+has joined the server(?:\s+from IP\s+([\d.]+))?$`)
	rePlayerLeft = regexp.MustCompile(
		`^Player\s+(.+?)\s+\(Online IDs:EOS:\s*(\S+)(?:\s+steam:\s*(\d+))?\)\s+has left the server$`)
	reTeamkill = regexp.MustCompile(
		`^TeamKill:\s+(.+?)\s+was killed by\s+(.+?)\s+\(Online IDs:EOS:\s*(\S+)(?:\s+steam:\s*(\d+))?\)\s+with\s+(\S+)\s+\(damage:\s*([\d.]+)\)$`)
)

// ParseBroadcast parses a single broadcast line into a domain event.
// The returned event has no ID; the store assigns one on append.
func ParseBroadcast(serverID, line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty broadcast: %w", ErrUnrecognizedBroadcast)
	}

	if m := reChat.FindStringSubmatch(line); m != nil {
		return &Event{
			ServerID:  serverID,
			Type:      TypeChat,
			Timestamp: time.Now().UTC(),
			Payload: ChatPayload{
				Channel:    strings.ToLower(m[1]),
				EOSID:      m[2],
				SteamID:    m[3],
				PlayerName: m[4],
				Message:    m[5],
			},
		}, nil
	}

	if m := rePlayerJoined.FindStringSubmatch(line); m != nil {
		return &Event{
			ServerID:  serverID,
			Type:      TypeConnection,
			Timestamp: time.Now().UTC(),
			Payload: ConnectionPayload{
				PlayerName: m[1],
				EOSID:      m[2],
				SteamID:    m[3],
				IP:         m[4],
				Connected:  true,
			},
		}, nil
	}

	if m := rePlayerLeft.FindStringSubmatch(line); m != nil {
		return &Event{
			ServerID:  serverID,
			Type:      TypeConnection,
			Timestamp: time.Now().UTC(),
			Payload: ConnectionPayload{
				PlayerName: m[1],
				EOSID:      m[2],
				SteamID:    m[3],
				Connected:  false,
			},
		}, nil
	}

	if m := reTeamkill.FindStringSubmatch(line); m != nil {
		damage, err := strconv.ParseFloat(m[6], 64)
		if err != nil {
			return nil, fmt.Errorf("teamkill damage %q: %w", m[6], err)
		}
		return &Event{
			ServerID:  serverID,
			Type:      TypeTeamkill,
			Timestamp: time.Now().UTC(),
			Payload: TeamkillPayload{
				VictimName:    m[1],
				KillerName:    m[2],
				KillerEOSID:   m[3],
				KillerSteamID: m[4],
				Weapon:        m[5],
				Damage:        damage,
			},
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnrecognizedBroadcast, truncate(line, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ParseTypes parses a comma-separated type filter. An empty input
// selects every known type.
func ParseTypes(raw string) ([]Type, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]Type(nil), KnownTypes...), nil
	}
	var out []Type
	for _, part := range strings.Split(raw, ",") {
		t := Type(strings.ToLower(strings.TrimSpace(part)))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown event type %q", part)
		}
		out = append(out, t)
	}
	return out, nil
}
