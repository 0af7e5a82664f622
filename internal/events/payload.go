package events

import (
	"encoding/json"
	"fmt"
)

// DecodePayload unmarshals a JSON-encoded payload into the concrete
// payload type for t. Used by durable storage backends that persist
// payloads as JSON.
func DecodePayload(t Type, data []byte) (interface{}, error) {
	switch t {
	case TypeChat:
		var p ChatPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode chat payload: %w", err)
		}
		return p, nil
	case TypeConnection:
		var p ConnectionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode connection payload: %w", err)
		}
		return p, nil
	case TypeTeamkill:
		var p TeamkillPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode teamkill payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("invalid event type %q", t)
	}
}
