// Package protocol implements the binary wire codec for the Squad
// remote-console protocol. Frames use little-endian byte order with a
// 4-byte length prefix covering everything after the length field:
// [size:4][id:4][type:4][body...][0x00][0x00].
package protocol

// Frame type tags. The server reuses tag 2 for both auth responses and
// command execution; direction disambiguates.
const (
	TypeResponseValue int32 = 0 // Command response from the server
	TypeChatValue     int32 = 1 // Unsolicited broadcast (chat, connects, teamkills)
	TypeExecCommand   int32 = 2 // Command request to the server
	TypeAuthResponse  int32 = 2 // Auth result from the server (same tag, inbound)
	TypeAuth          int32 = 3 // Auth request carrying the rcon password
)

// AuthFailedID is the request ID echoed in an auth response when the
// password was rejected.
const AuthFailedID int32 = -1

const (
	// MaxBodySize is the maximum allowed body length for a single frame.
	// The game server never emits bodies larger than 4 KiB; anything
	// beyond that indicates a desynchronized or corrupt stream.
	MaxBodySize = 4096

	// frameOverhead is id (4) + type (4) + two trailing NUL bytes.
	frameOverhead = 10

	// MaxFrameSize is the largest valid value of the length prefix.
	MaxFrameSize = MaxBodySize + frameOverhead

	// HeaderSize is the size of the length prefix in bytes.
	HeaderSize = 4
)

// Frame is a single decoded protocol frame.
type Frame struct {
	ID   int32
	Type int32
	Body string
}

// IsBroadcast reports whether the frame is an unsolicited server
// broadcast rather than a correlated response.
func (f Frame) IsBroadcast() bool {
	return f.Type == TypeChatValue
}
