package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes a frame into wire format:
// [size:4 LE][id:4 LE][type:4 LE][body][0x00][0x00].
// The size field counts everything after itself.
func Encode(id, typ int32, body string) ([]byte, error) {
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("frame body too large: %d bytes (max %d)", len(body), MaxBodySize)
	}

	size := int32(len(body) + frameOverhead)
	buf := make([]byte, HeaderSize+int(size))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(typ))
	copy(buf[12:], body)
	// Trailing two NUL bytes are already zeroed by make.
	return buf, nil
}

// EncodeAuth builds an auth request carrying the rcon password.
func EncodeAuth(id int32, password string) ([]byte, error) {
	return Encode(id, TypeAuth, password)
}

// EncodeCommand builds a command execution request.
func EncodeCommand(id int32, command string) ([]byte, error) {
	return Encode(id, TypeExecCommand, command)
}

// WriteFrame encodes and writes a single frame to w.
func WriteFrame(w io.Writer, id, typ int32, body string) error {
	data, err := Encode(id, typ, body)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
