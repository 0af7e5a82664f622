package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Decoder is a streaming frame parser. The transport delivers arbitrary
// byte chunks; Feed consumes them, emits every complete frame, and
// retains any trailing partial frame for the next call.
type Decoder struct {
	buf    bytes.Buffer
	logger zerolog.Logger
}

// NewDecoder creates a streaming decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		logger: log.With().Str("component", "rcon_decoder").Logger(),
	}
}

// Feed appends p to the internal buffer and returns all frames that
// completed. Frames with an unknown type tag are skipped and decoding
// continues past them, so a valid frame sharing a chunk with a skipped
// one is never stranded in the buffer; the last skip is reported
// through a non-fatal ProtocolError alongside the decoded frames.
// Oversized length prefixes are fatal.
func (d *Decoder) Feed(p []byte) ([]Frame, error) {
	d.buf.Write(p)

	var frames []Frame
	var skipped error
	for {
		data := d.buf.Bytes()
		if len(data) < HeaderSize {
			return frames, skipped
		}

		size := int32(binary.LittleEndian.Uint32(data[:HeaderSize]))
		if size < frameOverhead || size > MaxFrameSize {
			return frames, &ProtocolError{
				Kind:   ErrOversized,
				Detail: fmt.Sprintf("length prefix %d outside [%d, %d]", size, frameOverhead, MaxFrameSize),
			}
		}

		total := HeaderSize + int(size)
		if len(data) < total {
			return frames, skipped
		}

		id := int32(binary.LittleEndian.Uint32(data[4:8]))
		typ := int32(binary.LittleEndian.Uint32(data[8:12]))
		body := data[12 : total-2]

		// Consume the frame before validating the type so a skipped
		// frame does not wedge the stream.
		frame := Frame{
			ID:   id,
			Type: typ,
			Body: string(bytes.TrimRight(body, "\x00")),
		}
		d.buf.Next(total)

		if typ < TypeResponseValue || typ > TypeAuth {
			d.logger.Warn().
				Int32("type", typ).
				Int32("id", id).
				Int("body_len", len(body)).
				Msg("skipping frame with unknown type tag")
			skipped = &ProtocolError{
				Kind:   ErrUnknownType,
				Detail: fmt.Sprintf("type tag %d", typ),
			}
			continue
		}

		frames = append(frames, frame)
	}
}

// Pending returns the number of buffered bytes belonging to an
// incomplete frame. A non-zero value after a read timeout means the
// stream truncated mid-frame.
func (d *Decoder) Pending() int {
	return d.buf.Len()
}

// Reset discards any buffered partial frame.
func (d *Decoder) Reset() {
	d.buf.Reset()
}
