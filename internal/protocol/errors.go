package protocol

import "fmt"

// ErrorKind classifies protocol faults.
type ErrorKind int

const (
	// ErrTruncated indicates a partial frame that never completed.
	ErrTruncated ErrorKind = iota
	// ErrOversized indicates a length prefix exceeding MaxFrameSize.
	ErrOversized
	// ErrUnknownType indicates a frame with an unrecognized type tag.
	ErrUnknownType
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTruncated:
		return "truncated"
	case ErrOversized:
		return "oversized"
	case ErrUnknownType:
		return "unknown_type"
	default:
		return "unknown"
	}
}

// ProtocolError describes a malformed or untrusted byte stream.
type ProtocolError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol error: %s", e.Kind)
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Kind, e.Detail)
}

// Fatal reports whether the error requires dropping the connection.
// A stream that desynchronized cannot be trusted to resynchronize, so
// truncated and oversized frames are fatal. Unknown type tags on the
// broadcast path are skipped for forward compatibility.
func (e *ProtocolError) Fatal() bool {
	return e.Kind != ErrUnknownType
}
