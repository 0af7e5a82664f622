// Package rcon implements a single persistent remote-console
// connection to one game server: the authentication handshake,
// serialized command execution with correlated responses, and
// unsolicited broadcast dispatch.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/protocol"
)

const (
	// DefaultDialTimeout bounds the TCP connect plus auth handshake.
	DefaultDialTimeout = 10 * time.Second
	// DefaultCommandTimeout bounds a single command round trip.
	DefaultCommandTimeout = 10 * time.Second
	// readIdleTimeout is the rolling read deadline. Hitting it with an
	// empty decode buffer is normal (quiet server); hitting it with a
	// partial frame buffered means the stream truncated.
	readIdleTimeout = 60 * time.Second
)

// Sentinel errors surfaced to the session manager and API callers.
var (
	ErrAuthFailed     = errors.New("rcon authentication failed")
	ErrCommandTimeout = errors.New("rcon command timed out")
	ErrNotReady       = errors.New("rcon connection not ready")
)

// State is the connection's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds the parameters for one connection attempt.
type Config struct {
	Addr           string
	Password       string
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DialTimeout <= 0 {
		out.DialTimeout = DefaultDialTimeout
	}
	if out.CommandTimeout <= 0 {
		out.CommandTimeout = DefaultCommandTimeout
	}
	return out
}

// Handlers receives asynchronous notifications from the read loop.
type Handlers struct {
	// Broadcast is invoked for each unsolicited broadcast body.
	Broadcast func(line string)
	// Closed is invoked exactly once when the connection dies, with
	// the error that killed it (nil on deliberate Close).
	Closed func(err error)
}

// pendingCmd tracks the single in-flight command. The protocol
// multiplexes by one sequence counter the server echoes back, so there
// is never more than one.
type pendingCmd struct {
	id    int32
	endID int32
	buf   strings.Builder
	done  chan string
}

// Connection is one live, authenticated remote-console session over a
// single TCP connection. A connection that errors is discarded; the
// session manager dials a fresh one on each reconnect attempt.
type Connection struct {
	cfg      Config
	handlers Handlers
	logger   zerolog.Logger

	conn net.Conn
	dec  *protocol.Decoder

	state atomic.Int32
	seq   atomic.Int32

	writeMu   sync.Mutex // guards writes to conn
	execMu    sync.Mutex // serializes Execute callers
	pendingMu sync.Mutex
	pending   *pendingCmd

	closedCh  chan struct{}
	closeOnce sync.Once
}

// Dial opens a TCP connection, authenticates, and starts the read
// loop. A wrong password returns ErrAuthFailed; the caller must treat
// that as terminal rather than a transient fault.
func Dial(ctx context.Context, cfg Config, handlers Handlers) (*Connection, error) {
	cfg = cfg.withDefaults()

	c := &Connection{
		cfg:      cfg,
		handlers: handlers,
		logger:   log.With().Str("component", "rcon_conn").Str("addr", cfg.Addr).Logger(),
		dec:      protocol.NewDecoder(),
		closedCh: make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Addr, err)
	}
	c.conn = conn

	c.state.Store(int32(StateAuthenticating))
	if err := c.authenticate(); err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		return nil, err
	}

	c.state.Store(int32(StateReady))
	c.logger.Info().Msg("rcon connection ready")

	go c.readLoop()

	return c, nil
}

// authenticate sends the stored password and waits for the auth
// response. The server echoes the request ID on success and -1 on a
// rejected password.
func (c *Connection) authenticate() error {
	authID := c.nextSeq()

	deadline := time.Now().Add(c.cfg.DialTimeout)
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if err := c.writeFrame(authID, protocol.TypeAuth, c.cfg.Password); err != nil {
		return fmt.Errorf("failed to send auth request: %w", err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return fmt.Errorf("auth handshake read failed: %w", err)
		}

		frames, ferr := c.dec.Feed(buf[:n])
		if ferr != nil {
			var perr *protocol.ProtocolError
			if errors.As(ferr, &perr) && !perr.Fatal() {
				c.logger.Warn().Err(ferr).Msg("skipped frame during auth handshake")
			} else {
				return fmt.Errorf("auth handshake: %w", ferr)
			}
		}

		for _, f := range frames {
			// Some servers precede the auth response with an empty
			// response-value frame; ignore anything that is not the
			// auth response itself.
			if f.Type != protocol.TypeAuthResponse {
				continue
			}
			if f.ID == protocol.AuthFailedID {
				return ErrAuthFailed
			}
			if f.ID == authID {
				return nil
			}
		}
	}
}

// State returns the connection's current state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Execute sends a command and waits for the correlated response.
// Commands are strictly serialized: concurrent callers queue. The
// response may span several frames; an empty follow-up request with
// its own ID acts as the end marker, since the server answers requests
// in order.
func (c *Connection) Execute(ctx context.Context, command string) (string, error) {
	if c.State() != StateReady {
		return "", ErrNotReady
	}

	c.execMu.Lock()
	defer c.execMu.Unlock()

	if c.State() != StateReady {
		return "", ErrNotReady
	}

	id := c.nextSeq()
	endID := c.nextSeq()

	p := &pendingCmd{id: id, endID: endID, done: make(chan string, 1)}
	c.pendingMu.Lock()
	c.pending = p
	c.pendingMu.Unlock()

	// A timeout cancels only this caller's wait; a stale response
	// arriving later is discarded by correlation-ID mismatch.
	defer func() {
		c.pendingMu.Lock()
		if c.pending == p {
			c.pending = nil
		}
		c.pendingMu.Unlock()
	}()

	if err := c.writeFrame(id, protocol.TypeExecCommand, command); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	if err := c.writeFrame(endID, protocol.TypeExecCommand, ""); err != nil {
		return "", fmt.Errorf("failed to send end marker: %w", err)
	}

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case body := <-p.done:
		return body, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.closedCh:
		return "", ErrNotReady
	case <-timer.C:
		c.logger.Warn().Str("command", command).Msg("command timed out")
		return "", ErrCommandTimeout
	}
}

// Close tears the connection down deliberately.
func (c *Connection) Close() {
	c.shutdown(nil)
}

// writeFrame encodes and writes one frame. The write mutex keeps the
// command and end-marker writes of concurrent callers from
// interleaving on the wire.
func (c *Connection) writeFrame(id, typ int32, body string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteFrame(c.conn, id, typ, body)
}

// readLoop continuously reads frames and dispatches them: correlated
// responses to the pending command, broadcasts to the handler.
func (c *Connection) readLoop() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-c.closedCh:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(readIdleTimeout))

		n, err := c.conn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if c.dec.Pending() > 0 {
					c.shutdown(&protocol.ProtocolError{
						Kind:   protocol.ErrTruncated,
						Detail: fmt.Sprintf("%d bytes of partial frame after read timeout", c.dec.Pending()),
					})
					return
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info().Msg("server closed rcon connection")
			} else {
				c.logger.Error().Err(err).Msg("rcon read error")
			}
			c.shutdown(err)
			return
		}

		frames, ferr := c.dec.Feed(buf[:n])
		for _, f := range frames {
			c.dispatch(f)
		}
		if ferr != nil {
			var perr *protocol.ProtocolError
			if errors.As(ferr, &perr) && !perr.Fatal() {
				continue // unknown broadcast type, already logged
			}
			c.logger.Error().Err(ferr).Msg("rcon stream desynchronized")
			c.shutdown(ferr)
			return
		}
	}
}

// dispatch routes a single frame. Broadcasts are discriminated by
// frame type, never by arrival order, so they cannot be confused with
// command responses.
func (c *Connection) dispatch(f protocol.Frame) {
	if f.IsBroadcast() {
		if c.handlers.Broadcast != nil {
			c.handlers.Broadcast(f.Body)
		}
		return
	}

	if f.Type != protocol.TypeResponseValue {
		return
	}

	c.pendingMu.Lock()
	p := c.pending
	var completed string
	var complete bool
	if p != nil {
		switch f.ID {
		case p.id:
			p.buf.WriteString(f.Body)
		case p.endID:
			completed = p.buf.String()
			complete = true
			c.pending = nil
		default:
			c.logger.Debug().Int32("id", f.ID).Msg("discarding stale response")
		}
	}
	c.pendingMu.Unlock()

	if complete {
		p.done <- completed
	}
}

// shutdown closes the socket once and notifies the owner.
func (c *Connection) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.closedCh)
		c.conn.Close()
		if c.handlers.Closed != nil {
			c.handlers.Closed(err)
		}
	})
}

// nextSeq returns the next request ID, skipping negative values so the
// auth-failure sentinel can never collide with a real ID.
func (c *Connection) nextSeq() int32 {
	for {
		id := c.seq.Add(1)
		if id > 0 {
			return id
		}
		c.seq.Store(0)
	}
}
