// Package session owns the lifecycle of one remote-console link per
// game server: connect, authenticate, reconnect with backoff, health
// checks, and conversion of raw broadcasts into typed domain events.
package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/events"
	"github.com/squadron-project/squadron/internal/feed"
	"github.com/squadron-project/squadron/internal/rcon"
	"github.com/squadron-project/squadron/internal/store"
)

// ErrSessionNotReady is returned by Execute when no authenticated
// connection is available. Callers decide whether to retry; the
// session never queues commands while down.
var ErrSessionNotReady = errors.New("session not ready")

// errRestartRequested ends supervision when an operator forces a
// reconnect; it skips the backoff sleep entirely.
var errRestartRequested = errors.New("restart requested")

// State is the session's lifecycle state, driven only by the manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateReconnecting
	StateFailed
)

var stateStrings = map[State]string{
	StateDisconnected:   "disconnected",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateReady:          "ready",
	StateReconnecting:   "reconnecting",
	StateFailed:         "failed",
}

// String returns the lowercase name of the state.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes State as a JSON string (e.g. "ready").
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Config holds one session's connection parameters and policy knobs.
// The durations are defaults, not contractual constants.
type Config struct {
	ServerID string
	Addr     string
	Password string

	DialTimeout    time.Duration
	CommandTimeout time.Duration

	BackoffMin  time.Duration // initial reconnect delay (default 1s)
	BackoffMax  time.Duration // reconnect delay ceiling (default 30s)
	StableReset time.Duration // Ready period that resets backoff (default 60s)

	HealthInterval time.Duration // health check period (default 30s)
	HealthCommand  string        // lightweight probe command
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = rcon.DefaultDialTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = rcon.DefaultCommandTimeout
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.StableReset <= 0 {
		c.StableReset = 60 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.HealthCommand == "" {
		c.HealthCommand = "ShowCurrentMap"
	}
	return c
}

// Manager owns exactly one Session and its connection. No other
// component mutates session state.
type Manager struct {
	cfg    Config
	store  store.Store
	hub    *feed.Hub
	logger zerolog.Logger

	mu      sync.RWMutex
	state   State
	lastErr error
	conn    *rcon.Connection

	restartCh chan struct{}
}

// NewManager creates a session manager. Call Run to start it.
func NewManager(cfg Config, st store.Store, hub *feed.Hub) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:       cfg,
		store:     st,
		hub:       hub,
		logger:    log.With().Str("component", "session").Str("server_id", cfg.ServerID).Logger(),
		state:     StateDisconnected,
		restartCh: make(chan struct{}, 1),
	}
}

// Run maintains the connection until ctx is cancelled. Each server's
// manager runs on its own goroutine, so a stall on one server's socket
// never blocks another's.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info().Str("addr", m.cfg.Addr).Msg("session manager starting")

	backoff := m.cfg.BackoffMin
	for {
		if ctx.Err() != nil {
			m.teardown()
			return
		}

		m.setState(StateConnecting, nil)
		m.hub.PublishStatus(m.cfg.ServerID, "connecting", "")

		closedCh := make(chan error, 1)
		conn, err := rcon.Dial(ctx, rcon.Config{
			Addr:           m.cfg.Addr,
			Password:       m.cfg.Password,
			DialTimeout:    m.cfg.DialTimeout,
			CommandTimeout: m.cfg.CommandTimeout,
		}, rcon.Handlers{
			Broadcast: m.handleBroadcast,
			Closed:    func(err error) { closedCh <- err },
		})

		if err != nil {
			if errors.Is(err, rcon.ErrAuthFailed) {
				// Wrong password is not a transient fault. Stop until
				// an operator fixes credentials and forces a restart.
				m.logger.Error().Msg("authentication rejected, session failed until restart")
				m.setState(StateFailed, err)
				m.hub.PublishStatus(m.cfg.ServerID, "error", "authentication failed")

				select {
				case <-ctx.Done():
					m.teardown()
					return
				case <-m.restartCh:
					backoff = m.cfg.BackoffMin
					continue
				}
			}

			m.logger.Warn().Err(err).Dur("backoff", backoff).Msg("connection attempt failed")
			m.setState(StateReconnecting, err)
			m.hub.PublishStatus(m.cfg.ServerID, "error", err.Error())

			if !m.sleep(ctx, backoff) {
				m.teardown()
				return
			}
			backoff = m.nextBackoff(backoff)
			continue
		}

		m.setConn(conn)
		m.setState(StateReady, nil)
		m.hub.PublishStatus(m.cfg.ServerID, "connected", "")
		readyAt := time.Now()

		err = m.supervise(ctx, conn, closedCh)
		m.setConn(nil)

		if ctx.Err() != nil {
			m.teardown()
			return
		}

		m.setState(StateReconnecting, err)
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		m.hub.PublishStatus(m.cfg.ServerID, "error", detail)

		// A forced restart reconnects immediately with a fresh ladder.
		if errors.Is(err, errRestartRequested) {
			backoff = m.cfg.BackoffMin
			continue
		}

		// A long stable period means the drop was a blip, not chronic
		// failure; restart the backoff ladder from the bottom.
		if time.Since(readyAt) >= m.cfg.StableReset {
			backoff = m.cfg.BackoffMin
		}

		if !m.sleep(ctx, backoff) {
			m.teardown()
			return
		}
		backoff = m.nextBackoff(backoff)
	}
}

// supervise watches a live connection until it dies, a restart is
// forced, or ctx is cancelled. Returns the error that ended it.
func (m *Manager) supervise(ctx context.Context, conn *rcon.Connection, closedCh <-chan error) error {
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			<-closedCh
			return ctx.Err()

		case err := <-closedCh:
			m.logger.Warn().Err(err).Msg("connection lost")
			return err

		case <-m.restartCh:
			m.logger.Info().Msg("force restart requested")
			conn.Close()
			<-closedCh
			return errRestartRequested

		case <-ticker.C:
			// Detect silently-dead connections that have not yet
			// produced a socket error. A failed probe closes the
			// connection, which surfaces on closedCh.
			go func() {
				if _, err := conn.Execute(ctx, m.cfg.HealthCommand); err != nil &&
					!errors.Is(err, context.Canceled) {
					m.logger.Warn().Err(err).Msg("health check failed, resetting connection")
					conn.Close()
				}
			}()
		}
	}
}

// Execute runs a command on the current connection. Fails fast with
// ErrSessionNotReady when the link is down rather than queuing.
func (m *Manager) Execute(ctx context.Context, command string) (string, error) {
	m.mu.RLock()
	conn := m.conn
	state := m.state
	lastErr := m.lastErr
	m.mu.RUnlock()

	if state == StateFailed {
		if lastErr != nil {
			return "", lastErr
		}
		return "", rcon.ErrAuthFailed
	}
	if conn == nil || state != StateReady {
		return "", ErrSessionNotReady
	}

	out, err := conn.Execute(ctx, command)
	if errors.Is(err, rcon.ErrNotReady) {
		return "", ErrSessionNotReady
	}
	return out, err
}

// ForceRestart drops the current connection (or cancels a backoff
// sleep / failed wait) and reconnects immediately.
func (m *Manager) ForceRestart() {
	select {
	case m.restartCh <- struct{}{}:
	default: // restart already pending
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the most recent connection error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// ServerID returns the server this session belongs to.
func (m *Manager) ServerID() string {
	return m.cfg.ServerID
}

// Addr returns the remote-console address this session dials.
func (m *Manager) Addr() string {
	return m.cfg.Addr
}

// handleBroadcast converts one raw broadcast line into a domain event,
// appends it to the store, then publishes it to the feed hub. Append
// happens strictly before publish so a client fetching history right
// after a live event always finds it persisted. Both run on the
// connection's read-loop goroutine, which preserves ordering.
func (m *Manager) handleBroadcast(line string) {
	ev, err := events.ParseBroadcast(m.cfg.ServerID, line)
	if err != nil {
		if errors.Is(err, events.ErrUnrecognizedBroadcast) {
			m.logger.Debug().Str("line", line).Msg("ignoring unrecognized broadcast")
		} else {
			m.logger.Warn().Err(err).Msg("broadcast parse failed")
		}
		return
	}

	if _, err := m.store.Append(ev); err != nil {
		m.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to persist event")
		return
	}

	m.hub.Publish(ev)
}

// sleep waits for d unless the context is cancelled or a restart is
// forced. Returns false when the session should stop.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-m.restartCh:
		return true // skip the rest of the backoff
	case <-timer.C:
		return true
	}
}

// nextBackoff doubles the delay up to the ceiling, with up to 25%
// jitter to avoid reconnect stampedes across a fleet.
func (m *Manager) nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > m.cfg.BackoffMax {
		next = m.cfg.BackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(next) / 4))
	if next+jitter > m.cfg.BackoffMax {
		return m.cfg.BackoffMax
	}
	return next + jitter
}

func (m *Manager) setState(s State, err error) {
	m.mu.Lock()
	m.state = s
	if err != nil {
		m.lastErr = err
	} else if s == StateReady {
		m.lastErr = nil
	}
	m.mu.Unlock()
}

func (m *Manager) setConn(conn *rcon.Connection) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}

func (m *Manager) teardown() {
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.mu.Unlock()
	m.logger.Info().Msg("session manager stopped")
}
