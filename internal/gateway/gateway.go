// Package gateway is the request/response façade between the API layer
// and the per-server sessions: command execution with correlation IDs,
// the static command registry, and the API-facing error taxonomy.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/protocol"
	"github.com/squadron-project/squadron/internal/rcon"
	"github.com/squadron-project/squadron/internal/session"
)

// ErrUnknownServer is returned when no session exists for the
// requested server ID.
var ErrUnknownServer = errors.New("unknown server")

// ExecuteResult carries a completed command round trip back to the
// API layer.
type ExecuteResult struct {
	CorrelationID string        `json:"correlation_id"`
	Command       string        `json:"command"`
	Response      string        `json:"response"`
	Duration      time.Duration `json:"duration_ms"`
}

// Gateway routes ad-hoc commands to the right session manager.
type Gateway struct {
	registry *session.Registry
	logger   zerolog.Logger
}

// New creates a gateway over the given session registry.
func New(registry *session.Registry) *Gateway {
	return &Gateway{
		registry: registry,
		logger:   log.With().Str("component", "gateway").Logger(),
	}
}

// Execute runs one raw command against a server's session and waits
// for the correlated reply. Every call gets a correlation ID that is
// logged on both submission and completion so operator actions can be
// traced end to end.
func (g *Gateway) Execute(ctx context.Context, serverID, command string) (ExecuteResult, error) {
	mgr, ok := g.registry.Get(serverID)
	if !ok {
		return ExecuteResult{}, ErrUnknownServer
	}

	corrID := uuid.NewString()
	logger := g.logger.With().Str("server_id", serverID).Str("correlation_id", corrID).Logger()
	logger.Info().Str("command", command).Msg("executing command")

	start := time.Now()
	response, err := mgr.Execute(ctx, command)
	elapsed := time.Since(start)

	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("command failed")
		return ExecuteResult{}, err
	}

	logger.Info().Dur("elapsed", elapsed).Int("response_len", len(response)).Msg("command completed")
	return ExecuteResult{
		CorrelationID: corrID,
		Command:       command,
		Response:      response,
		Duration:      elapsed / time.Millisecond,
	}, nil
}

// ForceRestart drops a server's connection and reconnects immediately,
// bypassing any backoff sleep or failed state.
func (g *Gateway) ForceRestart(serverID string) error {
	mgr, ok := g.registry.Get(serverID)
	if !ok {
		return ErrUnknownServer
	}
	g.logger.Info().Str("server_id", serverID).Msg("force restart requested")
	mgr.ForceRestart()
	return nil
}

// Sessions lists every registered session's snapshot.
func (g *Gateway) Sessions() []session.Snapshot {
	return g.registry.List()
}

// ErrorCode maps a gateway error to its API-facing code and HTTP
// status. Unrecognized errors fall through to a generic 500.
func ErrorCode(err error) (string, int) {
	var perr *protocol.ProtocolError
	switch {
	case errors.Is(err, ErrUnknownServer):
		return "server_not_found", http.StatusNotFound
	case errors.Is(err, session.ErrSessionNotReady):
		return "session_not_ready", http.StatusServiceUnavailable
	case errors.Is(err, rcon.ErrCommandTimeout):
		return "command_timeout", http.StatusGatewayTimeout
	case errors.Is(err, rcon.ErrAuthFailed):
		return "authentication_failed", http.StatusBadGateway
	case errors.As(err, &perr):
		return "protocol_error", http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request_cancelled", http.StatusGatewayTimeout
	default:
		return "internal_error", http.StatusInternalServerError
	}
}
