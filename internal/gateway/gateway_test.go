package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-project/squadron/internal/feed"
	"github.com/squadron-project/squadron/internal/protocol"
	"github.com/squadron-project/squadron/internal/rcon"
	"github.com/squadron-project/squadron/internal/session"
	"github.com/squadron-project/squadron/internal/store"
)

func TestExecuteUnknownServer(t *testing.T) {
	g := New(session.NewRegistry(store.NewMemoryStore(0), feed.NewHub(0)))

	_, err := g.Execute(context.Background(), "nope", "ListPlayers")
	assert.ErrorIs(t, err, ErrUnknownServer)

	assert.ErrorIs(t, g.ForceRestart("nope"), ErrUnknownServer)
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{ErrUnknownServer, "server_not_found", http.StatusNotFound},
		{session.ErrSessionNotReady, "session_not_ready", http.StatusServiceUnavailable},
		{rcon.ErrCommandTimeout, "command_timeout", http.StatusGatewayTimeout},
		{rcon.ErrAuthFailed, "authentication_failed", http.StatusBadGateway},
		{&protocol.ProtocolError{Kind: protocol.ErrTruncated}, "protocol_error", http.StatusBadGateway},
		{context.DeadlineExceeded, "request_cancelled", http.StatusGatewayTimeout},
		{assert.AnError, "internal_error", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, status := ErrorCode(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestAutocompletePrefixBeforeSubstring(t *testing.T) {
	got := Autocomplete("admin")
	require.NotEmpty(t, got)
	for _, ci := range got {
		assert.True(t, len(ci.Name) >= 5 && ci.Name[:5] == "Admin", ci.Name)
	}

	// Prefix matches come first.
	got = Autocomplete("list")
	require.NotEmpty(t, got)
	assert.Equal(t, "ListPlayers", got[0].Name)

	// Substring matches are still found.
	found := false
	for _, ci := range Autocomplete("players") {
		if ci.Name == "ListPlayers" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAutocompleteCollapsesOnExactFirstToken(t *testing.T) {
	got := Autocomplete("adminkick Mordecai trolling")
	require.Len(t, got, 1)
	assert.Equal(t, "AdminKick", got[0].Name)

	// Exact name with no arguments collapses too.
	got = Autocomplete("ListPlayers")
	require.Len(t, got, 1)
	assert.Equal(t, "ListPlayers", got[0].Name)
}

func TestAutocompleteEmptyReturnsAll(t *testing.T) {
	assert.Len(t, Autocomplete("   "), len(Commands()))
}

func TestLookupCaseInsensitive(t *testing.T) {
	ci, ok := Lookup("adminbroadcast")
	require.True(t, ok)
	assert.Equal(t, "AdminBroadcast", ci.Name)

	_, ok = Lookup("NotACommand")
	assert.False(t, ok)
}
