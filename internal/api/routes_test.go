package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-project/squadron/internal/config"
	"github.com/squadron-project/squadron/internal/events"
	"github.com/squadron-project/squadron/internal/feed"
	"github.com/squadron-project/squadron/internal/gateway"
	"github.com/squadron-project/squadron/internal/schema"
	"github.com/squadron-project/squadron/internal/session"
	"github.com/squadron-project/squadron/internal/store"
)

func testServer(t *testing.T, authDisabled bool) (*Server, store.Store, *session.Registry) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Servers = []config.ServerData{
		{ID: "srv-1", Name: "EU #1", Host: "127.0.0.1", RconPort: 21114, RconPassword: "secret"},
	}
	app := cfg.GetApplicationData()
	app.Security.AuthDisabled = authDisabled
	app.Security.BearerTokens = []string{"valid-token"}
	app.Security.RateLimitRPS = 0 // keep limiter out of handler tests
	cfg.SetApplicationData(app)

	st := store.NewMemoryStore(0)
	hub := feed.NewHub(0)
	registry := session.NewRegistry(st, hub)
	t.Cleanup(registry.Shutdown)

	srv := NewServer(cfg, gateway.New(registry), st, hub)
	srv.router = srv.buildRouter()
	return srv, st, registry
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestPingIsPublic(t *testing.T) {
	srv, _, _ := testServer(t, false)

	w := doRequest(srv, http.MethodGet, "/api/public/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "squadron")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _, _ := testServer(t, false)

	w := doRequest(srv, http.MethodGet, "/api/servers", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/servers", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExecuteUnknownServerIs404(t *testing.T) {
	srv, _, _ := testServer(t, true)

	w := doRequest(srv, http.MethodPost, "/api/servers/nope/rcon/execute", `{"command":"ListPlayers"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "server_not_found")
}

func TestExecuteWhileDisconnectedIs503(t *testing.T) {
	srv, _, registry := testServer(t, true)

	// A session dialing a dead port never reaches Ready.
	registry.Add(context.Background(), session.Config{
		ServerID:   "srv-1",
		Addr:       "127.0.0.1:1",
		Password:   "secret",
		BackoffMin: time.Hour,
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		w := doRequest(srv, http.MethodPost, "/api/servers/srv-1/rcon/execute", `{"command":"ListPlayers"}`)
		if w.Code == http.StatusServiceUnavailable {
			assert.Contains(t, w.Body.String(), "session_not_ready")
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExecuteRejectsEmptyCommand(t *testing.T) {
	srv, _, _ := testServer(t, true)

	w := doRequest(srv, http.MethodPost, "/api/servers/srv-1/rcon/execute", `{"command":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(srv, http.MethodPost, "/api/servers/srv-1/rcon/execute", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCommandsAndAutocomplete(t *testing.T) {
	srv, _, _ := testServer(t, true)

	w := doRequest(srv, http.MethodGet, "/api/servers/srv-1/rcon/commands", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Commands []gateway.CommandInfo `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.NotEmpty(t, listResp.Commands)

	w = doRequest(srv, http.MethodGet, "/api/servers/srv-1/rcon/commands/autocomplete?q=adminban", "")
	require.Equal(t, http.StatusOK, w.Code)

	var acResp struct {
		Suggestions []gateway.CommandInfo `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acResp))
	require.Len(t, acResp.Suggestions, 1)
	assert.Equal(t, "AdminBan", acResp.Suggestions[0].Name)
}

func TestExtensionSchemasEndpoint(t *testing.T) {
	srv, _, _ := testServer(t, true)

	w := doRequest(srv, http.MethodGet, "/api/extensions/schema", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Extensions map[string]schema.Field `json:"extensions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp.Extensions, "seeding")
	assert.Equal(t, schema.KindObject, resp.Extensions["seeding"].Kind)
}

func TestFeedHistoryPagination(t *testing.T) {
	srv, st, _ := testServer(t, true)

	for i := 0; i < 75; i++ {
		_, err := st.Append(&events.Event{
			ServerID:  "srv-1",
			Type:      events.TypeChat,
			Timestamp: time.Now().UTC(),
			Payload:   events.ChatPayload{Channel: "all", PlayerName: "p", Message: fmt.Sprintf("msg %d", i)},
		})
		require.NoError(t, err)
	}

	w := doRequest(srv, http.MethodGet, "/api/servers/srv-1/feeds/history?type=chat&limit=50", "")
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Events  []events.Event `json:"events"`
		HasMore bool           `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Events, 50)
	assert.True(t, page.HasMore)

	next := fmt.Sprintf("/api/servers/srv-1/feeds/history?type=chat&limit=50&after=%d", page.Events[49].ID)
	w = doRequest(srv, http.MethodGet, next, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Events, 25)
	assert.False(t, page.HasMore)
}

func TestFeedHistoryRejectsBadParams(t *testing.T) {
	srv, _, _ := testServer(t, true)

	w := doRequest(srv, http.MethodGet, "/api/servers/srv-1/feeds/history?type=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(srv, http.MethodGet, "/api/servers/srv-1/feeds/history?type=chat&before=notanumber", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(srv, http.MethodGet, "/api/servers/missing/feeds/history?type=chat", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmptyHistoryPage(t *testing.T) {
	srv, _, _ := testServer(t, true)

	w := doRequest(srv, http.MethodGet, "/api/servers/srv-1/feeds/history?type=teamkill", "")
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Events  []events.Event `json:"events"`
		HasMore bool           `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Empty(t, page.Events)
	assert.False(t, page.HasMore)
}
