package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/events"
	"github.com/squadron-project/squadron/internal/feed"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// handleFeedHistory returns a page of persisted events for one server
// and type, paginated by the opaque event-ID cursor.
func (s *Server) handleFeedHistory(c *gin.Context) {
	serverID := c.Param("id")
	if _, ok := s.cfg.GetServer(serverID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found", "code": "server_not_found"})
		return
	}

	typ := events.Type(c.Query("type"))
	if !typ.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or missing event type"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	before, err := parseCursor(c.Query("before"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
		return
	}
	after, err := parseCursor(c.Query("after"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
		return
	}

	page, hasMore, err := s.store.Query(serverID, typ, limit, before, after)
	if err != nil {
		log.Error().Err(err).Str("server_id", serverID).Msg("API: history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":   page,
		"has_more": hasMore,
	})
}

func parseCursor(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin enforcement happens in the CORS middleware; the upgrade
	// itself accepts any origin that got this far.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleFeedSocket upgrades to a WebSocket and streams live events
// matching the types filter, plus connection-status messages.
func (s *Server) handleFeedSocket(c *gin.Context) {
	serverID := c.Param("id")
	if _, ok := s.cfg.GetServer(serverID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found", "code": "server_not_found"})
		return
	}

	types, err := events.ParseTypes(c.Query("types"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("server_id", serverID).Msg("API: websocket upgrade failed")
		return
	}

	sub := s.hub.Subscribe(serverID, types)

	log.Info().
		Str("server_id", serverID).
		Str("remote", conn.RemoteAddr().String()).
		Int("subscribers", s.hub.SubscriberCount(serverID)).
		Msg("feed client connected")

	go feedWriter(conn, sub)
	feedReader(conn, sub)
}

// feedReader drains client frames until the socket closes, then tears
// the subscription down. Clients send nothing meaningful; reads exist
// to notice disconnects and answer pings.
func feedReader(conn *websocket.Conn, sub *feed.Subscription) {
	defer func() {
		sub.Close()
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// feedWriter pumps subscription messages to the socket and pings the
// client to keep intermediaries from idling the connection out.
func feedWriter(conn *websocket.Conn, sub *feed.Subscription) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
