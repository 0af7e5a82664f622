package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/gateway"
)

type executeRequest struct {
	Command string `json:"command" binding:"required"`
}

// handleExecute submits one raw console command to a server's session
// and returns the correlated response.
func (s *Server) handleExecute(c *gin.Context) {
	serverID := c.Param("id")

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	command := strings.TrimSpace(req.Command)
	if command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	result, err := s.gateway.Execute(c.Request.Context(), serverID, command)
	if err != nil {
		code, status := gateway.ErrorCode(err)
		log.Warn().Err(err).Str("server_id", serverID).Str("code", code).Msg("API: command failed")
		c.JSON(status, gin.H{"error": err.Error(), "code": code})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"correlation_id": result.CorrelationID,
		"command":        result.Command,
		"response":       result.Response,
		"duration_ms":    result.Duration,
	})
}

// handleListCommands returns the static command registry.
func (s *Server) handleListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"commands": gateway.Commands(),
	})
}

// handleAutocomplete suggests commands matching the q query parameter.
func (s *Server) handleAutocomplete(c *gin.Context) {
	q := c.Query("q")
	c.JSON(http.StatusOK, gin.H{
		"query":       q,
		"suggestions": gateway.Autocomplete(q),
	})
}

// handleForceRestart drops a server's connection and reconnects
// immediately, bypassing backoff and the failed state.
func (s *Server) handleForceRestart(c *gin.Context) {
	serverID := c.Param("id")

	if err := s.gateway.ForceRestart(serverID); err != nil {
		code, status := gateway.ErrorCode(err)
		c.JSON(status, gin.H{"error": err.Error(), "code": code})
		return
	}

	log.Info().Str("server_id", serverID).Msg("API: session restart forced")
	c.JSON(http.StatusOK, gin.H{
		"status":    "restarting",
		"server_id": serverID,
	})
}
