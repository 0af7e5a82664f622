package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/squadron-project/squadron/internal/config"
	"github.com/squadron-project/squadron/internal/session"
	"github.com/squadron-project/squadron/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "squadron",
		"version": "1.0.0",
	})
}

// handleStatus returns host metrics plus a fleet summary.
func (s *Server) handleStatus(c *gin.Context) {
	sysInfo := util.GetSystemInfo()

	snapshot := s.gateway.Sessions()
	ready := 0
	for _, snap := range snapshot {
		if snap.State == session.StateReady {
			ready++
		}
	}

	status := gin.H{
		"hostname":        sysInfo.Hostname,
		"os":              sysInfo.OS,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
		"servers_total":   len(snapshot),
		"servers_ready":   ready,
	}

	if cpuPct, err := util.GetCPUUsage(); err == nil {
		status["cpu_percent"] = cpuPct
	}
	if memUsage, err := util.GetMemoryUsage(); err == nil {
		status["memory"] = memUsage
	}

	c.JSON(http.StatusOK, status)
}

// handleListServers returns every configured server with its session state.
func (s *Server) handleListServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"servers": s.gateway.Sessions(),
	})
}

// handleExtensionSchemas returns the settings schema of every built-in
// extension, so the console can render its settings forms.
func (s *Server) handleExtensionSchemas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"extensions": config.ExtensionSchemas(),
	})
}
