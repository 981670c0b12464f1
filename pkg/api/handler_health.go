package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/version"
)

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status        string `json:"status"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	WSConnections int    `json:"ws_connections"`
}

// healthHandler handles GET /health. Minimal and unauthenticated; upstream
// reachability is deliberately not probed so an upstream outage does not get
// this process restarted.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:        "healthy",
		Name:          version.AppName,
		Version:       version.GitCommit,
		UptimeSeconds: int64(time.Since(s.started) / time.Second),
		WSConnections: s.ws.ActiveConnections(),
	})
}
