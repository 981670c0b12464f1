package api

import (
	"encoding/json"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
)

// maxRequestBodyBytes bounds the /mcp request body.
const maxRequestBodyBytes = 8 << 20

// mcpHandler handles POST /mcp: decode the JSON-RPC request, dispatch, and
// relay any cache headers onto the HTTP response.
func (s *Server) mcpHandler(c *echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRequestBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read request body")
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusOK, &mcp.Response{
			JSONRPC: "2.0",
			Error:   &mcp.ErrorDetail{Code: mcp.CodeParseError, Message: "parse error"},
		})
	}

	resp, header := s.dispatcher.Dispatch(c.Request().Context(), &req)
	if resp == nil {
		// Notification: accepted, nothing to say.
		return c.NoContent(http.StatusAccepted)
	}
	for key, values := range header {
		for _, v := range values {
			c.Response().Header().Add(key, v)
		}
	}
	return c.JSON(http.StatusOK, resp)
}
