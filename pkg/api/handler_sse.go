package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/errdefs"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
)

// sseHandler streams operation events as Server-Sent Events. Frames carry the
// tracker event ID so clients reconnect with Last-Event-ID and replay the
// gap. With ?progressToken=, progress events are framed as JSON-RPC
// notifications/progress payloads instead of raw events.
func (s *Server) sseHandler(c *echo.Context) error {
	operationID := c.Param("operation_id")
	lastEventID := c.Request().Header.Get("Last-Event-ID")
	if v := c.QueryParam("lastEventID"); v != "" {
		lastEventID = v
	}
	progressToken := c.QueryParam("progressToken")

	sub, err := s.tracker.Subscribe(operationID, c.Request().Context(), lastEventID)
	if err != nil {
		return echo.NewHTTPError(errdefs.HTTPStatus(err), err.Error())
	}
	defer sub.Close()

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	flusher.Flush()

	for ev := range sub.Events() {
		data, err := sseEventData(ev, progressToken)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(c.Response(),
			"id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Kind, data); err != nil {
			// Client went away; the subscription context unwinds on return.
			return nil
		}
		flusher.Flush()
	}
	return nil
}

func sseEventData(ev progress.Event, progressToken string) ([]byte, error) {
	if progressToken != "" && ev.Kind == progress.EventProgress && ev.Progress != nil {
		return json.Marshal(mcp.ProgressNotification(
			progressToken, ev.Progress.Percentage, ev.Progress.Message))
	}
	return json.Marshal(ev)
}
