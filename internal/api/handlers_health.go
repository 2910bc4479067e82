// handlers_health.go - Health check handlers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// upstreamCheckTimeout bounds the service probe of a health request.
const upstreamCheckTimeout = 3 * time.Second

// UpstreamChecker probes the remote service.
type UpstreamChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions SessionManager
	upstream UpstreamChecker
}

// NewHealthHandler creates a new health handler. upstream may be nil.
func NewHealthHandler(version string, sessions SessionManager, upstream UpstreamChecker) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
		upstream: upstream,
	}
}

// HandleHealth returns server health status. The server stays "ok" when the
// service is down; the service state is reported next to it.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Count()
	}
	if h.upstream != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), upstreamCheckTimeout)
		defer cancel()
		if err := h.upstream.CheckHealth(ctx); err != nil {
			resp["service"] = "unreachable"
			resp["serviceError"] = err.Error()
		} else {
			resp["service"] = "ok"
		}
	}
	return c.JSON(http.StatusOK, resp)
}
