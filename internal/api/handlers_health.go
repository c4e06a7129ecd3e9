// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	registry Registry
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, registry Registry) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		registry: registry,
	}
}

// HandleHealth returns server health status along with registry counters
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.registry != nil {
		snap := h.registry.Snapshot()
		resp["uploads"] = len(snap.Records)
		resp["totalSize"] = snap.TotalSize
		resp["busy"] = snap.IsBusy
	}
	return c.JSON(http.StatusOK, resp)
}
