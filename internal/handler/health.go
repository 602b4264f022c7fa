// Package handler holds the fixed-body HTTP handlers.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthBody is the fixed health-check response.
const HealthBody = "Healthy"

// Health is the liveness/readiness target polled by the orchestrator.
// It performs no self-diagnosis: a process able to answer is healthy.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, HealthBody)
}
