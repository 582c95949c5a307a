// Package handler contains the HTTP handlers of the API.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health answers liveness probes on GET / and GET /health.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
