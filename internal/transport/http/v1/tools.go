package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListTools returns the tool catalog with tiers and schemas.
// GET /v1/tools
func (h *Handler) ListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.ListTools())
}
