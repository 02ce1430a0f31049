package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wrapshot/agent/internal/domain"
)

// SendMessage runs one user turn.
// POST /v1/projects/:project_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	tc, err := toolContext(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return h.respondError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}

	resp, err := h.service.SendMessage(c.Request().Context(), tc, req.Message)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListMessages returns the latest messages of a project.
// GET /v1/projects/:project_id/messages
func (h *Handler) ListMessages(c echo.Context) error {
	tc, err := toolContext(c)
	if err != nil {
		return h.respondError(c, err)
	}
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 || val > 500 {
			return h.respondError(c, echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500"))
		}
		limit = val
	}

	resp, err := h.service.ListMessages(c.Request().Context(), tc.ProjectID, limit)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
