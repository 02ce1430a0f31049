package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wrapshot/agent/internal/domain"
)

// ResolveConfirmation approves or declines a pending plan.
// POST /v1/projects/:project_id/confirmations/:confirmation_id
func (h *Handler) ResolveConfirmation(c echo.Context) error {
	tc, err := toolContext(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req domain.ResolveConfirmationRequest
	if err := c.Bind(&req); err != nil {
		return h.respondError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}
	if req.Approved == nil {
		return h.respondError(c, echo.NewHTTPError(http.StatusBadRequest, "approved is required"))
	}

	resp, err := h.service.ResolveConfirmation(c.Request().Context(), tc, c.Param("confirmation_id"), *req.Approved)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetConfirmation returns the state of a confirmation.
// GET /v1/projects/:project_id/confirmations/:confirmation_id
func (h *Handler) GetConfirmation(c echo.Context) error {
	tc, err := toolContext(c)
	if err != nil {
		return h.respondError(c, err)
	}
	conf, err := h.service.GetConfirmation(c.Request().Context(), tc.ProjectID, c.Param("confirmation_id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, conf)
}
