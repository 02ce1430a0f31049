// Package v1 provides the HTTP handlers of the agent API.
package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/service"
	"github.com/wrapshot/agent/internal/transport/errmap"
)

// HeaderUserID carries the caller identity set by the upstream gateway.
const HeaderUserID = "X-User-ID"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	pinger  Pinger
	logger  *zap.Logger
}

// NewHandler creates a new handler. pinger may be nil.
func NewHandler(service *service.Service, pinger Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		pinger:  pinger,
		logger:  logger,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/projects/:project_id/messages", h.SendMessage)
	e.GET("/v1/projects/:project_id/messages", h.ListMessages)
	e.GET("/v1/projects/:project_id/confirmations/:confirmation_id", h.GetConfirmation)
	e.POST("/v1/projects/:project_id/confirmations/:confirmation_id", h.ResolveConfirmation)
	e.GET("/v1/tools", h.ListTools)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request().Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// toolContext builds the per-request scope from the path and the caller header.
func toolContext(c echo.Context) (domain.ToolContext, error) {
	tc := domain.ToolContext{
		ProjectID: strings.TrimSpace(c.Param("project_id")),
		UserID:    strings.TrimSpace(c.Request().Header.Get(HeaderUserID)),
	}
	if tc.ProjectID == "" {
		return tc, echo.NewHTTPError(http.StatusBadRequest, "project_id is required")
	}
	if tc.UserID == "" {
		return tc, echo.NewHTTPError(http.StatusBadRequest, HeaderUserID+" header is required")
	}
	return tc, nil
}

// respondError writes the JSON error body for err.
func (h *Handler) respondError(c echo.Context, err error) error {
	if he, ok := err.(*echo.HTTPError); ok {
		msg, _ := he.Message.(string)
		return c.JSON(he.Code, domain.ErrorResponse{Code: errmap.CodeInvalidRequest, Message: msg})
	}
	status, body := errmap.Response(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}
	return c.JSON(status, body)
}
