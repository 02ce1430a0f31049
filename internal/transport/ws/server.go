package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/transport/errmap"
)

// TurnRunner runs conversation turns on behalf of a connection.
type TurnRunner interface {
	SendMessage(ctx context.Context, tc domain.ToolContext, text string) (*domain.TurnResponse, error)
	ResolveConfirmation(ctx context.Context, tc domain.ToolContext, confirmationID string, approved bool) (*domain.TurnResponse, error)
}

// Config holds connection settings.
type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	TurnTimeout    time.Duration
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
		TurnTimeout:    2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = d.TurnTimeout
	}
	return c
}

// Server handles WebSocket connections.
type Server struct {
	cfg      Config
	hub      *Hub
	runner   TurnRunner
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(cfg Config, hub *Hub, runner TurnRunner, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg.withDefaults(),
		hub:    hub,
		runner: runner,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the stream route with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/projects/:project_id/stream", s.HandleStream)
}

// HandleStream upgrades the request and follows one project's conversation.
// The caller is identified by the X-User-ID header or the user_id query
// parameter, since browsers cannot set headers on websocket requests.
func (s *Server) HandleStream(c echo.Context) error {
	projectID := strings.TrimSpace(c.Param("project_id"))
	userID := strings.TrimSpace(c.Request().Header.Get("X-User-ID"))
	if userID == "" {
		userID = strings.TrimSpace(c.QueryParam("user_id"))
	}
	if projectID == "" || userID == "" {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{
			Code:    errmap.CodeInvalidRequest,
			Message: "project_id and user are required",
		})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}

	conn := s.hub.NewConnection(ws, projectID, userID)
	ws.SetReadLimit(s.cfg.MaxMessageSize)
	if !s.hub.Register(conn) {
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = ws.Close()
		return nil
	}
	_ = s.hub.SendToConnection(conn, Frame{Type: TypeHello, Ts: time.Now().UnixMilli(), ProjectID: projectID})

	go s.writePump(conn)
	go s.readPump(conn)

	s.logger.Info("stream opened",
		zap.String("conn_id", conn.ID),
		zap.String("project_id", projectID),
		zap.String("user_id", userID))
	return nil
}

// readPump reads frames from the connection until it closes.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	_ = conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		s.handleMessage(conn, data)
	}
}

// writePump drains the send buffer and keeps the connection alive.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("websocket write failed", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches an incoming frame.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.sendError(conn, "", errmap.CodeInvalidRequest, "invalid JSON frame")
		return
	}

	tc := domain.ToolContext{ProjectID: conn.ProjectID, UserID: conn.UserID}
	switch f.Type {
	case TypeSendMessage:
		s.runTurn(conn, f.RequestID, func(ctx context.Context) (*domain.TurnResponse, error) {
			return s.runner.SendMessage(ctx, tc, f.Text)
		})
	case TypeResolveConfirmation:
		if f.Approved == nil {
			s.sendError(conn, f.RequestID, errmap.CodeInvalidRequest, "approved is required")
			return
		}
		approved := *f.Approved
		s.runTurn(conn, f.RequestID, func(ctx context.Context) (*domain.TurnResponse, error) {
			return s.runner.ResolveConfirmation(ctx, tc, f.ConfirmationID, approved)
		})
	default:
		s.sendError(conn, f.RequestID, errmap.CodeInvalidRequest, "unknown frame type: "+f.Type)
	}
}

// runTurn runs fn off the read loop and answers with an ack or an error frame.
// The stored messages themselves reach the client through the hub.
func (s *Server) runTurn(conn *Connection, requestID string, fn func(ctx context.Context) (*domain.TurnResponse, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TurnTimeout)
		defer cancel()

		resp, err := fn(ctx)
		if err != nil {
			status, body := errmap.Response(err)
			if status >= http.StatusInternalServerError {
				s.logger.Error("turn failed", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			s.sendError(conn, requestID, body.Code, body.Message)
			return
		}

		ack := Frame{
			Type:         TypeAck,
			RequestID:    requestID,
			Ts:           time.Now().UnixMilli(),
			Outcome:      resp.Outcome,
			Confirmation: resp.Confirmation,
		}
		if resp.Message != nil {
			ack.MessageID = resp.Message.MessageID
		}
		s.send(conn, ack)
	}()
}

func (s *Server) sendError(conn *Connection, requestID, code, message string) {
	s.send(conn, Frame{
		Type:      TypeError,
		RequestID: requestID,
		Ts:        time.Now().UnixMilli(),
		Code:      code,
		Error:     message,
	})
}

func (s *Server) send(conn *Connection, f Frame) {
	err := s.hub.SendToConnection(conn, f)
	switch {
	case errors.Is(err, ErrConnectionClosed):
		s.logger.Debug("dropped frame for closed connection", zap.String("conn_id", conn.ID), zap.String("type", f.Type))
	case err != nil:
		s.logger.Warn("failed to send frame", zap.String("conn_id", conn.ID), zap.String("type", f.Type), zap.Error(err))
	}
}
