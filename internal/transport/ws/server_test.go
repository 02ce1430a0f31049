package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/transport/errmap"
)

type fakeRunner struct {
	mu       sync.Mutex
	texts    []string
	resolved []bool
	err      error
}

func (f *fakeRunner) SendMessage(ctx context.Context, tc domain.ToolContext, text string) (*domain.TurnResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, tc.ProjectID+"/"+tc.UserID+":"+text)
	return &domain.TurnResponse{Message: &domain.Message{MessageID: "msg_1", ProjectID: tc.ProjectID}}, nil
}

func (f *fakeRunner) ResolveConfirmation(ctx context.Context, tc domain.ToolContext, confirmationID string, approved bool) (*domain.TurnResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.resolved = append(f.resolved, approved)
	return &domain.TurnResponse{
		Message: &domain.Message{MessageID: "msg_2", ProjectID: tc.ProjectID},
		Outcome: domain.OutcomeSuccess,
	}, nil
}

type testServer struct {
	hub    *Hub
	runner *fakeRunner
	url    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	runner := &fakeRunner{}
	e := echo.New()
	NewServer(Config{}, hub, runner, zap.NewNop()).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{
		hub:    hub,
		runner: runner,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

// dial opens a stream and waits for the hello frame.
func (ts *testServer) dial(t *testing.T, projectID, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.url+"/v1/projects/"+projectID+"/stream?user_id="+userID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hello := readFrame(t, conn)
	require.Equal(t, TypeHello, hello.Type)
	require.Equal(t, projectID, hello.ProjectID)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestPublishReachesOnlyTheProject(t *testing.T) {
	ts := newTestServer(t)
	p1 := ts.dial(t, "p1", "u1")
	p2 := ts.dial(t, "p2", "u2")

	ts.hub.Publish(&domain.Message{MessageID: "msg_a", ProjectID: "p1", Role: domain.RoleAssistant, Content: "hello p1"})
	ts.hub.Publish(&domain.Message{MessageID: "msg_b", ProjectID: "p2", Role: domain.RoleAssistant, Content: "hello p2"})

	f := readFrame(t, p1)
	assert.Equal(t, TypeMessage, f.Type)
	require.NotNil(t, f.Message)
	assert.Equal(t, "msg_a", f.Message.MessageID)

	f = readFrame(t, p2)
	require.NotNil(t, f.Message)
	assert.Equal(t, "msg_b", f.Message.MessageID)
}

func TestSendMessageFrameIsAcknowledged(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "p1", "u1")

	require.NoError(t, conn.WriteJSON(Frame{Type: TypeSendMessage, RequestID: "r1", Text: "list scenes"}))
	ack := readFrame(t, conn)
	assert.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "r1", ack.RequestID)
	assert.Equal(t, "msg_1", ack.MessageID)

	ts.runner.mu.Lock()
	defer ts.runner.mu.Unlock()
	assert.Equal(t, []string{"p1/u1:list scenes"}, ts.runner.texts)
}

func TestResolveConfirmationFrame(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "p1", "u1")

	require.NoError(t, conn.WriteJSON(Frame{Type: TypeResolveConfirmation, RequestID: "r1", ConfirmationID: "cf_1"}))
	f := readFrame(t, conn)
	assert.Equal(t, TypeError, f.Type)
	assert.Equal(t, errmap.CodeInvalidRequest, f.Code)

	approved := true
	require.NoError(t, conn.WriteJSON(Frame{Type: TypeResolveConfirmation, RequestID: "r2", ConfirmationID: "cf_1", Approved: &approved}))
	ack := readFrame(t, conn)
	assert.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "r2", ack.RequestID)
	assert.Equal(t, domain.OutcomeSuccess, ack.Outcome)
}

func TestTurnErrorsUseErrorCodes(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.mu.Lock()
	ts.runner.err = domain.ErrConfirmationResolved
	ts.runner.mu.Unlock()
	conn := ts.dial(t, "p1", "u1")

	approved := false
	require.NoError(t, conn.WriteJSON(Frame{Type: TypeResolveConfirmation, RequestID: "r1", ConfirmationID: "cf_1", Approved: &approved}))
	f := readFrame(t, conn)
	assert.Equal(t, TypeError, f.Type)
	assert.Equal(t, "r1", f.RequestID)
	assert.Equal(t, errmap.CodeConfirmationResolved, f.Code)
}

func TestInvalidFrames(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "p1", "u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := readFrame(t, conn)
	assert.Equal(t, TypeError, f.Type)
	assert.Equal(t, errmap.CodeInvalidRequest, f.Code)

	require.NoError(t, conn.WriteJSON(Frame{Type: "cancel_run", RequestID: "r9"}))
	f = readFrame(t, conn)
	assert.Equal(t, TypeError, f.Type)
	assert.Equal(t, "r9", f.RequestID)
	assert.Contains(t, f.Error, "unknown frame type")
}

func TestStreamRequiresUser(t *testing.T) {
	ts := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(ts.url+"/v1/projects/p1/stream", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHubDropsClosedConnections(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "p1", "u1")
	assert.Eventually(t, func() bool { return ts.hub.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return ts.hub.ConnectionCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSendAfterUnregisterReportsClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	conn := hub.NewConnection(nil, "p1", "u1")
	require.True(t, hub.Register(conn))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := hub.SendToConnection(conn, Frame{Type: TypeAck, RequestID: "r"})
				if err != nil && !errors.Is(err, ErrBufferFull) && !errors.Is(err, ErrConnectionClosed) {
					t.Errorf("unexpected send error: %v", err)
				}
			}
		}()
	}
	hub.Unregister(conn)
	wg.Wait()

	assert.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, hub.SendToConnection(conn, Frame{Type: TypeAck}), ErrConnectionClosed)

	other := hub.NewConnection(nil, "p1", "u2")
	require.True(t, hub.Register(other))
	cancel()
	<-stopped
	assert.ErrorIs(t, hub.SendToConnection(other, Frame{Type: TypeAck}), ErrConnectionClosed)
	assert.False(t, hub.Register(hub.NewConnection(nil, "p1", "u3")))
}
