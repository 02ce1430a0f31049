package http

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/adapter/llm"
	"github.com/wrapshot/agent/internal/policy"
	"github.com/wrapshot/agent/internal/production"
	"github.com/wrapshot/agent/internal/repository"
	"github.com/wrapshot/agent/internal/service"
	"github.com/wrapshot/agent/internal/tools"
	"github.com/wrapshot/agent/internal/transport/ws"
)

func TestServerRoutes(t *testing.T) {
	store, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	engine, err := policy.LoadEngine(context.Background(), "")
	require.NoError(t, err)

	svc := service.New(store, store.Confirmations(),
		tools.NewProductionRegistry(production.NewClient(store), zap.NewNop()),
		llm.NewScriptedClient(), engine, nil, service.Config{}, zap.NewNop())
	stream := ws.NewServer(ws.Config{}, ws.NewHub(zap.NewNop()), svc, zap.NewNop())
	srv := NewServer(svc, store, stream, zap.NewNop())

	cases := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"health", nethttp.MethodGet, "/health", nethttp.StatusOK},
		{"tools", nethttp.MethodGet, "/v1/tools", nethttp.StatusOK},
		{"stream without user", nethttp.MethodGet, "/v1/projects/p1/stream", nethttp.StatusBadRequest},
		{"unknown route", nethttp.MethodGet, "/v2/anything", nethttp.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Echo().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
