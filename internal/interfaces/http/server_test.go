package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miclabs/posthunter/internal/channel"
	"github.com/miclabs/posthunter/internal/generate"
	"github.com/miclabs/posthunter/internal/interfaces/http/handlers"
	"github.com/miclabs/posthunter/internal/knowledge"
	"github.com/miclabs/posthunter/internal/models"
	"github.com/miclabs/posthunter/internal/monitor"
	"github.com/miclabs/posthunter/internal/orchestrator"
	"github.com/miclabs/posthunter/internal/patterns"
	"github.com/miclabs/posthunter/internal/pdca"
	"github.com/miclabs/posthunter/internal/persistence/memory"
	"github.com/miclabs/posthunter/internal/quality"
	"github.com/miclabs/posthunter/internal/stock"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, account models.Account, input generate.Input) (models.Candidate, error) {
	return models.Candidate{Text: "generated copy"}, nil
}

type stubGate struct{}

func (stubGate) Check(text string) quality.Score { return quality.Score{Total: 9, Passed: true} }

type stubAdapter struct{}

func (stubAdapter) Publish(ctx context.Context, text string) (string, error) { return "ch-1", nil }
func (stubAdapter) FetchMetrics(ctx context.Context, id string) (channel.Metrics, error) {
	return channel.Metrics{}, channel.ErrMetricsUnavailable
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	accounts := []models.Account{{ID: "liver", Channel: "x"}}
	loop := generate.NewLoop(stubGenerator{}, stubGate{}, generate.LoopConfig{MaxAttempts: 3})
	stockMgr := stock.NewManager(memory.NewStockRepo(), loop, stock.Config{MinPerAccount: 3, MaxPerAccount: 5})
	posts := memory.NewPostRepo()
	registry := channel.NewRegistry(map[string]channel.Adapter{"x": stubAdapter{}})
	store := knowledge.NewMemoryStore()

	h := handlers.New(
		orchestrator.NewRunner(accounts, stockMgr, loop, registry, posts, nil, nil, false),
		stockMgr,
		monitor.New(accounts, registry, posts, nil, nil, monitor.Config{}),
		patterns.NewLearner(posts, store),
		pdca.New(posts, store, pdca.Config{HighScoreCutoff: 12, LowScoreCutoff: 8}),
		store, "", 3,
	)
	return NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, h)
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/automation/status", http.StatusOK},
		{http.MethodPost, "/api/automation/post", http.StatusOK},
		{http.MethodPost, "/api/stock/refill", http.StatusOK},
		{http.MethodPost, "/api/monitor/sweep", http.StatusOK},
		{http.MethodGet, "/api/analytics/pdca", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)
}

func TestAPIRoutesReturnJSON(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/automation/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/automation/post", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}
