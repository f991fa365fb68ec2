package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	debateService "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/service/diagnosis"
	"github.com/zhouzirui/mad-arena/backend/internal/storage"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	diagnoser, err := diagnosis.NewService(context.Background(), nil, diagnosis.Config{})
	if err != nil {
		t.Fatalf("diagnosis.NewService err: %v", err)
	}
	return NewRouter(Deps{
		Roster:         debate.Seed(),
		Debates:        debateService.NewService(storage.NewMemoryStore(), nil, debateService.Config{MaxRounds: 3, RoundTimeout: time.Minute}),
		Diagnoser:      diagnoser,
		AllowedOrigins: []string{"http://localhost:5173"},
	})
}

func TestRouterMountsAPIRoutes(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/healthz", http.StatusOK},
		{http.MethodGet, "/api/agents", http.StatusOK},
		{http.MethodGet, "/api/sessions", http.StatusOK},
		{http.MethodGet, "/api/sessions/missing", http.StatusNotFound},
		{http.MethodGet, "/api/stream-debate/missing", http.StatusServiceUnavailable},
		{http.MethodGet, "/agents", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, resp.Code, tc.want)
		}
	}
}

func TestRouterAppliesCORS(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/start-debate", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("missing CORS header: %v", resp.Header())
	}
}
