package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveWithCORS(origins []string, method, origin string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	req := httptest.NewRequest(method, "/api/agents", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	CORS(origins)(next).ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowedOrigin(t *testing.T) {
	rec := serveWithCORS([]string{"http://localhost:5173"}, http.MethodGet, "http://localhost:5173")

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected request to reach handler, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials for explicit origin")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	rec := serveWithCORS([]string{"http://localhost:5173"}, http.MethodGet, "http://evil.test")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	rec := serveWithCORS([]string{"*"}, http.MethodGet, "http://any.test")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://any.test" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard must not allow credentials")
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := serveWithCORS([]string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
}
