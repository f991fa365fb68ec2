package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEStreamSend(t *testing.T) {
	rec := httptest.NewRecorder()
	stream, err := NewSSEStream(rec)
	if err != nil {
		t.Fatalf("NewSSEStream err: %v", err)
	}

	if err := stream.Send(map[string]any{"status": "started", "round": 1}); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if body != "data: {\"round\":1,\"status\":\"started\"}\n\n" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSendSSEChunkRejectsUnmarshalable(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := SendSSEChunk(rec, rec, map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("nothing should be written, got %q", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Topic string `json:"topic"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"topic":"cats"}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err != nil || dst.Topic != "cats" {
		t.Fatalf("DecodeJSON = %v, topic %q", err, dst.Topic)
	}

	empty := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(httptest.NewRecorder(), empty, &dst); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, "session not found")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"error":"session not found"}` {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
