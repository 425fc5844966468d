package httpkit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"key": "value"})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}
	if body["key"] != "value" {
		t.Errorf("expected key=value, got %+v", body)
	}

	rec = httptest.NewRecorder()
	JSON(rec, http.StatusNoContent, nil)
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %s", rec.Body.String())
	}
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "Пользователь не найден")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if body["detail"] != "Пользователь не найден" {
		t.Errorf("unexpected detail: %+v", body)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := ParseFlags("paysim", []string{"-port", "9100", "-fail-rate", "0.25", "-verbose"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Name != "paysim" || cfg.Port != 9100 || cfg.FailRate != 0.25 || !cfg.Verbose {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := ParseFlags("paysim", []string{"-fail-rate", "2"}); err == nil {
		t.Error("expected error for fail-rate above 1")
	}
}

func TestServerRoutesThroughMiddleware(t *testing.T) {
	s := New(&Config{Name: "test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	entries := s.Middleware().ReqLog.Entries()
	if len(entries) != 1 || entries[0].RequestID == "" {
		t.Errorf("expected one logged request with an id, got %+v", entries)
	}
}

func TestServeListenerShutsDownOnCancel(t *testing.T) {
	s := New(&Config{Name: "test", ShutdownTimeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
