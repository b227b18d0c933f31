package net

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	server "github.com/pschroen/multiuser-balls"
	"github.com/pschroen/multiuser-balls/internal/net/proto"
	"github.com/pschroen/multiuser-balls/internal/observability"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
)

func startHub(t *testing.T) *server.Hub {
	t.Helper()
	cfg := server.DefaultHubConfig()
	cfg.MaxPointers = 2
	cfg.FreeBodies = 2
	cfg.Seed = 3
	hub := server.NewHub(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

func TestHealthReturnsOK(t *testing.T) {
	handler := NewHTTPHandler(startHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func TestDiagnosticsIncludesHubAndMetrics(t *testing.T) {
	counters := telemetry.NewCounters()
	counters.Add(telemetry.MetricFramesSent, 3)
	handler := NewHTTPHandler(startHub(t), HTTPHandlerConfig{Counters: counters})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected application/json, got %q", contentType)
	}

	var payload struct {
		Status  string             `json:"status"`
		Hub     server.Diagnostics `json:"hub"`
		Metrics map[string]uint64  `json:"metrics"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics: %v", err)
	}
	if payload.Status != "ok" || payload.Hub.LoopState != "idle" {
		t.Fatalf("unexpected diagnostics %+v", payload)
	}
	if payload.Hub.PointersTotal != 2 || payload.Hub.Bodies != 6 {
		t.Fatalf("unexpected pointer/body counts %+v", payload.Hub)
	}
	if payload.Metrics[telemetry.MetricFramesSent] != 3 {
		t.Fatalf("expected metrics in payload, got %+v", payload.Metrics)
	}
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	hub := startHub(t)

	disabled := NewHTTPHandler(hub, HTTPHandlerConfig{})
	resp := httptest.NewRecorder()
	disabled.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, observability.PprofPrefix, nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with pprof disabled, got %d", resp.Code)
	}

	enabled := NewHTTPHandler(hub, HTTPHandlerConfig{Observability: observability.Config{EnablePprof: true}})
	resp = httptest.NewRecorder()
	enabled.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, observability.PprofPrefix, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with pprof enabled, got %d", resp.Code)
	}
}

func TestRootServesStaticAssets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>balls</html>"), 0o644); err != nil {
		t.Fatalf("failed to write index: %v", err)
	}
	handler := NewHTTPHandler(startHub(t), HTTPHandlerConfig{PublicDir: dir})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "balls") {
		t.Fatalf("unexpected static response %d %q", resp.Code, resp.Body.String())
	}
}

func TestRootWithoutPublicDirIsNotFound(t *testing.T) {
	handler := NewHTTPHandler(startHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/index.html", nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRootUpgradesWebSocket(t *testing.T) {
	handler := NewHTTPHandler(startHub(t), HTTPHandlerConfig{PublicDir: t.TempDir()})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("failed waiting for user list: %v", err)
		}
		if len(payload) > 0 && proto.Tag(payload[0]) == proto.TagUsers {
			users, err := proto.DecodeUsers(payload)
			if err != nil || len(users) != 1 {
				t.Fatalf("unexpected users %+v err=%v", users, err)
			}
			return
		}
	}
}
