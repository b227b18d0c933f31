package net

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	server "github.com/pschroen/multiuser-balls"
	"github.com/pschroen/multiuser-balls/internal/net/ws"
	"github.com/pschroen/multiuser-balls/internal/observability"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
)

// Hub is the hub surface the HTTP layer needs.
type Hub interface {
	ws.Hub
	Diagnostics(ctx context.Context) (server.Diagnostics, error)
}

type HTTPHandlerConfig struct {
	PublicDir     string
	Logger        telemetry.Logger
	Counters      *telemetry.Counters
	Observability observability.Config
	WebSocket     ws.HandlerConfig
}

// NewHTTPHandler routes websocket upgrades and static assets on "/", plus
// health, diagnostics and optional profiling endpoints.
func NewHTTPHandler(hub Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	if cfg.WebSocket.Logger == nil {
		cfg.WebSocket.Logger = logger
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		snapshot, err := hub.Diagnostics(ctx)
		if err != nil {
			httpError(w, "hub unavailable", nethttp.StatusServiceUnavailable)
			return
		}

		payload := struct {
			Status  string             `json:"status"`
			Hub     server.Diagnostics `json:"hub"`
			Metrics map[string]uint64  `json:"metrics,omitempty"`
		}{
			Status:  "ok",
			Hub:     snapshot,
			Metrics: cfg.Counters.Snapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if cfg.Observability.Register(mux) {
		logger.Printf("[http] pprof enabled at %s", observability.PprofPrefix)
	}

	sockets := ws.NewHandler(hub, cfg.WebSocket)
	var assets nethttp.Handler = nethttp.NotFoundHandler()
	if cfg.PublicDir != "" {
		assets = nethttp.FileServer(nethttp.Dir(cfg.PublicDir))
	}

	mux.HandleFunc("/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			sockets.Handle(w, r)
			return
		}
		assets.ServeHTTP(w, r)
	})

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
