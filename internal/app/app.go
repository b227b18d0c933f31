package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	server "github.com/pschroen/multiuser-balls"
	servernet "github.com/pschroen/multiuser-balls/internal/net"
	"github.com/pschroen/multiuser-balls/internal/net/ws"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
	"github.com/pschroen/multiuser-balls/logging"
	loggingSinks "github.com/pschroen/multiuser-balls/logging/sinks"
)

// Run listens on cfg.Addr and serves until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	addr := cfg.Addr
	if addr == "" {
		addr = ":" + DefaultPort
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, cfg)
}

// Serve wires the logging router, hub and HTTP server onto ln. It returns
// after ctx is cancelled and everything has shut down.
func Serve(ctx context.Context, ln net.Listener, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	logConfig := cfg.Logging
	named, err := buildSinks(logConfig)
	if err != nil {
		ln.Close()
		return err
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, fallbackLogger, named)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	counters := telemetry.NewCounters()
	hubCfg := cfg.Hub
	hubCfg.Logger = telemetryLogger
	hubCfg.Metrics = counters
	hubCfg.Publisher = router
	hub := server.NewHub(hubCfg)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	publicDir := cfg.PublicDir
	if publicDir == "" {
		if dir, err := resolvePublicDir(); err == nil {
			publicDir = dir
		} else {
			telemetryLogger.Printf("[http] static assets disabled: %v", err)
		}
	}

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		PublicDir:     publicDir,
		Logger:        telemetryLogger,
		Counters:      counters,
		Observability: cfg.Observability,
		WebSocket: ws.HandlerConfig{
			Logger:     telemetryLogger,
			TrustProxy: cfg.TrustProxy,
			Conn: ws.ConnConfig{
				SendBuffer:     hub.Config().SendBuffer,
				MaxMessageSize: hub.Config().MaxMessageSize,
				Metrics:        counters,
			},
		},
	})

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ln)
	}()
	telemetryLogger.Printf("server listening on %s", ln.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-served:
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetryLogger.Printf("shutdown error: %v", err)
	}

	stopHub()
	<-hub.Done()
	telemetryLogger.Printf("server stopped")

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	return nil
}

// buildSinks opens every sink named in cfg.EnabledSinks.
func buildSinks(cfg logging.Config) ([]logging.NamedSink, error) {
	var named []logging.NamedSink
	if cfg.HasSink(consoleSink) {
		named = append(named, logging.NamedSink{Name: consoleSink, Sink: loggingSinks.NewConsoleSink(os.Stdout, cfg.Console)})
	}
	if cfg.HasSink(jsonSink) {
		if cfg.JSON.FilePath == "" {
			return nil, fmt.Errorf("json log sink enabled without a file path")
		}
		file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log: %w", err)
		}
		named = append(named, logging.NamedSink{Name: jsonSink, Sink: loggingSinks.NewJSON(file, cfg.JSON)})
	}
	return named, nil
}
