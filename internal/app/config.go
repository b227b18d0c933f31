package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	server "github.com/pschroen/multiuser-balls"
	"github.com/pschroen/multiuser-balls/internal/observability"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
	"github.com/pschroen/multiuser-balls/logging"
)

const (
	consoleSink = "console"
	jsonSink    = "json"
)

const (
	DefaultPort            = "8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config carries everything Run needs to wire the process.
type Config struct {
	Addr            string
	Logger          telemetry.Logger
	Logging         logging.Config
	PublicDir       string
	TrustProxy      bool
	ShutdownTimeout time.Duration
	Observability   observability.Config
	Hub             server.HubConfig
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":" + DefaultPort,
		Logging:         logging.DefaultConfig(),
		TrustProxy:      true,
		ShutdownTimeout: DefaultShutdownTimeout,
		Hub:             server.DefaultHubConfig(),
	}
}

// LoadConfig overlays environment variables on DefaultConfig. Invalid values
// are reported through logger and otherwise ignored.
func LoadConfig(logger telemetry.Logger) Config {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	cfg := DefaultConfig()
	env := envReader{logger: logger}

	if port, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(port) != "" {
		cfg.Addr = ":" + strings.TrimSpace(port)
	}
	if raw, ok := env.lookup("LOG_LEVEL"); ok {
		if level, err := logging.ParseSeverity(raw); err == nil {
			cfg.Logging.MinimumSeverity = level
		} else {
			logger.Printf("invalid LOG_LEVEL=%q: %v", raw, err)
		}
	}
	if raw, ok := env.lookup("LOG_JSON_PATH"); ok {
		cfg.Logging.JSON.FilePath = raw
		if !cfg.Logging.HasSink(jsonSink) {
			cfg.Logging.EnabledSinks = append(cfg.Logging.EnabledSinks, jsonSink)
		}
	}
	if raw, ok := env.lookup("PUBLIC_DIR"); ok {
		cfg.PublicDir = raw
	}
	env.intVar("NUM_POINTERS", &cfg.Hub.MaxPointers)
	env.floatVar("TICK_RATE", &cfg.Hub.TickRate)
	env.durationVar("HEARTBEAT_INTERVAL", &cfg.Hub.HeartbeatInterval)
	env.durationVar("IDLE_TIMEOUT", &cfg.Hub.IdleTimeout)
	env.boolVar("ENABLE_PPROF", &cfg.Observability.EnablePprof)
	env.boolVar("TRUST_PROXY", &cfg.TrustProxy)

	return cfg
}

type envReader struct {
	logger telemetry.Logger
}

func (e envReader) lookup(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	raw = strings.TrimSpace(raw)
	return raw, ok && raw != ""
}

func (e envReader) intVar(key string, dst *int) {
	raw, ok := e.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		e.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}

func (e envReader) floatVar(key string, dst *float64) {
	raw, ok := e.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		e.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}

func (e envReader) durationVar(key string, dst *time.Duration) {
	raw, ok := e.lookup(key)
	if !ok {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		e.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}

func (e envReader) boolVar(key string, dst *bool) {
	raw, ok := e.lookup(key)
	if !ok {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		e.logger.Printf("invalid %s=%q: %v", key, raw, err)
		return
	}
	*dst = value
}
