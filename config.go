package server

import (
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/pschroen/multiuser-balls/internal/physics"
	"github.com/pschroen/multiuser-balls/internal/session"
	"github.com/pschroen/multiuser-balls/internal/sim"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
	"github.com/pschroen/multiuser-balls/logging"
)

const (
	DefaultMaxPointers         = 50
	DefaultFreeBodies          = 100
	DefaultTickRate            = sim.DefaultTickRate
	DefaultHeartbeatInterval   = 4 * time.Second
	DefaultPointerReleaseDelay = 4 * time.Second
	DefaultIdleTimeout         = 30 * time.Minute
	DefaultSendBuffer          = 64
	DefaultMaxMessageSize      = 512
	DefaultColorRateLimit      = rate.Limit(2)
	DefaultColorBurst          = 5

	// maxPointerTokens keeps the observer sentinel (the pool size) in one byte
	// without colliding with a real token.
	maxPointerTokens = session.Capacity - 1
	// maxFreeBodies keeps every ball index addressable by the one-byte
	// contact event.
	maxFreeBodies = 256
)

// HubConfig tunes the hub, its scene and its timers.
type HubConfig struct {
	MaxPointers int
	FreeBodies  int
	TickRate    float64

	HeartbeatInterval   time.Duration
	PointerReleaseDelay time.Duration
	IdleTimeout         time.Duration

	CenteringGain     float64
	ContactDamping    float64
	ContactThreshold  float64
	ContactRefractory time.Duration

	SendBuffer     int
	MaxMessageSize int64

	// ColorRateLimit bounds color changes per session; each one fans out a
	// user list to every other session.
	ColorRateLimit rate.Limit
	ColorBurst     int

	Seed int64

	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
	Engine    sim.Engine
}

// DefaultHubConfig returns the production defaults.
func DefaultHubConfig() HubConfig {
	bridge := sim.DefaultBridgeConfig()
	return HubConfig{
		MaxPointers:         DefaultMaxPointers,
		FreeBodies:          DefaultFreeBodies,
		TickRate:            DefaultTickRate,
		HeartbeatInterval:   DefaultHeartbeatInterval,
		PointerReleaseDelay: DefaultPointerReleaseDelay,
		IdleTimeout:         DefaultIdleTimeout,
		CenteringGain:       bridge.CenteringGain,
		ContactDamping:      bridge.ContactDamping,
		ContactThreshold:    bridge.ContactThreshold,
		ContactRefractory:   bridge.ContactRefractory,
		SendBuffer:          DefaultSendBuffer,
		MaxMessageSize:      DefaultMaxMessageSize,
		ColorRateLimit:      DefaultColorRateLimit,
		ColorBurst:          DefaultColorBurst,
		Seed:                time.Now().UnixNano(),
	}
}

func (cfg HubConfig) normalized() HubConfig {
	normalized := cfg
	if normalized.MaxPointers < 0 {
		normalized.MaxPointers = 0
	}
	if normalized.MaxPointers > maxPointerTokens {
		normalized.MaxPointers = maxPointerTokens
	}
	if normalized.FreeBodies < 0 {
		normalized.FreeBodies = 0
	}
	if normalized.FreeBodies > maxFreeBodies {
		normalized.FreeBodies = maxFreeBodies
	}
	if normalized.TickRate <= 0 {
		normalized.TickRate = DefaultTickRate
	}
	if normalized.HeartbeatInterval <= 0 {
		normalized.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if normalized.PointerReleaseDelay < 0 {
		normalized.PointerReleaseDelay = 0
	}
	if normalized.IdleTimeout <= 0 {
		normalized.IdleTimeout = DefaultIdleTimeout
	}
	if normalized.ContactRefractory < 0 {
		normalized.ContactRefractory = 0
	}
	if normalized.SendBuffer <= 0 {
		normalized.SendBuffer = DefaultSendBuffer
	}
	if normalized.MaxMessageSize <= 0 {
		normalized.MaxMessageSize = DefaultMaxMessageSize
	}
	if normalized.ColorRateLimit <= 0 {
		normalized.ColorRateLimit = rate.Inf
	}
	if normalized.ColorBurst <= 0 {
		normalized.ColorBurst = 1
	}
	if normalized.Logger == nil {
		normalized.Logger = telemetry.LoggerFunc(nil)
	}
	if normalized.Metrics == nil {
		normalized.Metrics = telemetry.NopMetrics()
	}
	if normalized.Publisher == nil {
		normalized.Publisher = logging.NopPublisher()
	}
	if normalized.Clock == nil {
		normalized.Clock = logging.SystemClock{}
	}
	return normalized
}

// Normalized clamps every field to a usable value.
func (cfg HubConfig) Normalized() HubConfig {
	return cfg.normalized()
}

func (cfg HubConfig) bridgeConfig() sim.BridgeConfig {
	bridge := sim.DefaultBridgeConfig()
	bridge.FreeBodies = cfg.FreeBodies
	bridge.Pointers = cfg.MaxPointers
	bridge.CenteringGain = cfg.CenteringGain
	bridge.ContactDamping = cfg.ContactDamping
	bridge.ContactThreshold = cfg.ContactThreshold
	bridge.ContactRefractory = cfg.ContactRefractory
	return bridge
}

func (cfg HubConfig) engine() sim.Engine {
	if cfg.Engine != nil {
		return cfg.Engine
	}
	world := physics.DefaultConfig()
	world.TimeStep = 1 / cfg.TickRate
	return physics.NewWorld(world)
}

func (cfg HubConfig) rng() *rand.Rand {
	return rand.New(rand.NewSource(cfg.Seed))
}
