package server

import (
	"context"
	"errors"
	"time"

	"github.com/pschroen/multiuser-balls/internal/pointer"
	"github.com/pschroen/multiuser-balls/internal/session"
	"github.com/pschroen/multiuser-balls/internal/sim"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
	"github.com/pschroen/multiuser-balls/logging"
)

// ErrHubClosed is returned by hub calls made after Run has exited.
var ErrHubClosed = errors.New("hub closed")

// Hub is the single owner of the slot table, pointer pool, registry, bridge
// and broadcast loop. All mutation happens on the goroutine running Run;
// transports talk to it through Connect, Deliver and Disconnect.
type Hub struct {
	cfg       HubConfig
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher
	clock     logging.Clock
	telemetry *telemetryCounters

	slots    session.SlotTable
	registry session.Registry
	pointers *pointer.Pool
	bridge   *sim.Bridge
	loop     *sim.Loop

	events chan hubEvent
	done   chan struct{}

	// afterFunc schedules pointer releases; tests replace it.
	afterFunc func(time.Duration, func())
	// heartbeats starts the per-session heartbeat; tests replace it.
	heartbeats func(s *session.Session, pointerByte uint8) func()

	transforms []float32
}

// NewHub builds a hub and its scene from cfg.
func NewHub(cfg HubConfig) *Hub {
	cfg = cfg.Normalized()
	h := &Hub{
		cfg:       cfg,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		clock:     cfg.Clock,
		telemetry: newTelemetryCounters(),
		pointers:  pointer.NewPool(cfg.MaxPointers),
		bridge:    sim.NewBridge(cfg.engine(), cfg.bridgeConfig(), cfg.rng()),
		loop:      sim.NewLoop(sim.LoopConfig{TickRate: cfg.TickRate}),
		events:    make(chan hubEvent, 256),
		done:      make(chan struct{}),
		afterFunc: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
	h.heartbeats = h.startHeartbeat
	h.transforms = make([]float32, 0, h.bridge.Bodies()*8)
	return h
}

// Config returns the normalized configuration.
func (h *Hub) Config() HubConfig {
	return h.cfg
}

// Done is closed once Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run processes events, frame ticks and reaper sweeps until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	frames := time.NewTimer(time.Hour)
	frames.Stop()
	scheduled := false

	reaper := time.NewTicker(h.cfg.HeartbeatInterval)
	defer reaper.Stop()

	h.logger.Printf("[hub] running pointers=%d freeBodies=%d tickRate=%.0f", h.bridge.Pointers(), h.bridge.FreeBodies(), h.cfg.TickRate)

	for {
		select {
		case <-ctx.Done():
			frames.Stop()
			h.shutdown(h.clock.Now())
			return nil
		case event := <-h.events:
			event.apply(h, h.clock.Now())
		case <-frames.C:
			scheduled = false
			if h.loop.State() != sim.LoopRunning {
				continue
			}
			result := h.tick(h.clock.Now())
			if h.loop.State() == sim.LoopRunning {
				frames.Reset(result.Delay)
				scheduled = true
			}
			continue
		case <-reaper.C:
			h.sweep(h.clock.Now())
		}

		switch {
		case h.loop.State() == sim.LoopRunning && !scheduled:
			frames.Reset(0)
			scheduled = true
		case h.loop.State() == sim.LoopIdle && scheduled:
			frames.Stop()
			scheduled = false
		}
	}
}

func (h *Hub) post(event hubEvent) bool {
	select {
	case h.events <- event:
		return true
	case <-h.done:
		return false
	}
}

// ConnectRequest describes an accepted transport connection.
type ConnectRequest struct {
	Address  string
	Observer bool
}

// Admission is the identity assigned to a new session.
type Admission struct {
	ID          int
	Pointer     int
	PointerByte uint8
	Address     string
	TraceID     string
}

// Observer reports whether the session drives no simulated body.
func (a Admission) Observer() bool {
	return a.Pointer == session.NoPointer
}

// Connect admits conn. It returns an error wrapping session.ErrFull when
// every slot is taken. If ctx ends first, any session the hub admits for conn
// afterwards is torn down.
func (h *Hub) Connect(ctx context.Context, conn session.Conn, req ConnectRequest) (Admission, error) {
	reply := make(chan connectResult, 1)
	if !h.post(connectEvent{conn: conn, req: req, reply: reply}) {
		return Admission{}, ErrHubClosed
	}
	select {
	case result := <-reply:
		return result.admission, result.err
	case <-ctx.Done():
		h.post(abandonEvent{conn: conn})
		return Admission{}, ctx.Err()
	case <-h.done:
		return Admission{}, ErrHubClosed
	}
}

// Deliver hands one inbound payload from the session id on conn to the hub.
// Payloads are processed in the order they are delivered.
func (h *Hub) Deliver(id int, conn session.Conn, payload []byte) {
	h.post(messageEvent{id: id, conn: conn, payload: payload})
}

// Disconnect tears down the session id if it is still bound to conn.
func (h *Hub) Disconnect(id int, conn session.Conn) {
	h.post(disconnectEvent{id: id, conn: conn, reason: reasonClose})
}

// Diagnostics returns a snapshot of hub state.
func (h *Hub) Diagnostics(ctx context.Context) (Diagnostics, error) {
	reply := make(chan Diagnostics, 1)
	if !h.post(diagnosticsEvent{reply: reply}) {
		return Diagnostics{}, ErrHubClosed
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return Diagnostics{}, ctx.Err()
	case <-h.done:
		return Diagnostics{}, ErrHubClosed
	}
}

// TelemetrySnapshot returns the hub counters. It is safe from any goroutine.
func (h *Hub) TelemetrySnapshot() TelemetrySnapshot {
	return h.telemetry.Snapshot()
}
