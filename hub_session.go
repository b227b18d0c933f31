package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pschroen/multiuser-balls/internal/net/proto"
	"github.com/pschroen/multiuser-balls/internal/physics"
	"github.com/pschroen/multiuser-balls/internal/pointer"
	"github.com/pschroen/multiuser-balls/internal/session"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
	"github.com/pschroen/multiuser-balls/logging"
	"github.com/pschroen/multiuser-balls/logging/lifecycle"
	"github.com/pschroen/multiuser-balls/logging/network"
	"github.com/pschroen/multiuser-balls/logging/simulation"
)

const (
	reasonClose      = lifecycle.ReasonClose
	reasonIdle       = lifecycle.ReasonIdle
	reasonSendFailed = lifecycle.ReasonSendFailed
	reasonShutdown   = lifecycle.ReasonShutdown
)

func (h *Hub) connect(conn session.Conn, req ConnectRequest, now time.Time) (Admission, error) {
	ctx := context.Background()
	s, err := h.slots.Acquire(req.Address, now)
	if err != nil {
		h.metrics.Add(telemetry.MetricSessionsRejected, 1)
		lifecycle.CapacityExhausted(ctx, h.publisher, h.loop.Tick(), lifecycle.CapacityExhaustedPayload{
			Resource: lifecycle.ResourceSlot,
			Address:  req.Address,
		}, nil)
		h.logger.Printf("[hub] rejecting connection address=%s sessions=%d: %v", req.Address, h.slots.Len(), err)
		return Admission{}, fmt.Errorf("admit %s: %w", req.Address, err)
	}

	s.Conn = conn
	s.TraceID = uuid.NewString()
	s.ColorLimiter = rate.NewLimiter(h.cfg.ColorRateLimit, h.cfg.ColorBurst)

	if !req.Observer {
		token, err := h.pointers.Checkout()
		switch {
		case err == nil:
			s.Pointer = token
		case errors.Is(err, pointer.ErrEmpty):
			h.metrics.Add(telemetry.MetricPointersExhausted, 1)
			lifecycle.CapacityExhausted(ctx, h.publisher, h.loop.Tick(), lifecycle.CapacityExhaustedPayload{
				Resource: lifecycle.ResourcePointer,
				Address:  s.Address,
			}, nil)
		default:
			h.logger.Printf("[hub] pointer checkout failed id=%d: %v", s.ID, err)
		}
	}

	h.registry.Add(s)
	pointerByte := proto.PointerByte(s.Pointer, h.cfg.MaxPointers)
	s.StopHeartbeat = h.heartbeats(s, pointerByte)

	h.metrics.Add(telemetry.MetricSessionsJoined, 1)
	h.storeGauges()
	lifecycle.SessionJoined(ctx, h.publisher, h.loop.Tick(), logging.SessionRef(s.ID), s.TraceID, lifecycle.SessionJoinedPayload{
		Pointer:  s.Pointer,
		Observer: s.IsObserver(),
		Address:  s.Address,
	}, nil)

	if h.loop.Start() {
		simulation.LoopStarted(ctx, h.publisher, h.loop.Tick(), simulation.LoopPayload{
			TickRate: h.cfg.TickRate,
			Sessions: h.registry.Len(),
		})
		h.logger.Printf("[hub] loop started")
	}

	h.broadcastUsers(nil, now)

	return Admission{
		ID:          s.ID,
		Pointer:     s.Pointer,
		PointerByte: pointerByte,
		Address:     s.Address,
		TraceID:     s.TraceID,
	}, nil
}

// lookup returns the live session in slot id when it is still bound to conn.
// Events from a connection whose slot has been reused are stale.
func (h *Hub) lookup(id int, conn session.Conn) *session.Session {
	s, ok := h.slots.Get(id)
	if !ok || s.Conn != conn {
		return nil
	}
	return s
}

func (h *Hub) handleMessage(id int, conn session.Conn, payload []byte, now time.Time) {
	s := h.lookup(id, conn)
	if s == nil {
		return
	}
	s.Touch()

	msg, err := proto.Decode(payload)
	if err != nil {
		reason := network.DropMalformed
		if errors.Is(err, proto.ErrUnknownTag) {
			reason = network.DropUnknownTag
		}
		h.dropMessage(s, payload, reason)
		return
	}

	switch m := msg.(type) {
	case proto.HeartbeatEcho:
		s.SetLatency(now.UnixMilli() - m.EchoedTime)
		network.LatencySampled(context.Background(), h.publisher, h.loop.Tick(), logging.SessionRef(s.ID), network.LatencySampledPayload{
			LatencyMillis: s.Latency,
		}, nil)
	case proto.SetColor:
		if s.IsObserver() {
			h.dropMessage(s, payload, network.DropObserver)
			return
		}
		s.Color = m.Color
		// Throttled changes reach peers with the next reaper sweep.
		if s.ColorLimiter == nil || s.ColorLimiter.AllowN(now, 1) {
			h.broadcastUsers(s, now)
		}
	case proto.Motion:
		if s.IsObserver() {
			h.dropMessage(s, payload, network.DropObserver)
			return
		}
		h.bridge.ApplyMotion(s.Pointer, m.Pressed, physics.Vec3{
			X: float64(m.X),
			Y: float64(m.Y),
			Z: float64(m.Z),
		})
	}
}

func (h *Hub) dropMessage(s *session.Session, payload []byte, reason string) {
	h.metrics.Add(telemetry.MetricMessagesDropped, 1)
	tag := -1
	if len(payload) > 0 {
		tag = int(payload[0])
	}
	network.MessageDropped(context.Background(), h.publisher, h.loop.Tick(), logging.SessionRef(s.ID), network.MessageDroppedPayload{
		Tag:    tag,
		Length: len(payload),
		Reason: reason,
	}, map[string]any{"trace": s.TraceID})
}

// disconnect runs the common cleanup path for closes, idle evictions and
// failed sends.
func (h *Hub) disconnect(id int, conn session.Conn, reason string, now time.Time) {
	s := h.lookup(id, conn)
	if s == nil {
		return
	}
	if s.StopHeartbeat != nil {
		s.StopHeartbeat()
	}
	h.registry.Remove(s)
	h.slots.Release(s.ID)
	if err := s.Conn.Close(); err != nil {
		h.logger.Printf("[hub] close failed id=%d: %v", s.ID, err)
	}

	if !s.IsObserver() {
		token := s.Pointer
		h.afterFunc(h.cfg.PointerReleaseDelay, func() {
			h.post(releaseEvent{token: token})
		})
	}

	h.metrics.Add(telemetry.MetricSessionsLeft, 1)
	if reason == reasonIdle {
		h.metrics.Add(telemetry.MetricSessionsEvicted, 1)
	}
	h.storeGauges()
	lifecycle.SessionLeft(context.Background(), h.publisher, h.loop.Tick(), logging.SessionRef(s.ID), s.TraceID, lifecycle.SessionLeftPayload{
		Reason:  reason,
		Pointer: s.Pointer,
	}, nil)

	if h.registry.Len() == 0 {
		if h.loop.Stop() {
			simulation.LoopStopped(context.Background(), h.publisher, h.loop.Tick(), simulation.LoopPayload{
				TickRate: h.cfg.TickRate,
			})
			h.logger.Printf("[hub] loop stopped")
		}
		return
	}
	h.broadcastUsers(nil, now)
}

// releasePointer parks the bodies of token and returns it to the pool.
func (h *Hub) releasePointer(token int, now time.Time) {
	h.bridge.ResetPointer(token)
	if err := h.pointers.Release(token); err != nil {
		h.logger.Printf("[hub] pointer release failed token=%d: %v", token, err)
		return
	}
	h.storeGauges()
	lifecycle.PointerReleased(context.Background(), h.publisher, h.loop.Tick(), lifecycle.PointerReleasedPayload{
		Pointer:   token,
		Available: h.pointers.Available(),
	}, nil)
}

// startHeartbeat probes s immediately and then every HeartbeatInterval until
// the returned stop function runs or a send fails.
func (h *Hub) startHeartbeat(s *session.Session, pointerByte uint8) func() {
	ctx, cancel := context.WithCancel(context.Background())
	conn, id := s.Conn, s.ID
	interval := h.cfg.HeartbeatInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			frame := proto.EncodeHeartbeat(proto.Heartbeat{
				Pointer:    pointerByte,
				ServerTime: h.clock.Now().UnixMilli(),
			})
			if err := conn.Send(frame); err != nil {
				h.metrics.Add(telemetry.MetricSendFailures, 1)
				h.post(disconnectEvent{id: id, conn: conn, reason: reasonSendFailed})
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel
}

func (h *Hub) shutdown(now time.Time) {
	for _, s := range h.registry.Sessions() {
		if s.StopHeartbeat != nil {
			s.StopHeartbeat()
		}
		h.registry.Remove(s)
		h.slots.Release(s.ID)
		_ = s.Conn.Close()
		lifecycle.SessionLeft(context.Background(), h.publisher, h.loop.Tick(), logging.SessionRef(s.ID), s.TraceID, lifecycle.SessionLeftPayload{
			Reason:  reasonShutdown,
			Pointer: s.Pointer,
		}, nil)
	}
	h.loop.Stop()
	h.storeGauges()
	h.logger.Printf("[hub] stopped at %s", now.Format(time.RFC3339))
}

func (h *Hub) storeGauges() {
	h.metrics.Store(telemetry.MetricSessionsActive, uint64(h.registry.Len()))
	h.metrics.Store(telemetry.MetricPointersFree, uint64(h.pointers.Available()))
}
