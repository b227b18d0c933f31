package server

import (
	"context"
	"time"

	"github.com/pschroen/multiuser-balls/internal/net/proto"
	"github.com/pschroen/multiuser-balls/internal/session"
	"github.com/pschroen/multiuser-balls/internal/sim"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
	"github.com/pschroen/multiuser-balls/logging/simulation"
)

// tick runs one broadcast iteration: step, serialize, overlay, fan out.
func (h *Hub) tick(now time.Time) sim.LoopStepResult {
	tick := h.loop.Begin(now)
	sessions := h.registry.Sessions()

	held := make([]int, 0, len(sessions))
	for _, s := range sessions {
		if !s.IsObserver() {
			held = append(held, s.Pointer)
		}
	}
	h.bridge.Step(now, held)

	for _, contact := range h.bridge.DrainContacts() {
		h.metrics.Add(telemetry.MetricContacts, 1)
		simulation.Contact(context.Background(), h.publisher, tick, simulation.ContactPayload{
			Ball:  contact.Ball,
			Force: contact.Force,
		})
		h.broadcast(proto.EncodeContact(proto.Contact{Ball: uint8(contact.Ball), Force: contact.Force}), nil, now)
	}

	frame := h.encodeFrame()
	delivered := h.broadcast(frame, nil, now)
	h.metrics.Add(telemetry.MetricFramesSent, 1)
	h.telemetry.RecordBroadcast(len(frame), delivered)

	result := h.loop.Finish(h.clock.Now())
	h.telemetry.RecordTickDuration(result.Duration)
	h.metrics.Store(telemetry.MetricTickDurationUS, uint64(result.Duration.Microseconds()))
	if result.Overrun {
		h.metrics.Add(telemetry.MetricTickOverruns, 1)
		h.telemetry.RecordOverrun()
		simulation.TickBudgetOverrun(context.Background(), h.publisher, tick, simulation.TickBudgetOverrunPayload{
			DurationMillis: result.Duration.Milliseconds(),
			BudgetMillis:   result.Budget.Milliseconds(),
			Ratio:          float64(result.Duration) / float64(result.Budget),
		}, nil)
	}
	return result
}

// encodeFrame serializes every body and overlays the interaction code of
// each live session's pointer into its target body's state slot.
func (h *Hub) encodeFrame() []byte {
	h.transforms = h.bridge.AppendTransforms(h.transforms[:0])
	frame := proto.EncodeFrame(h.transforms)
	for _, s := range h.registry.Sessions() {
		if s.IsObserver() {
			continue
		}
		proto.SetBodyState(frame, h.bridge.TargetBlock(s.Pointer), h.interaction(s.Pointer))
	}
	return frame
}

// interaction maps the bridge's motion state for token to an overlay code.
func (h *Hub) interaction(token int) float32 {
	switch {
	case !h.bridge.Active(token):
		return proto.InteractionInactive
	case h.bridge.Pressed(token):
		return proto.InteractionPressed
	default:
		return proto.InteractionHover
	}
}

// broadcast sends payload to every live session except one. Sessions whose
// send fails are disconnected after the fan-out. It returns the number of
// successful sends.
func (h *Hub) broadcast(payload []byte, except *session.Session, now time.Time) int {
	var failed []*session.Session
	delivered := 0
	for _, s := range h.registry.Except(except) {
		if err := s.Conn.Send(payload); err != nil {
			failed = append(failed, s)
			continue
		}
		delivered++
	}
	h.metrics.Add(telemetry.MetricBytesSent, uint64(len(payload)*delivered))
	for _, s := range failed {
		h.metrics.Add(telemetry.MetricSendFailures, 1)
		h.disconnect(s.ID, s.Conn, reasonSendFailed, now)
	}
	return delivered
}

// userRecords lists every session in registry order.
func (h *Hub) userRecords() []proto.UserRecord {
	sessions := h.registry.Sessions()
	records := make([]proto.UserRecord, 0, len(sessions))
	for _, s := range sessions {
		records = append(records, proto.UserRecord{
			Pointer: proto.PointerByte(s.Pointer, h.cfg.MaxPointers),
			Color:   s.Color,
			Address: proto.AddressToUint32(s.Address),
			Latency: s.Latency,
		})
	}
	return records
}

// broadcastUsers sends the user list to every session except one.
func (h *Hub) broadcastUsers(except *session.Session, now time.Time) {
	if h.registry.Len() == 0 {
		return
	}
	h.broadcast(proto.EncodeUsers(h.userRecords()), except, now)
}

// sweep marks newly idle sessions, evicts those idle past IdleTimeout and
// refreshes every viewer's user list.
func (h *Hub) sweep(now time.Time) {
	for _, s := range h.registry.Sessions() {
		if idle := s.MarkIdle(now); idle > h.cfg.IdleTimeout {
			h.logger.Printf("[hub] evicting idle session id=%d address=%s idle=%s", s.ID, s.Address, idle.Round(time.Second))
			h.disconnect(s.ID, s.Conn, reasonIdle, now)
		}
	}
	h.broadcastUsers(nil, now)
}
