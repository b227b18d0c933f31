package session

import (
	"time"

	"golang.org/x/time/rate"
)

// NoPointer marks a session that holds no pointer token.
const NoPointer = -1

// Conn is the outbound half of a client connection. Send must not block and
// must be safe to call from any goroutine.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Session is the per-connection state owned by the hub.
type Session struct {
	ID      int
	Address string
	TraceID string
	Conn    Conn

	// Pointer is the checked out pointer token, or NoPointer for observers.
	Pointer int
	Color   string
	Latency uint16

	// idleSince is zero while the session is active.
	idleSince time.Time

	ColorLimiter *rate.Limiter

	// StopHeartbeat cancels the per-session heartbeat loop.
	StopHeartbeat func()
}

// IsObserver reports whether the session drives no simulated body.
func (s *Session) IsObserver() bool {
	return s.Pointer == NoPointer
}

// Touch clears the idle marker after inbound traffic.
func (s *Session) Touch() {
	s.idleSince = time.Time{}
}

// IdleSince returns the idle marker; the zero time means active.
func (s *Session) IdleSince() time.Time {
	return s.idleSince
}

// MarkIdle starts the idle window at now if the session is currently active
// and reports how long it has been idle.
func (s *Session) MarkIdle(now time.Time) time.Duration {
	if s.idleSince.IsZero() {
		s.idleSince = now
		return 0
	}
	return now.Sub(s.idleSince)
}

// SetLatency stores a round trip sample in milliseconds, clamped to the wire range.
func (s *Session) SetLatency(millis int64) {
	switch {
	case millis < 0:
		s.Latency = 0
	case millis > 65535:
		s.Latency = 65535
	default:
		s.Latency = uint16(millis)
	}
}
