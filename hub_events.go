package server

import (
	"time"

	"github.com/pschroen/multiuser-balls/internal/session"
)

// hubEvent is anything that mutates hub state. apply runs on the Run goroutine.
type hubEvent interface {
	apply(h *Hub, now time.Time)
}

type connectResult struct {
	admission Admission
	err       error
}

type connectEvent struct {
	conn  session.Conn
	req   ConnectRequest
	reply chan<- connectResult
}

func (e connectEvent) apply(h *Hub, now time.Time) {
	admission, err := h.connect(e.conn, e.req, now)
	e.reply <- connectResult{admission: admission, err: err}
}

// abandonEvent disconnects whatever session is bound to conn after its
// Connect caller stopped waiting for the admission.
type abandonEvent struct {
	conn session.Conn
}

func (e abandonEvent) apply(h *Hub, now time.Time) {
	for _, s := range h.registry.Sessions() {
		if s.Conn == e.conn {
			h.disconnect(s.ID, e.conn, reasonClose, now)
		}
	}
}

type messageEvent struct {
	id      int
	conn    session.Conn
	payload []byte
}

func (e messageEvent) apply(h *Hub, now time.Time) {
	h.handleMessage(e.id, e.conn, e.payload, now)
}

type disconnectEvent struct {
	id     int
	conn   session.Conn
	reason string
}

func (e disconnectEvent) apply(h *Hub, now time.Time) {
	h.disconnect(e.id, e.conn, e.reason, now)
}

type releaseEvent struct {
	token int
}

func (e releaseEvent) apply(h *Hub, now time.Time) {
	h.releasePointer(e.token, now)
}

type diagnosticsEvent struct {
	reply chan<- Diagnostics
}

func (e diagnosticsEvent) apply(h *Hub, now time.Time) {
	e.reply <- h.diagnostics(now)
}
