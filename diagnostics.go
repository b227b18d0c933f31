package server

import "time"

// SessionDiagnostics describes one live session.
type SessionDiagnostics struct {
	ID          int    `json:"id"`
	Pointer     int    `json:"pointer"`
	Observer    bool   `json:"observer"`
	Address     string `json:"address"`
	Color       string `json:"color,omitempty"`
	LatencyMs   uint16 `json:"latencyMs"`
	IdleMillis  int64  `json:"idleMillis"`
	Interaction int    `json:"interaction"`
}

// Diagnostics is a point-in-time view of the hub.
type Diagnostics struct {
	ServerTime        int64                `json:"serverTime"`
	LoopState         string               `json:"loopState"`
	Tick              uint64               `json:"tick"`
	TickRate          float64              `json:"tickRate"`
	HeartbeatMillis   int64                `json:"heartbeatMillis"`
	PointersTotal     int                  `json:"pointersTotal"`
	PointersAvailable int                  `json:"pointersAvailable"`
	Bodies            int                  `json:"bodies"`
	FreeBodies        int                  `json:"freeBodies"`
	Sessions          []SessionDiagnostics `json:"sessions"`
	Telemetry         TelemetrySnapshot    `json:"telemetry"`
}

func (h *Hub) diagnostics(now time.Time) Diagnostics {
	sessions := h.registry.Sessions()
	snapshot := Diagnostics{
		ServerTime:        now.UnixMilli(),
		LoopState:         h.loop.State().String(),
		Tick:              h.loop.Tick(),
		TickRate:          h.cfg.TickRate,
		HeartbeatMillis:   h.cfg.HeartbeatInterval.Milliseconds(),
		PointersTotal:     h.pointers.Size(),
		PointersAvailable: h.pointers.Available(),
		Bodies:            h.bridge.Bodies(),
		FreeBodies:        h.bridge.FreeBodies(),
		Sessions:          make([]SessionDiagnostics, 0, len(sessions)),
		Telemetry:         h.telemetry.Snapshot(),
	}
	for _, s := range sessions {
		var idle int64
		if since := s.IdleSince(); !since.IsZero() {
			idle = now.Sub(since).Milliseconds()
		}
		snapshot.Sessions = append(snapshot.Sessions, SessionDiagnostics{
			ID:          s.ID,
			Pointer:     s.Pointer,
			Observer:    s.IsObserver(),
			Address:     s.Address,
			Color:       s.Color,
			LatencyMs:   s.Latency,
			IdleMillis:  idle,
			Interaction: int(h.interaction(s.Pointer)),
		})
	}
	return snapshot
}
