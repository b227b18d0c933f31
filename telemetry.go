package server

import (
	"sync/atomic"
	"time"
)

type telemetryCounters struct {
	framesSent            atomic.Uint64
	bytesSent             atomic.Uint64
	tickDurationMicros    atomic.Int64
	tickOverruns          atomic.Uint64
	lastBroadcastBytes    atomic.Uint64
	lastBroadcastSessions atomic.Uint64
}

// TelemetrySnapshot is the broadcast loop's counters at one instant.
type TelemetrySnapshot struct {
	FramesSent            uint64 `json:"framesSent"`
	BytesSent             uint64 `json:"bytesSent"`
	TickDurationMicros    int64  `json:"tickDurationMicros"`
	TickOverruns          uint64 `json:"tickOverruns"`
	LastBroadcastBytes    uint64 `json:"lastBroadcastBytes"`
	LastBroadcastSessions uint64 `json:"lastBroadcastSessions"`
}

func newTelemetryCounters() *telemetryCounters {
	return &telemetryCounters{}
}

// RecordBroadcast stores the size of one frame and how many sessions got it.
func (t *telemetryCounters) RecordBroadcast(bytes, sessions int) {
	if bytes < 0 {
		bytes = 0
	}
	if sessions < 0 {
		sessions = 0
	}
	t.framesSent.Add(1)
	t.bytesSent.Add(uint64(bytes) * uint64(sessions))
	t.lastBroadcastBytes.Store(uint64(bytes))
	t.lastBroadcastSessions.Store(uint64(sessions))
}

func (t *telemetryCounters) RecordTickDuration(duration time.Duration) {
	micros := duration.Microseconds()
	if micros < 0 {
		micros = 0
	}
	t.tickDurationMicros.Store(micros)
}

func (t *telemetryCounters) RecordOverrun() {
	t.tickOverruns.Add(1)
}

func (t *telemetryCounters) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		FramesSent:            t.framesSent.Load(),
		BytesSent:             t.bytesSent.Load(),
		TickDurationMicros:    t.tickDurationMicros.Load(),
		TickOverruns:          t.tickOverruns.Load(),
		LastBroadcastBytes:    t.lastBroadcastBytes.Load(),
		LastBroadcastSessions: t.lastBroadcastSessions.Load(),
	}
}
