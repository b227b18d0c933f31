package network

import (
	"context"

	"github.com/pschroen/multiuser-balls/logging"
)

const (
	// EventMessageDropped is emitted when an inbound payload is discarded.
	EventMessageDropped logging.EventType = "network.message_dropped"
	// EventLatencySampled is emitted for each heartbeat echo.
	EventLatencySampled logging.EventType = "network.latency_sampled"
)

// Drop reasons.
const (
	DropMalformed  = "malformed"
	DropUnknownTag = "unknown_tag"
	DropObserver   = "observer"
)

// MessageDroppedPayload describes a discarded inbound message.
type MessageDroppedPayload struct {
	Tag    int    `json:"tag"`
	Length int    `json:"length"`
	Reason string `json:"reason"`
}

// LatencySampledPayload carries one round trip sample.
type LatencySampledPayload struct {
	LatencyMillis uint16 `json:"latencyMs"`
}

// MessageDropped publishes a debug event for a dropped inbound payload.
func MessageDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MessageDroppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventMessageDropped,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// LatencySampled publishes a debug event with the latest round trip.
func LatencySampled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload LatencySampledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventLatencySampled,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
