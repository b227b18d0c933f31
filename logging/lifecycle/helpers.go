package lifecycle

import (
	"context"
	"strconv"

	"github.com/pschroen/multiuser-balls/logging"
)

const (
	// EventSessionJoined is emitted when a connection is admitted.
	EventSessionJoined logging.EventType = "lifecycle.session_joined"
	// EventSessionLeft is emitted when a session is torn down.
	EventSessionLeft logging.EventType = "lifecycle.session_left"
	// EventPointerReleased is emitted when a pointer token returns to the pool.
	EventPointerReleased logging.EventType = "lifecycle.pointer_released"
	// EventCapacityExhausted is emitted when a slot or pointer token is unavailable.
	EventCapacityExhausted logging.EventType = "lifecycle.capacity_exhausted"
)

// Reasons a session leaves.
const (
	ReasonClose      = "close"
	ReasonIdle       = "idle"
	ReasonSendFailed = "send_failed"
	ReasonShutdown   = "shutdown"
)

// Resources that can run out.
const (
	ResourceSlot    = "slot"
	ResourcePointer = "pointer"
)

// SessionJoinedPayload captures admission metadata.
type SessionJoinedPayload struct {
	Pointer  int    `json:"pointer"`
	Observer bool   `json:"observer"`
	Address  string `json:"address"`
}

// SessionLeftPayload captures why a session left.
type SessionLeftPayload struct {
	Reason  string `json:"reason"`
	Pointer int    `json:"pointer"`
}

// PointerReleasedPayload names the returned token.
type PointerReleasedPayload struct {
	Pointer   int `json:"pointer"`
	Available int `json:"available"`
}

// CapacityExhaustedPayload names the exhausted resource.
type CapacityExhaustedPayload struct {
	Resource string `json:"resource"`
	Address  string `json:"address,omitempty"`
}

// SessionJoined publishes a session join event.
func SessionJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, traceID string, payload SessionJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
		TraceID:  traceID,
	})
}

// SessionLeft publishes a session departure event.
func SessionLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, traceID string, payload SessionLeftPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionLeft,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
		TraceID:  traceID,
	})
}

// PointerReleased publishes a debug event when a token becomes reusable.
func PointerReleased(ctx context.Context, pub logging.Publisher, tick uint64, payload PointerReleasedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPointerReleased,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: strconv.Itoa(payload.Pointer), Kind: logging.EntityKindPointer},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// CapacityExhausted publishes a warning when admission hits a limit.
func CapacityExhausted(ctx context.Context, pub logging.Publisher, tick uint64, payload CapacityExhaustedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCapacityExhausted,
		Tick:     tick,
		Actor:    logging.ServerRef(),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
