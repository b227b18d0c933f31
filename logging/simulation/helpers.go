package simulation

import (
	"context"
	"strconv"

	"github.com/pschroen/multiuser-balls/logging"
)

const (
	// EventLoopStarted is emitted when the broadcast loop leaves the idle state.
	EventLoopStarted logging.EventType = "simulation.loop_started"
	// EventLoopStopped is emitted when the last session leaves.
	EventLoopStopped logging.EventType = "simulation.loop_stopped"
	// EventTickBudgetOverrun is emitted when a tick exceeds its period.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventContact is emitted for each broadcast contact cue.
	EventContact logging.EventType = "simulation.contact"
)

// LoopPayload describes the scheduler when it changes state.
type LoopPayload struct {
	TickRate float64 `json:"tickRate"`
	Sessions int     `json:"sessions"`
}

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
}

// ContactPayload captures one contact cue.
type ContactPayload struct {
	Ball  int     `json:"ball"`
	Force float32 `json:"force"`
}

// LoopStarted publishes an info event when ticking begins.
func LoopStarted(ctx context.Context, pub logging.Publisher, tick uint64, payload LoopPayload) {
	publishLoop(ctx, pub, EventLoopStarted, tick, payload)
}

// LoopStopped publishes an info event when ticking ends.
func LoopStopped(ctx context.Context, pub logging.Publisher, tick uint64, payload LoopPayload) {
	publishLoop(ctx, pub, EventLoopStopped, tick, payload)
}

func publishLoop(ctx context.Context, pub logging.Publisher, eventType logging.EventType, tick uint64, payload LoopPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    logging.ServerRef(),
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// TickBudgetOverrun publishes a warning when the loop exceeds the configured tick budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Actor:    logging.ServerRef(),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	})
}

// Contact publishes a debug event for a contact cue.
func Contact(ctx context.Context, pub logging.Publisher, tick uint64, payload ContactPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventContact,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: strconv.Itoa(payload.Ball), Kind: logging.EntityKindBall},
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}
