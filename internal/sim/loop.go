package sim

import "time"

// LoopState is the broadcast scheduler state.
type LoopState int

const (
	// LoopIdle means no sessions are connected and no tick is scheduled.
	LoopIdle LoopState = iota
	// LoopRunning means ticks are scheduled on the fixed period.
	LoopRunning
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopRunning:
		return "running"
	default:
		return "unknown"
	}
}

// DefaultTickRate is the target broadcast cadence in Hz.
const DefaultTickRate = 61

// LoopConfig tunes the fixed-timestep scheduler.
type LoopConfig struct {
	TickRate float64
}

// LoopStepResult describes one finished tick.
type LoopStepResult struct {
	Tick     uint64
	Started  time.Time
	Duration time.Duration
	Budget   time.Duration
	// Delay is how long to wait before the next tick. It is zero when the
	// tick overran its budget; missed ticks are skipped, never batched.
	Delay   time.Duration
	Overrun bool
}

// Loop tracks the broadcast state machine and per-tick timing. The owner
// drives it from a single goroutine: Start and Stop on registry changes,
// Begin and Finish around each tick.
type Loop struct {
	period  time.Duration
	state   LoopState
	tick    uint64
	started time.Time
}

// NewLoop returns an idle loop.
func NewLoop(cfg LoopConfig) *Loop {
	rate := cfg.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Loop{period: time.Duration(float64(time.Second) / rate)}
}

// Period is the tick budget.
func (l *Loop) Period() time.Duration { return l.period }

// State reports the current scheduler state.
func (l *Loop) State() LoopState { return l.state }

// Tick reports the number of ticks begun so far.
func (l *Loop) Tick() uint64 { return l.tick }

// Start moves Idle to Running. It reports whether the state changed.
func (l *Loop) Start() bool {
	if l.state == LoopRunning {
		return false
	}
	l.state = LoopRunning
	return true
}

// Stop moves Running to Idle. It reports whether the state changed.
func (l *Loop) Stop() bool {
	if l.state == LoopIdle {
		return false
	}
	l.state = LoopIdle
	return true
}

// Begin records the tick start time and returns the new tick number.
func (l *Loop) Begin(now time.Time) uint64 {
	l.tick++
	l.started = now
	return l.tick
}

// Finish closes the tick begun by Begin and computes the reschedule delay.
func (l *Loop) Finish(now time.Time) LoopStepResult {
	elapsed := now.Sub(l.started)
	if elapsed < 0 {
		elapsed = 0
	}
	result := LoopStepResult{
		Tick:     l.tick,
		Started:  l.started,
		Duration: elapsed,
		Budget:   l.period,
	}
	if elapsed >= l.period {
		result.Overrun = elapsed > l.period
		return result
	}
	result.Delay = l.period - elapsed
	return result
}
