package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pschroen/multiuser-balls/internal/net/proto"
	"github.com/pschroen/multiuser-balls/internal/session"
	"github.com/pschroen/multiuser-balls/logging"
	"github.com/pschroen/multiuser-balls/logging/sinks"
)

var errConnClosed = errors.New("connection closed")

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

type recordingConn struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   bool
	failSend bool
}

func (c *recordingConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failSend {
		return errConnClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingConn) FailSends() {
	c.mu.Lock()
	c.failSend = true
	c.mu.Unlock()
}

// Tagged returns every sent payload whose first byte is tag.
func (c *recordingConn) Tagged(tag proto.Tag) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, payload := range c.sent {
		if len(payload) > 0 && proto.Tag(payload[0]) == tag {
			out = append(out, payload)
		}
	}
	return out
}

func (c *recordingConn) Reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

type scheduledCall struct {
	delay time.Duration
	fn    func()
}

// testHub drives the hub's synchronous core without Run.
type testHub struct {
	*Hub
	t         *testing.T
	clock     *manualClock
	memory    *sinks.MemorySink
	scheduled []scheduledCall
}

var hubEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestHub(t *testing.T, mutate func(*HubConfig)) *testHub {
	t.Helper()
	clock := newManualClock(hubEpoch)
	memory := sinks.NewMemorySink()
	cfg := DefaultHubConfig()
	cfg.MaxPointers = 2
	cfg.FreeBodies = 4
	cfg.Seed = 1
	cfg.Clock = clock
	cfg.Publisher = publisherFunc(memory)
	if mutate != nil {
		mutate(&cfg)
	}
	th := &testHub{Hub: NewHub(cfg), t: t, clock: clock, memory: memory}
	th.heartbeats = func(*session.Session, uint8) func() { return func() {} }
	th.afterFunc = func(d time.Duration, fn func()) {
		th.scheduled = append(th.scheduled, scheduledCall{delay: d, fn: fn})
	}
	return th
}

func (th *testHub) join(address string, observer bool) (*recordingConn, Admission) {
	th.t.Helper()
	conn := &recordingConn{}
	admission, err := th.connect(conn, ConnectRequest{Address: address, Observer: observer}, th.clock.Now())
	if err != nil {
		th.t.Fatalf("connect %s failed: %v", address, err)
	}
	return conn, admission
}

// fireScheduled runs pending timers and applies the events they post.
func (th *testHub) fireScheduled() {
	th.t.Helper()
	calls := th.scheduled
	th.scheduled = nil
	for _, call := range calls {
		call.fn()
	}
	for {
		select {
		case event := <-th.events:
			event.apply(th.Hub, th.clock.Now())
		default:
			return
		}
	}
}

func lastTagged(t *testing.T, conn *recordingConn, tag proto.Tag) []byte {
	t.Helper()
	payloads := conn.Tagged(tag)
	if len(payloads) == 0 {
		t.Fatalf("expected a %s payload", tag)
	}
	return payloads[len(payloads)-1]
}

func interactionCode(t *testing.T, th *testHub, frame []byte, token int) float32 {
	t.Helper()
	floats, err := proto.DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return floats[th.bridge.TargetBlock(token)*proto.FloatsPerBody+proto.StateSlot]
}

func publisherFunc(memory *sinks.MemorySink) logging.Publisher {
	return logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		_ = memory.Write(event)
	})
}

func eventTypes(memory *sinks.MemorySink) []logging.EventType {
	events := memory.Events()
	types := make([]logging.EventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func hasEvent(memory *sinks.MemorySink, eventType logging.EventType) bool {
	for _, got := range eventTypes(memory) {
		if got == eventType {
			return true
		}
	}
	return false
}
