package server

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pschroen/multiuser-balls/internal/net/proto"
	"github.com/pschroen/multiuser-balls/internal/session"
	"github.com/pschroen/multiuser-balls/internal/sim"
	"github.com/pschroen/multiuser-balls/logging/lifecycle"
	"github.com/pschroen/multiuser-balls/logging/network"
	"github.com/pschroen/multiuser-balls/logging/simulation"
)

func TestMotionOverlayAndPointerGraceRelease(t *testing.T) {
	th := newTestHub(t, func(cfg *HubConfig) { cfg.MaxPointers = 1 })

	connA, a := th.join("10.0.0.1", false)
	if a.ID != 0 || a.Pointer != 0 {
		t.Fatalf("expected id 0 token 0, got id %d token %d", a.ID, a.Pointer)
	}
	if th.loop.State() != sim.LoopRunning {
		t.Fatalf("expected loop running after first connection")
	}

	th.handleMessage(a.ID, connA, proto.EncodeMotion(proto.Motion{X: 1, Y: 2, Z: 3}), th.clock.Now())
	th.tick(th.clock.Now())
	if code := interactionCode(t, th, lastTagged(t, connA, proto.TagFrame), 0); code != proto.InteractionHover {
		t.Fatalf("expected interaction 1 after motion, got %v", code)
	}

	th.handleMessage(a.ID, connA, proto.EncodeMotion(proto.Motion{Pressed: true, X: 1, Y: 2, Z: 3}), th.clock.Now())
	th.tick(th.clock.Now())
	if code := interactionCode(t, th, lastTagged(t, connA, proto.TagFrame), 0); code != proto.InteractionPressed {
		t.Fatalf("expected interaction 2 after press, got %v", code)
	}

	th.disconnect(a.ID, connA, reasonClose, th.clock.Now())
	if !connA.Closed() {
		t.Fatalf("expected connection closed")
	}
	if th.loop.State() != sim.LoopIdle {
		t.Fatalf("expected loop idle after last disconnect")
	}
	if !hasEvent(th.memory, simulation.EventLoopStarted) || !hasEvent(th.memory, simulation.EventLoopStopped) {
		t.Fatalf("expected loop start and stop events, got %v", eventTypes(th.memory))
	}
	if len(th.scheduled) != 1 || th.scheduled[0].delay != DefaultPointerReleaseDelay {
		t.Fatalf("expected one release scheduled after %s, got %+v", DefaultPointerReleaseDelay, th.scheduled)
	}

	_, b := th.join("10.0.0.2", false)
	if !b.Observer() {
		t.Fatalf("expected token 0 to be unavailable during the grace delay, got token %d", b.Pointer)
	}

	th.fireScheduled()
	if th.pointers.Available() != 1 {
		t.Fatalf("expected token returned after grace delay")
	}
	if th.bridge.Active(0) {
		t.Fatalf("expected token 0 bodies parked")
	}
	_, c := th.join("10.0.0.3", false)
	if c.Pointer != 0 {
		t.Fatalf("expected token 0 reusable, got %d", c.Pointer)
	}
	if !hasEvent(th.memory, lifecycle.EventPointerReleased) {
		t.Fatalf("expected pointer released event, got %v", eventTypes(th.memory))
	}
}

func TestHeartbeatEchoSetsLatency(t *testing.T) {
	th := newTestHub(t, nil)
	conn, a := th.join("10.0.0.1", false)
	now := th.clock.Now()

	th.handleMessage(a.ID, conn, proto.EncodeHeartbeatEcho(now.UnixMilli()-50), now)

	s, _ := th.slots.Get(a.ID)
	if s.Latency != 50 {
		t.Fatalf("expected latency 50, got %d", s.Latency)
	}

	th.handleMessage(a.ID, conn, proto.EncodeHeartbeatEcho(now.Add(-2*time.Minute).UnixMilli()), now)
	if s.Latency != 65535 {
		t.Fatalf("expected latency clamp 65535, got %d", s.Latency)
	}
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	th := newTestHub(t, nil)
	idleConn, idle := th.join("10.0.0.1", false)
	activeConn, active := th.join("10.0.0.2", false)

	th.sweep(hubEpoch)
	th.clock.Set(hubEpoch.Add(20 * time.Minute))
	th.handleMessage(active.ID, activeConn, []byte{9}, th.clock.Now())
	th.sweep(th.clock.Now())

	th.clock.Set(hubEpoch.Add(31 * time.Minute))
	th.sweep(th.clock.Now())

	if _, ok := th.slots.Get(idle.ID); ok {
		t.Fatalf("expected idle session slot freed")
	}
	if !idleConn.Closed() {
		t.Fatalf("expected idle connection closed")
	}
	if _, ok := th.slots.Get(active.ID); !ok {
		t.Fatalf("expected active session kept")
	}
	if th.registry.Len() != 1 {
		t.Fatalf("expected one live session, got %d", th.registry.Len())
	}

	var reasons []string
	for _, event := range th.memory.Events() {
		if event.Type == lifecycle.EventSessionLeft {
			reasons = append(reasons, event.Payload.(lifecycle.SessionLeftPayload).Reason)
		}
	}
	if len(reasons) != 1 || reasons[0] != lifecycle.ReasonIdle {
		t.Fatalf("expected one idle departure, got %v", reasons)
	}
}

func TestSweepBroadcastsUserList(t *testing.T) {
	th := newTestHub(t, nil)
	connA, _ := th.join("10.0.0.1", false)
	connB, _ := th.join("10.0.0.1", true)
	connA.Reset()
	connB.Reset()

	th.sweep(th.clock.Now())

	for _, conn := range []*recordingConn{connA, connB} {
		users, err := proto.DecodeUsers(lastTagged(t, conn, proto.TagUsers))
		if err != nil {
			t.Fatalf("decode users: %v", err)
		}
		if len(users) != 2 {
			t.Fatalf("expected 2 users, got %d", len(users))
		}
		if users[0].Pointer != 0 || users[1].Pointer != 2 {
			t.Fatalf("expected token 0 then observer sentinel 2, got %d and %d", users[0].Pointer, users[1].Pointer)
		}
		if users[0].Address != 0x0a000001 || users[1].Address != 0x0a000001 {
			t.Fatalf("expected deduplicated addresses to pack to the same ip, got %x %x", users[0].Address, users[1].Address)
		}
	}
}

func TestColorChangeNotifiesOthers(t *testing.T) {
	th := newTestHub(t, nil)
	connA, a := th.join("10.0.0.1", false)
	connB, _ := th.join("10.0.0.2", false)
	connObserver, observer := th.join("10.0.0.3", true)
	connA.Reset()
	connB.Reset()
	connObserver.Reset()

	th.handleMessage(a.ID, connA, proto.EncodeColor("ff8800"), th.clock.Now())

	if got := connA.Tagged(proto.TagUsers); len(got) != 0 {
		t.Fatalf("expected sender excluded from color broadcast")
	}
	users, err := proto.DecodeUsers(lastTagged(t, connB, proto.TagUsers))
	if err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if users[0].Color != "ff8800" {
		t.Fatalf("expected color ff8800, got %q", users[0].Color)
	}

	connB.Reset()
	th.handleMessage(observer.ID, connObserver, proto.EncodeColor("00ff00"), th.clock.Now())
	if got := connB.Tagged(proto.TagUsers); len(got) != 0 {
		t.Fatalf("expected observer color ignored")
	}
	if !hasEvent(th.memory, network.EventMessageDropped) {
		t.Fatalf("expected dropped message event for observer color")
	}
}

func TestColorBurstKeepsLatestColor(t *testing.T) {
	th := newTestHub(t, nil)
	connA, a := th.join("10.0.0.1", false)
	connB, _ := th.join("10.0.0.2", false)
	connB.Reset()

	now := th.clock.Now()
	colors := []string{"000001", "000002", "000003", "000004", "000005", "000006", "ff0000"}
	for _, color := range colors {
		th.handleMessage(a.ID, connA, proto.EncodeColor(color), now)
	}

	s, _ := th.slots.Get(a.ID)
	if s.Color != "ff0000" {
		t.Fatalf("expected latest color ff0000 stored, got %q", s.Color)
	}
	if got := len(connB.Tagged(proto.TagUsers)); got != DefaultColorBurst {
		t.Fatalf("expected %d immediate user lists within the burst, got %d", DefaultColorBurst, got)
	}
	if hasEvent(th.memory, network.EventMessageDropped) {
		t.Fatalf("expected throttled color changes to be kept, got %v", eventTypes(th.memory))
	}

	th.sweep(now.Add(DefaultHeartbeatInterval))
	users, err := proto.DecodeUsers(lastTagged(t, connB, proto.TagUsers))
	if err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if users[0].Color != "ff0000" {
		t.Fatalf("expected next user list to carry ff0000, got %q", users[0].Color)
	}
}

func TestMalformedMessagesAreDroppedSilently(t *testing.T) {
	th := newTestHub(t, nil)
	conn, a := th.join("10.0.0.1", false)
	conn.Reset()

	for _, payload := range [][]byte{{}, {42}, {byte(proto.TagMotion), 0, 1}, {byte(proto.TagHeartbeat), 0}} {
		th.handleMessage(a.ID, conn, payload, th.clock.Now())
	}

	if len(conn.Tagged(proto.TagUsers))+len(conn.Tagged(proto.TagFrame)) != 0 || conn.Closed() {
		t.Fatalf("expected no reply and no disconnect")
	}
	s, ok := th.slots.Get(a.ID)
	if !ok || !s.IdleSince().IsZero() {
		t.Fatalf("expected session kept and marked active")
	}
	if th.bridge.Active(0) {
		t.Fatalf("expected truncated motion ignored")
	}
}

func TestObserverMotionIsIgnored(t *testing.T) {
	th := newTestHub(t, nil)
	conn, observer := th.join("10.0.0.1", true)
	th.handleMessage(observer.ID, conn, proto.EncodeMotion(proto.Motion{Pressed: true}), th.clock.Now())
	if th.bridge.Active(0) || th.bridge.Active(1) {
		t.Fatalf("expected observer motion ignored")
	}
}

func TestFailedSendDisconnects(t *testing.T) {
	th := newTestHub(t, nil)
	_, a := th.join("10.0.0.1", false)
	connB, b := th.join("10.0.0.2", false)
	connB.FailSends()

	th.tick(th.clock.Now())

	if _, ok := th.slots.Get(b.ID); ok {
		t.Fatalf("expected failing session removed")
	}
	if _, ok := th.slots.Get(a.ID); !ok {
		t.Fatalf("expected healthy session kept")
	}
	if len(th.scheduled) != 1 {
		t.Fatalf("expected pointer release scheduled for failed session")
	}
}

func TestStaleEventsForReusedSlotAreIgnored(t *testing.T) {
	th := newTestHub(t, nil)
	oldConn, a := th.join("10.0.0.1", false)
	th.disconnect(a.ID, oldConn, reasonClose, th.clock.Now())
	newConn, b := th.join("10.0.0.9", false)
	if a.ID != b.ID {
		t.Fatalf("expected slot reuse")
	}

	th.disconnect(a.ID, oldConn, reasonClose, th.clock.Now())
	th.handleMessage(a.ID, oldConn, proto.EncodeMotion(proto.Motion{}), th.clock.Now())

	s, ok := th.slots.Get(b.ID)
	if !ok || s.Conn != newConn || th.bridge.Active(a.Pointer) || th.bridge.Active(b.Pointer) {
		t.Fatalf("expected new session untouched by stale events")
	}
}

func TestConnectRejectsWhenSlotsExhausted(t *testing.T) {
	th := newTestHub(t, func(cfg *HubConfig) { cfg.MaxPointers = 0 })
	for i := 0; i < session.Capacity; i++ {
		th.join("10.0.0.1", false)
	}
	_, err := th.connect(&recordingConn{}, ConnectRequest{Address: "10.0.0.1"}, th.clock.Now())
	if !errors.Is(err, session.ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if th.registry.Len() != session.Capacity {
		t.Fatalf("expected registry unchanged, got %d", th.registry.Len())
	}
	if !hasEvent(th.memory, lifecycle.EventCapacityExhausted) {
		t.Fatalf("expected capacity event")
	}
}

func TestFramesAreDeterministic(t *testing.T) {
	run := func() []byte {
		th := newTestHub(t, nil)
		connA, a := th.join("10.0.0.1", false)
		th.join("10.0.0.2", true)
		th.handleMessage(a.ID, connA, proto.EncodeMotion(proto.Motion{Pressed: true, X: 4, Y: -2, Z: 1}), th.clock.Now())
		for i := 0; i < 5; i++ {
			th.tick(th.clock.Now())
		}
		return lastTagged(t, connA, proto.TagFrame)
	}

	first, second := run(), run()
	if !bytes.Equal(first, second) {
		t.Fatalf("expected byte-identical frames")
	}
	if len(first) != proto.FrameSize(4+2+2) {
		t.Fatalf("expected frame of %d bytes, got %d", proto.FrameSize(8), len(first))
	}
}

func TestDiagnosticsSnapshot(t *testing.T) {
	th := newTestHub(t, nil)
	th.join("10.0.0.1", false)
	th.join("10.0.0.1", true)

	snapshot := th.diagnostics(th.clock.Now())
	if snapshot.LoopState != "running" || snapshot.PointersAvailable != 1 || snapshot.PointersTotal != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if len(snapshot.Sessions) != 2 || snapshot.Sessions[1].Address != "10.0.0.1 (2)" || !snapshot.Sessions[1].Observer {
		t.Fatalf("unexpected sessions %+v", snapshot.Sessions)
	}
}

func TestRunBroadcastsFramesAndHeartbeats(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.MaxPointers = 2
	cfg.FreeBodies = 2
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.Seed = 3
	hub := NewHub(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	conn := &recordingConn{}
	admission, err := hub.Connect(ctx, conn, ConnectRequest{Address: "192.168.1.5"})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if admission.Pointer != 0 || admission.PointerByte != 0 || admission.TraceID == "" {
		t.Fatalf("unexpected admission %+v", admission)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(conn.Tagged(proto.TagFrame)) >= 3 && len(conn.Tagged(proto.TagHeartbeat)) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(conn.Tagged(proto.TagFrame)) < 3 {
		t.Fatalf("expected frames to stream")
	}
	heartbeat, err := proto.DecodeHeartbeat(lastTagged(t, conn, proto.TagHeartbeat))
	if err != nil || heartbeat.Pointer != 0 {
		t.Fatalf("unexpected heartbeat %+v err=%v", heartbeat, err)
	}

	diagnostics, err := hub.Diagnostics(ctx)
	if err != nil || len(diagnostics.Sessions) != 1 || diagnostics.Tick == 0 {
		t.Fatalf("unexpected diagnostics %+v err=%v", diagnostics, err)
	}

	hub.Disconnect(admission.ID, conn)
	deadline = time.Now().Add(time.Second)
	for !conn.Closed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !conn.Closed() {
		t.Fatalf("expected disconnect to close the connection")
	}

	cancel()
	<-hub.Done()
	if _, err := hub.Connect(context.Background(), &recordingConn{}, ConnectRequest{}); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
}
