package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/pschroen/multiuser-balls/internal/physics"
)

// BridgeConfig sizes the scene and tunes the per-tick forces.
type BridgeConfig struct {
	FreeBodies        int
	Pointers          int
	BodyRadius        float64
	CenteringGain     float64
	SpringFrequency   float64
	SpringDamping     float64
	ContactDamping    float64
	ContactThreshold  float64
	ContactRefractory time.Duration
}

// DefaultBridgeConfig mirrors the production scene.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		FreeBodies:        100,
		Pointers:          50,
		BodyRadius:        1,
		CenteringGain:     0.001,
		SpringFrequency:   15,
		SpringDamping:     1,
		ContactDamping:    0.007,
		ContactThreshold:  0.3,
		ContactRefractory: 250 * time.Millisecond,
	}
}

// parkDepth is the z offset behind the camera where unused pointer bodies rest.
const parkDepth = 101

// Bridge is the only caller of the physics engine. It owns the free bodies,
// one target and one cursor body per pointer token, and the spring joints
// between them. Bridge is not safe for concurrent use; the hub owns it.
type Bridge struct {
	engine Engine
	cfg    BridgeConfig

	free    []physics.BodyID
	targets []physics.BodyID
	cursors []physics.BodyID

	activated []bool
	pressed   []bool
	detectors []ContactDetector

	now      time.Time
	contacts []Contact
}

// NewBridge populates engine with the scene. rng seeds the free body layout;
// a nil rng uses a fixed seed.
func NewBridge(engine Engine, cfg BridgeConfig, rng *rand.Rand) *Bridge {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if cfg.BodyRadius <= 0 {
		cfg.BodyRadius = 1
	}
	b := &Bridge{
		engine:    engine,
		cfg:       cfg,
		free:      make([]physics.BodyID, cfg.FreeBodies),
		targets:   make([]physics.BodyID, cfg.Pointers),
		cursors:   make([]physics.BodyID, cfg.Pointers),
		activated: make([]bool, cfg.Pointers),
		pressed:   make([]bool, cfg.Pointers),
		detectors: make([]ContactDetector, cfg.FreeBodies),
	}

	for i := range b.free {
		b.free[i] = engine.AddBody(physics.BodySpec{
			Kind:        physics.Dynamic,
			Radius:      cfg.BodyRadius,
			Density:     1,
			Position:    physics.Vec3{X: scatter(rng), Y: scatter(rng), Z: scatter(rng)},
			Orientation: physics.FromEuler(randomAngle(rng), randomAngle(rng), randomAngle(rng)),
		})
		b.detectors[i] = NewContactDetector(cfg.ContactDamping, cfg.ContactThreshold, cfg.ContactRefractory)
		ball := i
		engine.SetContactCallback(b.free[i], func(self, _ physics.BodyID) {
			b.observeContact(ball, self)
		})
	}
	for i := range b.targets {
		b.targets[i] = engine.AddBody(physics.BodySpec{
			Kind:    physics.Dynamic,
			Radius:  cfg.BodyRadius,
			Density: 1,
		})
	}
	for i := range b.cursors {
		b.cursors[i] = engine.AddBody(physics.BodySpec{Kind: physics.Kinematic})
	}
	for i := range b.targets {
		engine.AddSpringJoint(physics.JointSpec{
			A:            b.targets[i],
			B:            b.cursors[i],
			Frequency:    cfg.SpringFrequency,
			DampingRatio: cfg.SpringDamping,
		})
	}
	for i := range b.targets {
		b.ResetPointer(i)
	}
	return b
}

func scatter(rng *rand.Rand) float64 {
	v := 10 + rng.Float64()*90
	if rng.Intn(2) == 0 {
		return -v
	}
	return v
}

func randomAngle(rng *rand.Rand) float64 {
	return float64(rng.Intn(361)) * math.Pi / 180
}

// Bodies reports the total number of bodies in frame order.
func (b *Bridge) Bodies() int {
	return len(b.free) + len(b.targets) + len(b.cursors)
}

// FreeBodies reports the number of free bodies.
func (b *Bridge) FreeBodies() int { return len(b.free) }

// Pointers reports the number of pointer body pairs.
func (b *Bridge) Pointers() int { return len(b.targets) }

// TargetBlock returns the frame block index of pointer token's target body.
func (b *Bridge) TargetBlock(token int) int {
	return len(b.free) + token
}

// ResetPointer parks the cursor and target bodies of token off-scene and puts
// them to sleep.
func (b *Bridge) ResetPointer(token int) {
	if token < 0 || token >= len(b.targets) {
		return
	}
	park := physics.Vec3{Z: parkDepth + float64(token)}
	b.engine.SetPosition(b.cursors[token], park)
	b.engine.Sleep(b.cursors[token])
	b.engine.SetPosition(b.targets[token], park)
	b.engine.Sleep(b.targets[token])
	b.activated[token] = false
	b.pressed[token] = false
}

// ApplyMotion moves token's cursor body. The first motion after a reset also
// teleports the target body and wakes both so the spring starts slack.
func (b *Bridge) ApplyMotion(token int, pressed bool, position physics.Vec3) {
	if token < 0 || token >= len(b.targets) {
		return
	}
	cursor := b.cursors[token]
	b.engine.SetPosition(cursor, position)
	if !b.activated[token] {
		b.activated[token] = true
		b.engine.WakeUp(cursor)
		target := b.targets[token]
		b.engine.SetPosition(target, position)
		b.engine.WakeUp(target)
	}
	b.pressed[token] = pressed
}

// Pressed reports the last pressed flag recorded for token.
func (b *Bridge) Pressed(token int) bool {
	if token < 0 || token >= len(b.pressed) {
		return false
	}
	return b.pressed[token]
}

// Active reports whether token has received motion since its last reset.
func (b *Bridge) Active(token int) bool {
	if token < 0 || token >= len(b.activated) {
		return false
	}
	return b.activated[token]
}

// Step pulls free bodies toward the origin, advances the engine one step and
// normalizes the spin of every held pointer's target body. Contacts raised
// during the step are stamped with now.
func (b *Bridge) Step(now time.Time, held []int) {
	b.now = now
	if gain := b.cfg.CenteringGain; gain > 0 {
		for _, id := range b.free {
			b.engine.ApplyImpulse(id, b.engine.Position(id).Scale(-gain))
		}
	}

	b.engine.Step()

	for _, token := range held {
		if token < 0 || token >= len(b.targets) {
			continue
		}
		target := b.targets[token]
		b.engine.SetOrientation(target, physics.Identity())
		b.engine.SetLinearVelocity(target, physics.Vec3{})
		b.engine.SetAngularVelocity(target, physics.Vec3{})
	}
}

func (b *Bridge) observeContact(ball int, body physics.BodyID) {
	force, fired := b.detectors[ball].Observe(b.now, b.engine.LinearVelocity(body), b.engine.Mass(body))
	if fired {
		b.contacts = append(b.contacts, Contact{Ball: ball, Force: float32(force)})
	}
}

// DrainContacts returns and clears the contacts raised since the last call.
func (b *Bridge) DrainContacts() []Contact {
	if len(b.contacts) == 0 {
		return nil
	}
	drained := b.contacts
	b.contacts = nil
	return drained
}

// AppendTransforms appends eight floats per body to dst: position xyz,
// quaternion xyzw and the sleep flag. Bodies are ordered free, target, cursor.
func (b *Bridge) AppendTransforms(dst []float32) []float32 {
	dst = b.appendGroup(dst, b.free)
	dst = b.appendGroup(dst, b.targets)
	return b.appendGroup(dst, b.cursors)
}

func (b *Bridge) appendGroup(dst []float32, ids []physics.BodyID) []float32 {
	for _, id := range ids {
		p := b.engine.Position(id)
		q := b.engine.Orientation(id)
		var sleeping float32
		if b.engine.IsSleeping(id) {
			sleeping = 1
		}
		dst = append(dst,
			float32(p.X), float32(p.Y), float32(p.Z),
			float32(q.X), float32(q.Y), float32(q.Z), float32(q.W),
			sleeping,
		)
	}
	return dst
}
