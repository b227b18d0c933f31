// Package physics is a small rigid-body world: spheres, kinematic anchors and
// spring joints in zero gravity. It implements the engine capability the
// simulation bridge drives.
package physics

import "math"

// BodyID indexes a body in creation order.
type BodyID int

// BodyKind selects how a body is moved.
type BodyKind int

const (
	// Dynamic bodies are integrated and collide.
	Dynamic BodyKind = iota
	// Kinematic bodies only move through SetPosition and never collide.
	Kinematic
)

// BodySpec describes a body to add. A zero Orientation means identity.
type BodySpec struct {
	Kind        BodyKind
	Radius      float64
	Density     float64
	Position    Vec3
	Orientation Quat
}

// JointSpec links two bodies with a zero-length spring-damper.
type JointSpec struct {
	A, B         BodyID
	Frequency    float64
	DampingRatio float64
}

// ContactFunc is invoked for a body touching other during Step.
type ContactFunc func(self, other BodyID)

// Config tunes the integrator.
type Config struct {
	TimeStep       float64
	Gravity        Vec3
	LinearDamping  float64
	AngularDamping float64
	Restitution    float64
	Friction       float64
}

// DefaultConfig returns a zero-gravity world stepping at 60 Hz.
func DefaultConfig() Config {
	return Config{
		TimeStep:       1.0 / 60.0,
		LinearDamping:  0.01,
		AngularDamping: 0.05,
		Restitution:    0.2,
		Friction:       0.2,
	}
}

const (
	penetrationSlop  = 0.005
	correctionFactor = 0.8
)

type body struct {
	kind        BodyKind
	radius      float64
	mass        float64
	invMass     float64
	invInertia  float64
	position    Vec3
	orientation Quat
	linear      Vec3
	angular     Vec3
	sleeping    bool
	onContact   ContactFunc
}

type joint struct {
	a, b         BodyID
	frequency    float64
	dampingRatio float64
}

type contactPair struct {
	a, b BodyID
}

// World owns every body and joint. It is not safe for concurrent use.
type World struct {
	cfg      Config
	bodies   []*body
	joints   []joint
	contacts []contactPair
}

// NewWorld returns an empty world.
func NewWorld(cfg Config) *World {
	if cfg.TimeStep <= 0 {
		cfg.TimeStep = DefaultConfig().TimeStep
	}
	return &World{cfg: cfg}
}

// AddBody creates a body and returns its id.
func (w *World) AddBody(spec BodySpec) BodyID {
	b := &body{
		kind:        spec.Kind,
		radius:      spec.Radius,
		position:    spec.Position,
		orientation: spec.Orientation,
	}
	if b.orientation == (Quat{}) {
		b.orientation = Identity()
	}
	if spec.Kind == Dynamic {
		density := spec.Density
		if density <= 0 {
			density = 1
		}
		b.mass = density
		if spec.Radius > 0 {
			b.mass = density * 4.0 / 3.0 * math.Pi * spec.Radius * spec.Radius * spec.Radius
			b.invInertia = 5.0 / (2.0 * b.mass * spec.Radius * spec.Radius)
		}
		b.invMass = 1 / b.mass
	}
	w.bodies = append(w.bodies, b)
	return BodyID(len(w.bodies) - 1)
}

// AddSpringJoint links spec.A and spec.B.
func (w *World) AddSpringJoint(spec JointSpec) {
	if w.get(spec.A) == nil || w.get(spec.B) == nil {
		return
	}
	w.joints = append(w.joints, joint{
		a:            spec.A,
		b:            spec.B,
		frequency:    spec.Frequency,
		dampingRatio: spec.DampingRatio,
	})
}

// Len reports the number of bodies.
func (w *World) Len() int { return len(w.bodies) }

func (w *World) get(id BodyID) *body {
	if id < 0 || int(id) >= len(w.bodies) {
		return nil
	}
	return w.bodies[id]
}

func (w *World) Position(id BodyID) Vec3 {
	if b := w.get(id); b != nil {
		return b.position
	}
	return Vec3{}
}

func (w *World) Orientation(id BodyID) Quat {
	if b := w.get(id); b != nil {
		return b.orientation
	}
	return Identity()
}

func (w *World) LinearVelocity(id BodyID) Vec3 {
	if b := w.get(id); b != nil {
		return b.linear
	}
	return Vec3{}
}

func (w *World) AngularVelocity(id BodyID) Vec3 {
	if b := w.get(id); b != nil {
		return b.angular
	}
	return Vec3{}
}

func (w *World) Mass(id BodyID) float64 {
	if b := w.get(id); b != nil {
		return b.mass
	}
	return 0
}

func (w *World) IsSleeping(id BodyID) bool {
	if b := w.get(id); b != nil {
		return b.sleeping
	}
	return false
}

func (w *World) SetPosition(id BodyID, p Vec3) {
	if b := w.get(id); b != nil {
		b.position = p
	}
}

func (w *World) SetOrientation(id BodyID, q Quat) {
	if b := w.get(id); b != nil {
		b.orientation = q.Normalize()
	}
}

func (w *World) SetLinearVelocity(id BodyID, v Vec3) {
	if b := w.get(id); b != nil && b.kind == Dynamic {
		b.linear = v
	}
}

func (w *World) SetAngularVelocity(id BodyID, v Vec3) {
	if b := w.get(id); b != nil && b.kind == Dynamic {
		b.angular = v
	}
}

// ApplyImpulse changes the linear velocity of an awake dynamic body.
func (w *World) ApplyImpulse(id BodyID, impulse Vec3) {
	b := w.get(id)
	if b == nil || b.kind != Dynamic || b.sleeping {
		return
	}
	b.linear = b.linear.AddScaled(impulse, b.invMass)
}

// Sleep freezes a body until WakeUp.
func (w *World) Sleep(id BodyID) {
	if b := w.get(id); b != nil {
		b.sleeping = true
		b.linear = Vec3{}
		b.angular = Vec3{}
	}
}

func (w *World) WakeUp(id BodyID) {
	if b := w.get(id); b != nil {
		b.sleeping = false
	}
}

// SetContactCallback registers fn for contacts involving id.
func (w *World) SetContactCallback(id BodyID, fn ContactFunc) {
	if b := w.get(id); b != nil {
		b.onContact = fn
	}
}

// Step advances the world by one fixed time step.
func (w *World) Step() {
	dt := w.cfg.TimeStep
	w.applyGravity(dt)
	w.solveJoints(dt)
	w.integrate(dt)
	w.collide()
	w.dispatchContacts()
}

func (w *World) awakeDynamic(b *body) bool {
	return b.kind == Dynamic && !b.sleeping
}

func (w *World) applyGravity(dt float64) {
	if w.cfg.Gravity.IsZero() {
		return
	}
	for _, b := range w.bodies {
		if w.awakeDynamic(b) {
			b.linear = b.linear.AddScaled(w.cfg.Gravity, dt)
		}
	}
}

// solveJoints applies an implicit spring-damper impulse so stiff springs stay
// stable at the fixed step.
func (w *World) solveJoints(dt float64) {
	for _, j := range w.joints {
		a, b := w.bodies[j.a], w.bodies[j.b]
		if a.sleeping || b.sleeping {
			continue
		}
		invSum := a.invMass + b.invMass
		if invSum == 0 {
			continue
		}
		omega := 2 * math.Pi * j.frequency
		stiffness := omega * omega
		damping := 2 * j.dampingRatio * omega

		offset := a.position.Sub(b.position)
		relative := a.linear.Sub(b.linear)
		next := relative.AddScaled(offset, -dt*stiffness).Scale(1 / (1 + dt*damping + dt*dt*stiffness))
		impulse := next.Sub(relative).Scale(1 / invSum)

		a.linear = a.linear.AddScaled(impulse, a.invMass)
		b.linear = b.linear.AddScaled(impulse, -b.invMass)
	}
}

func (w *World) integrate(dt float64) {
	linearDecay := 1 / (1 + dt*w.cfg.LinearDamping)
	angularDecay := 1 / (1 + dt*w.cfg.AngularDamping)
	for _, b := range w.bodies {
		if !w.awakeDynamic(b) {
			continue
		}
		b.linear = b.linear.Scale(linearDecay)
		b.angular = b.angular.Scale(angularDecay)
		b.position = b.position.AddScaled(b.linear, dt)
		b.orientation = b.orientation.Integrate(b.angular, dt)
	}
}

func (w *World) collide() {
	w.contacts = w.contacts[:0]
	for i := 0; i < len(w.bodies); i++ {
		a := w.bodies[i]
		if !w.awakeDynamic(a) || a.radius <= 0 {
			continue
		}
		for k := i + 1; k < len(w.bodies); k++ {
			b := w.bodies[k]
			if !w.awakeDynamic(b) || b.radius <= 0 {
				continue
			}
			if w.resolve(a, b) {
				w.contacts = append(w.contacts, contactPair{a: BodyID(i), b: BodyID(k)})
			}
		}
	}
}

// resolve separates two overlapping spheres and applies restitution and
// friction impulses. It reports whether they touched.
func (w *World) resolve(a, b *body) bool {
	delta := b.position.Sub(a.position)
	reach := a.radius + b.radius
	distSq := delta.Dot(delta)
	if distSq >= reach*reach {
		return false
	}
	dist := math.Sqrt(distSq)
	normal := Vec3{X: 1}
	if dist > 0 {
		normal = delta.Scale(1 / dist)
	}
	invSum := a.invMass + b.invMass

	if depth := reach - dist - penetrationSlop; depth > 0 {
		correction := normal.Scale(depth * correctionFactor / invSum)
		a.position = a.position.AddScaled(correction, -a.invMass)
		b.position = b.position.AddScaled(correction, b.invMass)
	}

	armA := normal.Scale(a.radius)
	armB := normal.Scale(-b.radius)
	velocityA := a.linear.Add(a.angular.Cross(armA))
	velocityB := b.linear.Add(b.angular.Cross(armB))
	relative := velocityB.Sub(velocityA)
	approach := relative.Dot(normal)
	if approach >= 0 {
		return true
	}

	j := -(1 + w.cfg.Restitution) * approach / invSum
	a.linear = a.linear.AddScaled(normal, -j*a.invMass)
	b.linear = b.linear.AddScaled(normal, j*b.invMass)

	tangent := relative.Sub(normal.Scale(approach))
	if tangent.Len() < 1e-9 || w.cfg.Friction <= 0 {
		return true
	}
	tangent = tangent.Normalize()
	denom := invSum + a.radius*a.radius*a.invInertia + b.radius*b.radius*b.invInertia
	jt := -relative.Dot(tangent) / denom
	if limit := w.cfg.Friction * j; math.Abs(jt) > limit {
		jt = math.Copysign(limit, jt)
	}
	frictionImpulse := tangent.Scale(jt)
	a.linear = a.linear.AddScaled(frictionImpulse, -a.invMass)
	b.linear = b.linear.AddScaled(frictionImpulse, b.invMass)
	a.angular = a.angular.AddScaled(armA.Cross(frictionImpulse.Neg()), a.invInertia)
	b.angular = b.angular.AddScaled(armB.Cross(frictionImpulse), b.invInertia)
	return true
}

func (w *World) dispatchContacts() {
	for _, pair := range w.contacts {
		if fn := w.bodies[pair.a].onContact; fn != nil {
			fn(pair.a, pair.b)
		}
		if fn := w.bodies[pair.b].onContact; fn != nil {
			fn(pair.b, pair.a)
		}
	}
}
