package sim

import "github.com/pschroen/multiuser-balls/internal/physics"

// Engine is the physics capability the bridge drives. *physics.World
// satisfies it; tests substitute recording fakes.
type Engine interface {
	AddBody(physics.BodySpec) physics.BodyID
	AddSpringJoint(physics.JointSpec)

	Position(physics.BodyID) physics.Vec3
	Orientation(physics.BodyID) physics.Quat
	LinearVelocity(physics.BodyID) physics.Vec3
	Mass(physics.BodyID) float64
	IsSleeping(physics.BodyID) bool

	SetPosition(physics.BodyID, physics.Vec3)
	SetOrientation(physics.BodyID, physics.Quat)
	SetLinearVelocity(physics.BodyID, physics.Vec3)
	SetAngularVelocity(physics.BodyID, physics.Vec3)
	ApplyImpulse(physics.BodyID, physics.Vec3)

	Sleep(physics.BodyID)
	WakeUp(physics.BodyID)

	SetContactCallback(physics.BodyID, physics.ContactFunc)
	Step()
}

var _ Engine = (*physics.World)(nil)
