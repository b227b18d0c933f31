package sim

import (
	"time"

	"github.com/pschroen/multiuser-balls/internal/physics"
)

// Contact is one emitted collision cue for a free body.
type Contact struct {
	Ball  int
	Force float32
}

// ContactDetector turns raw physics contacts on one body into rate-limited
// contact events. The zero value never fires; use NewContactDetector.
type ContactDetector struct {
	damping    float64
	threshold  float64
	refractory time.Duration

	accumulated physics.Vec3
	quietUntil  time.Time
}

// NewContactDetector returns a detector with the given tuning.
func NewContactDetector(damping, threshold float64, refractory time.Duration) ContactDetector {
	return ContactDetector{damping: damping, threshold: threshold, refractory: refractory}
}

// Observe folds one contact with a body moving at velocity with mass into the
// damped impulse signal. It returns the signal magnitude and true when the
// signal crosses the threshold outside the refractory window.
func (d *ContactDetector) Observe(now time.Time, velocity physics.Vec3, mass float64) (float64, bool) {
	if now.Before(d.quietUntil) {
		return 0, false
	}
	d.accumulated = d.accumulated.AddScaled(velocity, mass).Scale(d.damping)
	force := d.accumulated.Len()
	d.accumulated = physics.Vec3{}
	if d.threshold <= 0 || force <= d.threshold {
		return force, false
	}
	d.quietUntil = now.Add(d.refractory)
	return force, true
}
