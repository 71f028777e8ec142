package participant

import (
	"time"

	"github.com/abrezinsky/racetrial/internal/geom"
)

// TargetSource supplies the point an Autopilot steers towards.
type TargetSource interface {
	TargetPosition() (geom.Vec3, bool)
}

// TargetSourceFunc adapts a function to TargetSource.
type TargetSourceFunc func() (geom.Vec3, bool)

func (f TargetSourceFunc) TargetPosition() (geom.Vec3, bool) { return f() }

// Autopilot drives a Vehicle towards a moving target at constant speed.
type Autopilot struct {
	vehicle *Vehicle
	source  TargetSource
	speed   float64
}

// NewAutopilot creates an autopilot moving v at speed metres per second.
func NewAutopilot(v *Vehicle, source TargetSource, speed float64) *Autopilot {
	return &Autopilot{vehicle: v, source: source, speed: speed}
}

// Vehicle returns the driven vehicle.
func (a *Autopilot) Vehicle() *Vehicle { return a.vehicle }

// Step moves the vehicle for dt. It never overshoots the target and does nothing when
// the source has no target or the vehicle is paused.
func (a *Autopilot) Step(dt time.Duration) {
	target, ok := a.source.TargetPosition()
	if !ok || a.vehicle.IsPaused() {
		return
	}
	delta := target.Sub(a.vehicle.Position())
	dist := delta.Len()
	if dist == 0 {
		return
	}
	step := a.speed * dt.Seconds()
	if step > dist {
		step = dist
	}
	a.vehicle.Move(delta.Scale(step / dist))
}
