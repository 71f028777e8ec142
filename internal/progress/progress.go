// Package progress tracks a participant's advancement along a route and detects lap and
// event completion.
//
// A Tracker is owned by exactly one participant and is not safe for concurrent use; the
// event that owns it serializes access.
package progress

import (
	"time"

	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/route"
)

// Style selects how the tracker advances along the route.
type Style string

const (
	// Smooth follows a continuous lookahead point along the route.
	Smooth Style = "smooth"
	// Point hops from waypoint to waypoint.
	Point Style = "point"
)

// Config tunes a Tracker.
type Config struct {
	Style Style
	// TargetOffset and TargetFactor place the steering target ahead of the current progress:
	// progress + TargetOffset + TargetFactor*speed.
	TargetOffset float64
	TargetFactor float64
	// SpeedOffset and SpeedFactor place the second lookahead used for orientation:
	// progress + SpeedOffset + SpeedFactor*orientationScale. It does not vary with speed.
	SpeedOffset float64
	SpeedFactor float64
	// PointThreshold is the proximity (metres) at which a waypoint counts as reached.
	PointThreshold float64
	// ProgressDamping scales how much of an overshoot is added to progress in smooth mode.
	ProgressDamping float64
}

// DefaultConfig returns the standard tracker tuning.
func DefaultConfig() Config {
	return Config{
		Style:           Smooth,
		TargetOffset:    5,
		TargetFactor:    0.1,
		SpeedOffset:     10,
		SpeedFactor:     0.2,
		PointThreshold:  4,
		ProgressDamping: 0.5,
	}
}

// orientationScale is the fixed multiplier applied to SpeedFactor for the orientation lookahead.
const orientationScale = 0.2

// Participant is the read-only view of a participant the tracker needs.
type Participant interface {
	Position() geom.Vec3
	IsPaused() bool
}

// Target is the steering aim point.
type Target struct {
	Position geom.Vec3 `json:"position"`
	Forward  geom.Vec3 `json:"forward"`
}

// State is a snapshot of a participant's progress.
type State struct {
	ProgressDistance    float64 `json:"progress_distance"`
	ProgressIndex       int     `json:"progress_index"`
	Target              Target  `json:"target"`
	Speed               float64 `json:"speed"`
	CurrentLap          int     `json:"current_lap"`
	NumberOfLaps        int     `json:"number_of_laps"`
	HalfPointReached    bool    `json:"half_point_reached"`
	TargetWaypointIndex int     `json:"target_waypoint_index"`
	Reversed            bool    `json:"reversed"`
	LastIndex           int     `json:"last_index"`
}

func defaultState() State {
	return State{CurrentLap: 1}
}

// Outcome reports what a tick detected.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeHalfPoint
	OutcomeLapCompleted
	OutcomeEventCompleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHalfPoint:
		return "half_point"
	case OutcomeLapCompleted:
		return "lap_completed"
	case OutcomeEventCompleted:
		return "event_completed"
	default:
		return "none"
	}
}

// Tracker maintains one participant's progress state.
type Tracker struct {
	cfg          Config
	participant  Participant
	route        route.Provider
	state        State
	lastPosition geom.Vec3
}

// New creates a tracker for participant. The tracker is idle until Assign is called.
func New(cfg Config, participant Participant) *Tracker {
	return &Tracker{
		cfg:         cfg,
		participant: participant,
		state:       defaultState(),
	}
}

// Assign installs the route and lap target. Any previous progress is discarded.
func (t *Tracker) Assign(r route.Provider, laps int) {
	t.Reset()
	t.route = r
	t.state.NumberOfLaps = laps
	t.state.LastIndex = r.WaypointCount() - 1
	t.state.TargetWaypointIndex = t.state.LastIndex
	t.lastPosition = t.participant.Position()

	if t.cfg.Style == Point {
		wp := r.WaypointAt(0)
		t.state.Target = Target{Position: wp.Position, Forward: wp.Forward}
		return
	}
	ahead := t.routePoint(t.cfg.TargetOffset)
	t.state.Target = Target{Position: ahead.Position, Forward: ahead.Direction}
}

// Reset clears the progress state to defaults and drops the route reference.
func (t *Tracker) Reset() {
	t.state = defaultState()
	t.route = nil
	t.lastPosition = geom.Vec3{}
}

// State returns a copy of the current progress state.
func (t *Tracker) State() State { return t.state }

// Target returns the current steering target.
func (t *Tracker) Target() Target { return t.state.Target }

// Route returns the assigned route, or nil when idle.
func (t *Tracker) Route() route.Provider { return t.route }

// Tick advances the tracker by one simulation step.
func (t *Tracker) Tick(dt time.Duration) Outcome {
	if t.route == nil || t.state.NumberOfLaps == 0 || t.participant.IsPaused() {
		return OutcomeNone
	}

	pos := t.participant.Position()
	outcome := OutcomeNone
	lapDone := false

	if o, fired := t.checkCompletion(pos); fired {
		if o == OutcomeEventCompleted {
			return o
		}
		outcome, lapDone = o, true
	}

	switch t.cfg.Style {
	case Point:
		if t.advancePoint(pos) && !lapDone {
			if o, fired := t.checkCompletion(pos); fired {
				if o == OutcomeEventCompleted {
					return o
				}
				outcome, lapDone = o, true
			}
		}
	default:
		t.advanceSmooth(pos, dt)
	}

	if !lapDone && t.checkHalfPoint(pos) {
		outcome = OutcomeHalfPoint
	}
	return outcome
}

func (t *Tracker) advanceSmooth(pos geom.Vec3, dt time.Duration) {
	s := &t.state
	ahead := t.routePoint(s.ProgressDistance + t.cfg.TargetOffset + t.cfg.TargetFactor*s.Speed)
	orient := t.routePoint(s.ProgressDistance + t.cfg.SpeedOffset + t.cfg.SpeedFactor*orientationScale)
	s.Target = Target{Position: ahead.Position, Forward: orient.Direction}

	t.advanceProgress(pos, t.cfg.ProgressDamping)

	if secs := dt.Seconds(); secs > 0 {
		instant := t.lastPosition.Distance(pos) / secs
		s.Speed = geom.Lerp(s.Speed, instant, secs)
	}
	t.lastPosition = pos
}

// advancePoint steps to the next waypoint when the current one is reached. It reports
// whether the waypoint index moved.
func (t *Tracker) advancePoint(pos geom.Vec3) bool {
	s := &t.state
	n := t.route.WaypointCount()
	moved := false
	if pos.Distance(t.route.WaypointAt(s.ProgressIndex).Position) < t.cfg.PointThreshold {
		step := 1
		if s.Reversed {
			step = -1
		}
		s.ProgressIndex = ((s.ProgressIndex+step)%n + n) % n
		moved = true
	}

	wp := t.route.WaypointAt(s.ProgressIndex)
	fwd := wp.Forward
	if s.Reversed {
		fwd = fwd.Scale(-1)
	}
	s.Target = Target{Position: wp.Position, Forward: fwd}

	t.advanceProgress(pos, 1)
	t.lastPosition = pos
	return moved
}

// advanceProgress moves the progress distance forward when the participant has passed
// the tracked route point. It never decreases progress.
func (t *Tracker) advanceProgress(pos geom.Vec3, damping float64) {
	ref := t.routePoint(t.state.ProgressDistance)
	along := ref.Position.Sub(pos).Dot(ref.Direction)
	if along < 0 {
		t.state.ProgressDistance += -along * damping
	}
}

// routePoint resolves a progress distance to a route point. On the return leg of a
// linear route distance is measured from the far end and direction is inverted.
func (t *Tracker) routePoint(d float64) route.RoutePoint {
	if !t.state.Reversed {
		return t.route.PointAtDistance(d)
	}
	p := t.route.PointAtDistance(t.route.Length() - d)
	p.Direction = p.Direction.Scale(-1)
	return p
}

func (t *Tracker) checkCompletion(pos geom.Vec3) (Outcome, bool) {
	s := &t.state
	switch t.route.Topology() {
	case route.Linear:
		if t.reached(pos, s.TargetWaypointIndex) {
			return t.completeLap(), true
		}
	case route.Looped:
		if s.HalfPointReached && t.reached(pos, s.LastIndex) {
			return t.completeLap(), true
		}
	}
	return OutcomeNone, false
}

func (t *Tracker) checkHalfPoint(pos geom.Vec3) bool {
	s := &t.state
	if t.route.Topology() != route.Looped || s.HalfPointReached {
		return false
	}
	if t.reached(pos, route.MidIndex(s.LastIndex)) {
		s.HalfPointReached = true
		return true
	}
	return false
}

func (t *Tracker) reached(pos geom.Vec3, index int) bool {
	return pos.Distance(t.route.WaypointAt(index).Position) < t.cfg.PointThreshold
}

// completeLap either starts the next lap or finishes the event and resets the tracker.
func (t *Tracker) completeLap() Outcome {
	s := &t.state
	if s.CurrentLap < s.NumberOfLaps {
		if t.route.Topology() == route.Linear {
			// The next lap heads for the far endpoint: LastIndex on the way out, 0 on the way
			// back. On a two waypoint route this is the 0,1,0,1 alternation.
			if s.TargetWaypointIndex == 0 {
				s.TargetWaypointIndex = s.LastIndex
			} else {
				s.TargetWaypointIndex = 0
			}
			s.Reversed = !s.Reversed
			s.ProgressDistance = 0
			s.Target.Forward = s.Target.Forward.RotateAroundUp(180)
		}
		s.HalfPointReached = false
		s.CurrentLap++
		return OutcomeLapCompleted
	}

	s.Speed = 0
	t.Reset()
	return OutcomeEventCompleted
}
