// Package route implements the waypoint circuit every participant follows.
//
// A Circuit answers two kinds of queries: "where is the route at distance d" (used
// by continuous tracking) and "where is waypoint i" (used by point-to-point tracking and
// by lap completion). Queries never fail: looped circuits wrap, linear circuits clamp.
package route

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/abrezinsky/racetrial/internal/geom"
)

// Topology selects which completion rules apply to a route.
type Topology string

const (
	// Linear routes are out-and-back: each lap runs to one end and the next lap returns.
	Linear Topology = "linear"
	// Looped routes return to their start; the finish waypoint is the last one.
	Looped Topology = "looped"
)

// directionProbe is how far ahead (metres) PointAtDistance samples to derive a direction.
const directionProbe = 0.1

var (
	// ErrNoWaypoints is returned when a circuit is built without any waypoints.
	ErrNoWaypoints = errors.New("route has no waypoints")
	// ErrUnknownTopology is returned by ParseTopology for unsupported values.
	ErrUnknownTopology = errors.New("unknown route topology")
)

// ParseTopology converts a user supplied topology name.
func ParseTopology(s string) (Topology, error) {
	switch Topology(strings.ToLower(strings.TrimSpace(s))) {
	case Linear:
		return Linear, nil
	case Looped:
		return Looped, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTopology, s)
	}
}

// Waypoint is a fixed marker on the route.
type Waypoint struct {
	Position geom.Vec3 `json:"position"`
	Forward  geom.Vec3 `json:"forward"`
}

// RoutePoint is an interpolated point on the route.
type RoutePoint struct {
	Position  geom.Vec3 `json:"position"`
	Direction geom.Vec3 `json:"direction"`
}

// Provider is the read-only geometry contract the progress tracker depends on.
type Provider interface {
	PointAtDistance(d float64) RoutePoint
	WaypointAt(i int) Waypoint
	WaypointCount() int
	Topology() Topology
	Length() float64
}

// Circuit is an immutable route built from an ordered list of waypoints.
type Circuit struct {
	name      string
	topology  Topology
	smooth    bool
	waypoints []Waypoint
	// distances[i] is the route distance at waypoint i. Looped circuits carry one extra
	// entry for the closing segment back to waypoint 0.
	distances []float64
	length    float64
}

var _ Provider = (*Circuit)(nil)

// NewCircuit builds a circuit. Smooth circuits interpolate with a Catmull-Rom spline
// through the waypoints; otherwise positions are interpolated linearly.
func NewCircuit(name string, topology Topology, positions []geom.Vec3, smooth bool) (*Circuit, error) {
	if len(positions) == 0 {
		return nil, ErrNoWaypoints
	}
	if topology != Linear && topology != Looped {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopology, topology)
	}

	n := len(positions)
	c := &Circuit{
		name:      name,
		topology:  topology,
		smooth:    smooth,
		waypoints: make([]Waypoint, n),
	}

	for i, p := range positions {
		c.waypoints[i] = Waypoint{Position: p, Forward: c.forwardAt(positions, i)}
	}

	segments := n - 1
	if topology == Looped {
		segments = n
	}
	c.distances = make([]float64, segments+1)
	for i := 0; i < segments; i++ {
		a := positions[i]
		b := positions[(i+1)%n]
		c.distances[i+1] = c.distances[i] + a.Distance(b)
	}
	c.length = c.distances[segments]

	return c, nil
}

func (c *Circuit) forwardAt(positions []geom.Vec3, i int) geom.Vec3 {
	n := len(positions)
	var dir geom.Vec3
	switch {
	case n == 1:
		return geom.Forward
	case c.topology == Looped:
		dir = positions[(i+1)%n].Sub(positions[i])
	case i < n-1:
		dir = positions[i+1].Sub(positions[i])
	default:
		dir = positions[i].Sub(positions[i-1])
	}
	if dir.IsZero() {
		return geom.Forward
	}
	return dir.Normalize()
}

// Name returns the circuit name.
func (c *Circuit) Name() string { return c.name }

// Topology returns the route topology.
func (c *Circuit) Topology() Topology { return c.topology }

// Smooth reports whether spline interpolation is used.
func (c *Circuit) Smooth() bool { return c.smooth }

// Length returns the total route length in metres. Looped routes include the closing segment.
func (c *Circuit) Length() float64 { return c.length }

// WaypointCount returns the number of waypoints.
func (c *Circuit) WaypointCount() int { return len(c.waypoints) }

// LastIndex returns the index of the finish waypoint.
func (c *Circuit) LastIndex() int { return len(c.waypoints) - 1 }

// MidIndex returns the index of the half-way waypoint used by the looped half-point guard.
func (c *Circuit) MidIndex() int { return MidIndex(c.LastIndex()) }

// MidIndex rounds half of lastIndex up, so a 10 waypoint loop uses waypoint 5.
// Rounding down (lastIndex/2) would pick waypoint 4 and let a lap count after covering
// less than half the loop.
func MidIndex(lastIndex int) int { return (lastIndex + 1) / 2 }

// Waypoints returns a copy of the waypoint list.
func (c *Circuit) Waypoints() []Waypoint {
	out := make([]Waypoint, len(c.waypoints))
	copy(out, c.waypoints)
	return out
}

// WaypointAt returns waypoint i, wrapping out-of-range indexes.
func (c *Circuit) WaypointAt(i int) Waypoint {
	n := len(c.waypoints)
	return c.waypoints[((i%n)+n)%n]
}

// PointAtDistance returns the route point d metres from the start.
func (c *Circuit) PointAtDistance(d float64) RoutePoint {
	if len(c.waypoints) == 1 || c.length == 0 {
		w := c.waypoints[0]
		return RoutePoint{Position: w.Position, Direction: w.Forward}
	}

	d = c.normalize(d)
	pos := c.positionAt(d)

	var dir geom.Vec3
	if c.topology == Linear && d+directionProbe > c.length {
		dir = pos.Sub(c.positionAt(d - directionProbe))
	} else {
		dir = c.positionAt(c.normalize(d + directionProbe)).Sub(pos)
	}
	if dir.IsZero() {
		dir = c.waypoints[c.segmentAt(d)].Forward
	}
	return RoutePoint{Position: pos, Direction: dir.Normalize()}
}

// normalize wraps (looped) or clamps (linear) a distance onto the route.
func (c *Circuit) normalize(d float64) float64 {
	if c.topology == Looped {
		d = math.Mod(d, c.length)
		if d < 0 {
			d += c.length
		}
		return d
	}
	return math.Max(0, math.Min(d, c.length))
}

// segmentAt returns the index of the segment containing normalized distance d.
func (c *Circuit) segmentAt(d float64) int {
	last := len(c.distances) - 2
	i := sort.SearchFloat64s(c.distances, d)
	// SearchFloat64s returns the first index with distances[i] >= d.
	if i > 0 && (i > last || c.distances[i] > d) {
		i--
	}
	if i > last {
		i = last
	}
	return i
}

func (c *Circuit) positionAt(d float64) geom.Vec3 {
	i := c.segmentAt(d)
	segLen := c.distances[i+1] - c.distances[i]
	t := 0.0
	if segLen > 0 {
		t = (d - c.distances[i]) / segLen
	}

	p1 := c.waypoints[i].Position
	p2 := c.neighbour(i + 1)
	if !c.smooth {
		return geom.LerpVec(p1, p2, t)
	}
	return geom.CatmullRom(c.neighbour(i-1), p1, p2, c.neighbour(i+2), t)
}

// neighbour returns waypoint i, wrapping on looped routes and clamping on linear ones.
func (c *Circuit) neighbour(i int) geom.Vec3 {
	n := len(c.waypoints)
	if c.topology == Looped {
		return c.waypoints[((i%n)+n)%n].Position
	}
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return c.waypoints[i].Position
}
