package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/progress"
	"github.com/abrezinsky/racetrial/internal/route"
)

const (
	defaultTickMS     = 50
	defaultMaxSeconds = 600
)

// Scenario describes one simulated event: the route, the event settings and the
// autopilot-driven participants that join it.
type Scenario struct {
	Name         string            `json:"name"`
	Route        RouteSpec         `json:"route"`
	Event        EventSpec         `json:"event"`
	Timing       TimingSpec        `json:"timing"`
	TickMS       int               `json:"tick_ms"`
	MaxSeconds   float64           `json:"max_seconds"`
	Participants []ParticipantSpec `json:"participants"`
}

// RouteSpec is either an explicit waypoint list or a generated circle.
type RouteSpec struct {
	Name      string      `json:"name"`
	Topology  string      `json:"topology"`
	Smooth    bool        `json:"smooth"`
	Waypoints []geom.Vec3 `json:"waypoints"`
	Circle    *CircleSpec `json:"circle,omitempty"`
}

// CircleSpec generates Points waypoints on a circle.
type CircleSpec struct {
	Points int     `json:"points"`
	Radius float64 `json:"radius"`
}

// EventSpec configures the simulated event.
type EventSpec struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Laps     int    `json:"laps"`
	Capacity int    `json:"capacity"`
}

// TimingSpec overrides event timing. Zero values keep the defaults.
type TimingSpec struct {
	CountdownStepMS    int     `json:"countdown_step_ms"`
	CountdownSteps     int     `json:"countdown_steps"`
	ResolveTimeoutMS   int     `json:"resolve_timeout_ms"`
	StatsDisplayMS     int     `json:"stats_display_ms"`
	ProximityThreshold float64 `json:"proximity_threshold"`
	ProgressStyle      string  `json:"progress_style"`
}

// ParticipantSpec is one autopilot entrant.
type ParticipantSpec struct {
	Name        string     `json:"name"`
	Speed       float64    `json:"speed"`
	JoinAfterMS int        `json:"join_after_ms"`
	Start       *geom.Vec3 `json:"start,omitempty"`
}

// LoadScenario decodes and validates a scenario.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var sc Scenario
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidInput, "decode scenario")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenarioFile reads a scenario from path.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return LoadScenario(f)
}

// Validate checks the scenario and fills in defaults.
func (sc *Scenario) Validate() error {
	if sc.TickMS == 0 {
		sc.TickMS = defaultTickMS
	}
	if sc.MaxSeconds == 0 {
		sc.MaxSeconds = defaultMaxSeconds
	}
	if sc.TickMS < 0 || sc.MaxSeconds < 0 {
		return apperrors.Validation("tick_ms and max_seconds must be positive")
	}
	if sc.Route.Name == "" {
		sc.Route.Name = "Route"
	}
	if sc.Event.Name == "" {
		sc.Event.Name = sc.Name
	}
	if sc.Event.Laps == 0 {
		sc.Event.Laps = 1
	}
	if sc.Event.Capacity == 0 {
		sc.Event.Capacity = len(sc.Participants)
	}
	if _, err := event.ParseKind(sc.Event.Kind); err != nil {
		return err
	}
	if _, err := sc.circuit(); err != nil {
		return err
	}
	switch progress.Style(sc.Timing.ProgressStyle) {
	case "", progress.Smooth, progress.Point:
	default:
		return apperrors.Validationf("unknown progress_style %q", sc.Timing.ProgressStyle)
	}
	if len(sc.Participants) == 0 {
		return apperrors.Validation("scenario has no participants")
	}
	for i, p := range sc.Participants {
		if strings.TrimSpace(p.Name) == "" {
			return apperrors.Validationf("participant %d has no name", i+1)
		}
		if p.Speed < 0 || p.JoinAfterMS < 0 {
			return apperrors.Validationf("participant %s: speed and join_after_ms must not be negative", p.Name)
		}
	}
	return nil
}

func (sc *Scenario) circuit() (*route.Circuit, error) {
	topo, err := route.ParseTopology(sc.Route.Topology)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation, "invalid route topology")
	}
	points := sc.Route.Waypoints
	if c := sc.Route.Circle; c != nil {
		if c.Points < 2 || c.Radius <= 0 {
			return nil, apperrors.Validation("circle needs at least 2 points and a positive radius")
		}
		points = geom.Circle(c.Points, c.Radius)
	}
	circuit, err := route.NewCircuit(sc.Route.Name, topo, points, sc.Route.Smooth)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation, "invalid route")
	}
	return circuit, nil
}

func (sc *Scenario) eventConfig() event.Config {
	cfg := event.DefaultConfig()
	t := sc.Timing
	if t.CountdownStepMS > 0 {
		cfg.CountdownStep = time.Duration(t.CountdownStepMS) * time.Millisecond
	}
	if t.CountdownSteps > 0 {
		cfg.CountdownSteps = t.CountdownSteps
	}
	if t.ResolveTimeoutMS > 0 {
		cfg.ResolveTimeout = time.Duration(t.ResolveTimeoutMS) * time.Millisecond
	}
	if t.StatsDisplayMS > 0 {
		cfg.StatsDisplay = time.Duration(t.StatsDisplayMS) * time.Millisecond
	}
	if t.ProximityThreshold > 0 {
		cfg.Tracker.PointThreshold = t.ProximityThreshold
	}
	if t.ProgressStyle != "" {
		cfg.Tracker.Style = progress.Style(t.ProgressStyle)
	}
	return cfg
}
