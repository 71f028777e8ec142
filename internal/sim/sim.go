// Package sim runs scenarios headlessly: autopilots drive participants around a route
// through a real event state machine on a manual clock.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/abrezinsky/racetrial/internal/clock"
	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/participant"
	"github.com/abrezinsky/racetrial/internal/progress"
)

// Epoch is the manual clock's start time for every run.
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// Report is the outcome of a run.
type Report struct {
	Scenario    string             `json:"scenario"`
	Event       string             `json:"event"`
	Kind        event.Kind         `json:"kind"`
	Route       string             `json:"route"`
	RouteLength float64            `json:"route_length"`
	Laps        int                `json:"laps"`
	Completions []event.Completion `json:"completions"`
	Countdown   []string           `json:"countdown"`
	JoinErrors  map[string]string  `json:"join_errors,omitempty"`
	Unfinished  []Standing         `json:"unfinished,omitempty"`
	Ticks       int                `json:"ticks"`
	Elapsed     time.Duration      `json:"elapsed_ns"`
	TimedOut    bool               `json:"timed_out"`
}

// Standing is where an unfinished participant got to.
type Standing struct {
	Name     string         `json:"name"`
	Progress progress.State `json:"progress"`
}

type entrant struct {
	spec    ParticipantSpec
	pilot   *participant.Autopilot
	joined  bool
	pending bool
}

// recorder keeps the countdown labels the event shows.
type recorder struct {
	event.NopDisplay
	mu     sync.Mutex
	labels []string
}

func (r *recorder) ShowCountdown(_ string, text string, _ time.Duration) {
	r.mu.Lock()
	r.labels = append(r.labels, text)
	r.mu.Unlock()
}

// Run plays sc to completion or until its time limit. A run ends once every entrant has
// tried to join and the event has gone back to inactive.
func Run(ctx context.Context, sc *Scenario, log logger.Logger) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	circuit, err := sc.circuit()
	if err != nil {
		return nil, err
	}
	kind, err := event.ParseKind(sc.Event.Kind)
	if err != nil {
		return nil, err
	}

	clk := clock.NewManual(Epoch)
	display := &recorder{}
	ev := event.New("sim", sc.Event.Name, kind, sc.eventConfig(), clk, display, log)
	var completions []event.Completion
	ev.OnComplete(func(c event.Completion) {
		completions = append(completions, c)
	})

	entrants := make([]*entrant, len(sc.Participants))
	for i, spec := range sc.Participants {
		start := circuit.WaypointAt(0).Position
		if spec.Start != nil {
			start = *spec.Start
		}
		v := participant.NewVehicle(spec.Name, start)
		src := participant.TargetSourceFunc(func() (geom.Vec3, bool) {
			return ev.Target(v.ID())
		})
		entrants[i] = &entrant{spec: spec, pilot: participant.NewAutopilot(v, src, spec.Speed), pending: true}
	}

	report := &Report{
		Scenario:    sc.Name,
		Event:       sc.Event.Name,
		Kind:        kind,
		Route:       circuit.Name(),
		RouteLength: circuit.Length(),
		Laps:        sc.Event.Laps,
		JoinErrors:  map[string]string{},
	}

	dt := time.Duration(sc.TickMS) * time.Millisecond
	limit := time.Duration(sc.MaxSeconds * float64(time.Second))
	started := false

	for {
		if report.Ticks%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		elapsed := clk.Now().Sub(Epoch)
		pending := 0
		for _, en := range entrants {
			if !en.pending {
				continue
			}
			if elapsed < time.Duration(en.spec.JoinAfterMS)*time.Millisecond {
				pending++
				continue
			}
			en.pending = false
			if err := ev.Join(en.pilot.Vehicle(), circuit, sc.Event.Laps, sc.Event.Capacity); err != nil {
				report.JoinErrors[en.spec.Name] = err.Error()
				log.Info("Join rejected", "participant", en.spec.Name, "error", err)
				continue
			}
			en.joined = true
			started = true
		}

		if ev.State() == event.Inactive && pending == 0 && (started || len(report.JoinErrors) == len(entrants)) {
			break
		}
		if elapsed >= limit {
			report.TimedOut = true
			break
		}

		for _, en := range entrants {
			en.pilot.Step(dt)
		}
		clk.Advance(dt)
		ev.Tick(dt)
		report.Ticks++
	}

	report.Elapsed = clk.Now().Sub(Epoch)
	report.Completions = completions
	if report.TimedOut {
		for _, en := range entrants {
			if !en.joined {
				continue
			}
			id := en.pilot.Vehicle().ID()
			if finished(report.Completions, id) {
				continue
			}
			st, _ := ev.Progress(id)
			report.Unfinished = append(report.Unfinished, Standing{Name: en.spec.Name, Progress: st})
		}
	}
	display.mu.Lock()
	report.Countdown = append([]string(nil), display.labels...)
	display.mu.Unlock()
	if len(report.JoinErrors) == 0 {
		report.JoinErrors = nil
	}

	log.Info("Simulation finished", "scenario", sc.Name, "ticks", report.Ticks,
		"completions", len(report.Completions), "timed_out", report.TimedOut)
	return report, nil
}

func finished(completions []event.Completion, id string) bool {
	for _, c := range completions {
		if c.ParticipantID == id {
			return true
		}
	}
	return false
}
