// Package event runs the lifecycle of a single timed event: formation, countdown,
// timing, completion and the resolution window before reset.
//
// All timing is read from the injected clock and every transition happens inside Tick,
// so an Event can be driven deterministically by a manual clock.
package event

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/abrezinsky/racetrial/internal/clock"
	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/participant"
	"github.com/abrezinsky/racetrial/internal/progress"
	"github.com/abrezinsky/racetrial/internal/route"
)

// Kind is the type of event.
type Kind string

const (
	TimeTrial Kind = "time_trial"
	Race      Kind = "race"
)

// ParseKind converts a user supplied event kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case TimeTrial, Race:
		return Kind(s), nil
	}
	return "", apperrors.Validationf("unknown event kind %q", s)
}

// Mode returns the participant mode used while competing in this kind of event.
func (k Kind) Mode() participant.Mode {
	if k == TimeTrial {
		return participant.TimeTrialing
	}
	return participant.Racing
}

// State is the lifecycle state of an event.
type State string

const (
	Inactive   State = "inactive"
	Forming    State = "forming"
	InProgress State = "in_progress"
)

// Display receives the event's user facing output. Implementations must not block.
type Display interface {
	ShowTimeAndLap(eventID, participantID, timeText, lapText string)
	ShowCountdown(eventID, text string, d time.Duration)
	Hide(eventID string)
	ShowState(s Snapshot)
}

// NopDisplay discards all output.
type NopDisplay struct{}

func (NopDisplay) ShowTimeAndLap(string, string, string, string) {}
func (NopDisplay) ShowCountdown(string, string, time.Duration)   {}
func (NopDisplay) Hide(string)                                   {}
func (NopDisplay) ShowState(Snapshot)                            {}

// Config holds event timing.
type Config struct {
	CountdownStep  time.Duration
	CountdownSteps int
	ResolveTimeout time.Duration
	StatsDisplay   time.Duration
	Tracker        progress.Config
}

// DefaultConfig returns the standard event timing.
func DefaultConfig() Config {
	return Config{
		CountdownStep:  time.Second,
		CountdownSteps: 4,
		ResolveTimeout: 5 * time.Second,
		StatsDisplay:   3 * time.Second,
		Tracker:        progress.DefaultConfig(),
	}
}

// Completion records one participant finishing an event.
type Completion struct {
	EventID         string        `json:"event_id"`
	EventName       string        `json:"event_name"`
	Kind            Kind          `json:"kind"`
	RouteName       string        `json:"route_name"`
	ParticipantID   string        `json:"participant_id"`
	ParticipantName string        `json:"participant_name"`
	Laps            int           `json:"laps"`
	Place           int           `json:"place"`
	Duration        time.Duration `json:"duration_ns"`
	FinishedAt      time.Time     `json:"finished_at"`
}

type entry struct {
	p       participant.Controller
	tracker *progress.Tracker
	done    bool
}

// Event is one event instance. It is safe for concurrent use: joins and leaves may
// arrive while the engine is ticking.
type Event struct {
	mu      sync.Mutex
	id      string
	name    string
	kind    Kind
	cfg     Config
	clock   clock.Clock
	display Display
	log     logger.Logger

	state     State
	resolving bool
	route     route.Provider
	laps      int
	capacity  int
	entries   []*entry
	completed []Completion

	countdownStart time.Time
	countdownShown int
	phaseDeadline  time.Time
	startTime      time.Time
	duration       time.Duration

	onComplete func(Completion)
}

// New creates an inactive event.
func New(id, name string, kind Kind, cfg Config, clk clock.Clock, display Display, log logger.Logger) *Event {
	if display == nil {
		display = NopDisplay{}
	}
	return &Event{
		id:      id,
		name:    name,
		kind:    kind,
		cfg:     cfg,
		clock:   clk,
		display: display,
		log:     log.With("event", id),
		state:   Inactive,
	}
}

func (e *Event) ID() string   { return e.id }
func (e *Event) Name() string { return e.name }
func (e *Event) Kind() Kind   { return e.kind }

// OnComplete registers fn to be called for every participant completion. fn runs while
// the event is locked and must not call back into the event.
func (e *Event) OnComplete(fn func(Completion)) {
	e.mu.Lock()
	e.onComplete = fn
	e.mu.Unlock()
}

// SetConfig replaces the timing used by the next formation. It only applies while the
// event is Inactive and reports whether cfg was installed; a formed event keeps the
// timing it started with.
func (e *Event) SetConfig(cfg Config) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Inactive {
		return false
	}
	e.cfg = cfg
	return true
}

// State returns the lifecycle state.
func (e *Event) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Resolving reports whether the event is in its post-completion display window.
func (e *Event) Resolving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolving
}

// Completed returns the completions recorded so far in finishing order.
func (e *Event) Completed() []Completion {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Completion, len(e.completed))
	copy(out, e.completed)
	return out
}

// Progress returns a participant's progress state.
func (e *Event) Progress(participantID string) (progress.State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if en := e.find(participantID); en != nil {
		return en.tracker.State(), true
	}
	return progress.State{}, false
}

// Target returns the steering target for a participant still on course.
func (e *Event) Target(participantID string) (geom.Vec3, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en := e.find(participantID)
	if en == nil || en.done || en.tracker.Route() == nil {
		return geom.Vec3{}, false
	}
	return en.tracker.Target().Position, true
}

// Join adds p to the event. The first join forms the event and starts the countdown;
// further joins are accepted only for races that are still forming on the same route.
// A rejected join leaves both the event and the participant untouched.
func (e *Event) Join(p participant.Controller, r route.Provider, laps, capacity int) error {
	if laps < 1 {
		return apperrors.Validationf("lap count must be at least 1, got %d", laps)
	}
	if r == nil || r.WaypointCount() < 1 {
		return apperrors.Validation("route has no waypoints")
	}
	if capacity < 1 {
		return apperrors.Validationf("capacity must be at least 1, got %d", capacity)
	}
	if e.kind == TimeTrial {
		capacity = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if id := p.EventID(); id != "" {
		return apperrors.Conflictf("participant %s is already in event %s", p.ID(), id)
	}

	switch e.state {
	case InProgress:
		if e.resolving {
			return apperrors.Conflictf("event %s is resolving", e.id)
		}
		return apperrors.Conflictf("event %s is already in progress", e.id)
	case Forming:
		if r != e.route {
			return apperrors.Conflictf("event %s is forming on a different route", e.id)
		}
		if laps != e.laps {
			return apperrors.Conflictf("event %s is forming with %d laps", e.id, e.laps)
		}
		if len(e.entries) >= e.capacity {
			return apperrors.Conflictf("event %s is full (%d/%d)", e.id, len(e.entries), e.capacity)
		}
		e.addParticipant(p)
		e.log.Info("Participant joined", "participant", p.ID(), "count", len(e.entries))
	default:
		e.form(p, r, laps, capacity)
	}

	e.display.ShowState(e.snapshotLocked())
	return nil
}

// form moves an inactive event to forming.
func (e *Event) form(p participant.Controller, r route.Provider, laps, capacity int) {
	now := e.clock.Now()
	e.route = r
	e.laps = laps
	e.capacity = capacity
	e.state = Forming
	e.countdownStart = now
	e.countdownShown = 0
	e.phaseDeadline = now.Add(time.Duration(e.cfg.CountdownSteps) * e.cfg.CountdownStep)
	e.addParticipant(p)

	e.log.Info("Event forming", "participant", p.ID(), "laps", laps, "capacity", capacity)
	e.advanceCountdown(now)
}

func (e *Event) addParticipant(p participant.Controller) {
	p.Pause()
	p.SetMode(e.kind.Mode())
	p.SetEventID(e.id)
	p.SetCompletionStatus(participant.StatusCompeting)

	tr := progress.New(e.cfg.Tracker, p)
	tr.Assign(e.route, e.laps)
	e.entries = append(e.entries, &entry{p: p, tracker: tr})
}

// Leave removes a participant. An event left without participants returns to inactive.
func (e *Event) Leave(participantID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, en := range e.entries {
		if en.p.ID() == participantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperrors.NotFoundf("participant %s is not in event %s", participantID, e.id)
	}

	en := e.entries[idx]
	e.entries = append(e.entries[:idx], e.entries[idx+1:]...)
	release(en)
	e.log.Info("Participant left", "participant", participantID, "remaining", len(e.entries))

	switch {
	case len(e.entries) == 0:
		e.display.Hide(e.id)
		e.reset()
	case e.state == InProgress && !e.resolving && e.allCompleted():
		e.beginResolution(e.clock.Now())
	}
	e.display.ShowState(e.snapshotLocked())
	return nil
}

// Tick advances the event by one simulation step.
func (e *Event) Tick(dt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Forming:
		now := e.clock.Now()
		e.advanceCountdown(now)
		if !now.Before(e.phaseDeadline) {
			e.start(now)
		}
	case InProgress:
		now := e.clock.Now()
		if e.resolving {
			if !now.Before(e.phaseDeadline) {
				e.teardown()
			}
			return
		}
		e.monitor(now, dt)
	}
}

// advanceCountdown shows every countdown label that is due. Labels read "Ready" at the
// start of the countdown and then count down to 1.
func (e *Event) advanceCountdown(now time.Time) {
	elapsed := now.Sub(e.countdownStart)
	for e.countdownShown < e.cfg.CountdownSteps &&
		elapsed >= time.Duration(e.countdownShown)*e.cfg.CountdownStep {
		e.display.ShowCountdown(e.id, countdownLabel(e.countdownShown, e.cfg.CountdownSteps), e.cfg.CountdownStep)
		e.countdownShown++
	}
}

func countdownLabel(step, steps int) string {
	if step == 0 {
		return "Ready"
	}
	return strconv.Itoa(steps - step)
}

func (e *Event) start(now time.Time) {
	e.state = InProgress
	e.startTime = now
	e.duration = 0
	e.display.ShowCountdown(e.id, "Start!", e.cfg.CountdownStep)
	for _, en := range e.entries {
		en.p.Resume()
	}
	e.log.Info("Event started", "participants", len(e.entries))
	e.display.ShowState(e.snapshotLocked())
}

func (e *Event) monitor(now time.Time, dt time.Duration) {
	e.duration = now.Sub(e.startTime)
	timeText := FormatDuration(e.duration)

	for _, en := range e.entries {
		if en.done {
			continue
		}
		outcome := en.tracker.Tick(dt)
		switch outcome {
		case progress.OutcomeLapCompleted:
			e.log.Debug("Lap completed", "participant", en.p.ID(), "lap", en.tracker.State().CurrentLap-1)
		case progress.OutcomeEventCompleted:
			e.recordCompletion(en, now)
		}

		lap := en.tracker.State().CurrentLap
		if en.done {
			lap = e.laps
		}
		e.display.ShowTimeAndLap(e.id, en.p.ID(), timeText, fmt.Sprintf("Lap: %d/%d", lap, e.laps))
	}

	if e.allCompleted() {
		e.beginResolution(now)
	}
}

func (e *Event) allCompleted() bool {
	if len(e.entries) == 0 {
		return false
	}
	for _, en := range e.entries {
		if en.p.CompletionStatus() != participant.StatusCompleted {
			return false
		}
	}
	return true
}

func (e *Event) recordCompletion(en *entry, now time.Time) {
	en.done = true
	en.p.SetCompletionStatus(participant.StatusCompleted)

	c := Completion{
		EventID:         e.id,
		EventName:       e.name,
		Kind:            e.kind,
		RouteName:       routeName(e.route),
		ParticipantID:   en.p.ID(),
		ParticipantName: en.p.Name(),
		Laps:            e.laps,
		Place:           len(e.completed) + 1,
		Duration:        now.Sub(e.startTime),
		FinishedAt:      now,
	}
	e.completed = append(e.completed, c)
	e.log.Info("Participant completed", "participant", c.ParticipantID, "place", c.Place, "time", FormatDuration(c.Duration))

	if e.onComplete != nil {
		e.onComplete(c)
	}
}

func (e *Event) beginResolution(now time.Time) {
	e.resolving = true
	e.phaseDeadline = now.Add(e.cfg.ResolveTimeout)
	e.display.ShowCountdown(e.id, "Time: "+FormatDuration(e.duration), e.cfg.StatsDisplay)
	e.log.Info("Event resolving", "duration", FormatDuration(e.duration))
	e.display.ShowState(e.snapshotLocked())
}

func (e *Event) teardown() {
	for _, en := range e.entries {
		release(en)
	}
	e.display.Hide(e.id)
	e.reset()
	e.log.Info("Event reset")
	e.display.ShowState(e.snapshotLocked())
}

// release returns a participant to free movement outside any event.
func release(en *entry) {
	en.tracker.Reset()
	en.p.SetEventID("")
	en.p.SetMode(participant.NotCompeting)
	en.p.SetCompletionStatus(participant.StatusIdle)
	en.p.Resume()
}

// reset clears the event record back to inactive.
func (e *Event) reset() {
	e.state = Inactive
	e.resolving = false
	e.route = nil
	e.laps = 0
	e.capacity = 0
	e.entries = nil
	e.completed = nil
	e.countdownStart = time.Time{}
	e.countdownShown = 0
	e.phaseDeadline = time.Time{}
	e.startTime = time.Time{}
	e.duration = 0
}

func (e *Event) find(participantID string) *entry {
	for _, en := range e.entries {
		if en.p.ID() == participantID {
			return en
		}
	}
	return nil
}

func routeName(r route.Provider) string {
	if named, ok := r.(interface{ Name() string }); ok {
		return named.Name()
	}
	return ""
}

// FormatDuration renders d as mm:ss. Minutes are not capped at 59.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
