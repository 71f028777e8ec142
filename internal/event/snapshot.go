package event

import (
	"time"

	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/participant"
	"github.com/abrezinsky/racetrial/internal/progress"
)

// ParticipantSnapshot is one participant's view within a Snapshot.
type ParticipantSnapshot struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Status           participant.Status `json:"status"`
	Position         geom.Vec3          `json:"position"`
	CurrentLap       int                `json:"current_lap"`
	ProgressDistance float64            `json:"progress_distance"`
	HalfPointReached bool               `json:"half_point_reached"`
	Target           progress.Target    `json:"target"`
}

// Snapshot is a point-in-time copy of an event, safe to serialize.
type Snapshot struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Kind         Kind                  `json:"kind"`
	State        State                 `json:"state"`
	Resolving    bool                  `json:"resolving"`
	RouteName    string                `json:"route_name,omitempty"`
	Laps         int                   `json:"laps"`
	Capacity     int                   `json:"capacity"`
	StartTime    *time.Time            `json:"start_time,omitempty"`
	Elapsed      string                `json:"elapsed"`
	Participants []ParticipantSnapshot `json:"participants"`
	Completed    []Completion          `json:"completed"`
}

// Snapshot returns a copy of the event's current state.
func (e *Event) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Event) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:           e.id,
		Name:         e.name,
		Kind:         e.kind,
		State:        e.state,
		Resolving:    e.resolving,
		Laps:         e.laps,
		Capacity:     e.capacity,
		Elapsed:      FormatDuration(e.duration),
		Participants: make([]ParticipantSnapshot, 0, len(e.entries)),
		Completed:    make([]Completion, len(e.completed)),
	}
	if e.route != nil {
		s.RouteName = routeName(e.route)
	}
	if e.state == InProgress {
		start := e.startTime
		s.StartTime = &start
	}
	copy(s.Completed, e.completed)

	for _, en := range e.entries {
		st := en.tracker.State()
		lap := st.CurrentLap
		if en.done {
			lap = e.laps
		}
		s.Participants = append(s.Participants, ParticipantSnapshot{
			ID:               en.p.ID(),
			Name:             en.p.Name(),
			Status:           en.p.CompletionStatus(),
			Position:         en.p.Position(),
			CurrentLap:       lap,
			ProgressDistance: st.ProgressDistance,
			HalfPointReached: st.HalfPointReached,
			Target:           st.Target,
		})
	}
	return s
}
