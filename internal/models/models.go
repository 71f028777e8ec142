package models

import (
	"time"

	"github.com/abrezinsky/racetrial/internal/geom"
)

// Route is a stored route definition.
type Route struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Topology  string      `json:"topology"`
	Smooth    bool        `json:"smooth"`
	Waypoints []geom.Vec3 `json:"waypoints"`
	Length    float64     `json:"length,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// EventDefinition is a stored event that participants can join.
type EventDefinition struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	RouteID   int64     `json:"route_id"`
	RouteName string    `json:"route_name,omitempty"`
	Laps      int       `json:"laps"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is one participant's completed run.
type Result struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	EventName       string    `json:"event_name"`
	Kind            string    `json:"kind"`
	RouteID         int64     `json:"route_id"`
	RouteName       string    `json:"route_name"`
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	Laps            int       `json:"laps"`
	Place           int       `json:"place"`
	DurationMS      int64     `json:"duration_ms"`
	Time            string    `json:"time"` // mm:ss
	FinishedAt      time.Time `json:"finished_at"`
}

// LeaderboardEntry is a participant's best time on a route.
type LeaderboardEntry struct {
	Rank            int    `json:"rank"`
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
	BestMS          int64  `json:"best_ms"`
	Time            string `json:"time"`
	Runs            int    `json:"runs"`
}

// Participant is the API view of a registered participant.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Mode     string    `json:"mode"`
	Status   string    `json:"status"`
	EventID  string    `json:"event_id,omitempty"`
	Paused   bool      `json:"paused"`
	Position geom.Vec3 `json:"position"`
}

// Settings is the engine tuning editable by admins.
type Settings struct {
	CountdownStepMS    int     `json:"countdown_step_ms"`
	CountdownSteps     int     `json:"countdown_steps"`
	ResolveTimeoutMS   int     `json:"resolve_timeout_ms"`
	StatsDisplayMS     int     `json:"stats_display_ms"`
	ProximityThreshold float64 `json:"proximity_threshold"`
	ProgressStyle      string  `json:"progress_style"`
}

// WebSocket message types.
const (
	MsgCountdown  = "countdown"
	MsgTimeAndLap = "time_and_lap"
	MsgHide       = "hide"
	MsgEventState = "event_state"
	MsgResult     = "result"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// CountdownPayload is sent with MsgCountdown.
type CountdownPayload struct {
	EventID    string `json:"event_id"`
	Text       string `json:"text"`
	DurationMS int64  `json:"duration_ms"`
}

// TimeAndLapPayload is sent with MsgTimeAndLap.
type TimeAndLapPayload struct {
	EventID       string `json:"event_id"`
	ParticipantID string `json:"participant_id"`
	Time          string `json:"time"`
	Lap           string `json:"lap"`
}
