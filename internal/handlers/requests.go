package handlers

import "github.com/abrezinsky/racetrial/internal/geom"

// RouteCreateRequest represents a request to create a route
type RouteCreateRequest struct {
	Name      string      `json:"name"`
	Topology  string      `json:"topology"`
	Smooth    bool        `json:"smooth"`
	Waypoints []geom.Vec3 `json:"waypoints"`
}

// EventCreateRequest represents a request to create an event
type EventCreateRequest struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	RouteID  int64  `json:"route_id"`
	Laps     int    `json:"laps"`
	Capacity int    `json:"capacity"`
}

// ParticipantRegisterRequest represents a request to register a participant
type ParticipantRegisterRequest struct {
	Name     string    `json:"name"`
	Position geom.Vec3 `json:"position"`
}

// PositionUpdateRequest reports a participant's current position
type PositionUpdateRequest struct {
	Position geom.Vec3 `json:"position"`
}

// JoinRequest names the participant joining or leaving an event
type JoinRequest struct {
	ParticipantID string `json:"participant_id"`
}

// SettingsUpdateRequest represents a request to update settings. Omitted fields are unchanged.
type SettingsUpdateRequest struct {
	BaseURL            *string  `json:"base_url"`
	CountdownStepMS    *int     `json:"countdown_step_ms"`
	CountdownSteps     *int     `json:"countdown_steps"`
	ResolveTimeoutMS   *int     `json:"resolve_timeout_ms"`
	StatsDisplayMS     *int     `json:"stats_display_ms"`
	ProximityThreshold *float64 `json:"proximity_threshold"`
	ProgressStyle      *string  `json:"progress_style"`
}

// DatabaseResetRequest represents a request to reset database tables
type DatabaseResetRequest struct {
	Tables []string `json:"tables"`
}
