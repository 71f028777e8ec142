// Package participant holds the entities that move along routes and take part in events.
package participant

import (
	"sync"

	"github.com/google/uuid"

	"github.com/abrezinsky/racetrial/internal/geom"
)

// Mode is what kind of event, if any, a participant is competing in.
type Mode string

const (
	NotCompeting Mode = "not_competing"
	Racing       Mode = "racing"
	TimeTrialing Mode = "time_trialing"
)

// Status is the participant's completion status within its current event.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCompeting Status = "competing"
	StatusCompleted Status = "completed"
)

// Controller is the contract events use to drive a participant.
type Controller interface {
	ID() string
	Name() string
	Position() geom.Vec3
	IsPaused() bool
	Pause()
	Resume()
	CompletionStatus() Status
	SetCompletionStatus(Status)
	Mode() Mode
	SetMode(Mode)
	EventID() string
	SetEventID(string)
}

var _ Controller = (*Vehicle)(nil)

// Vehicle is a participant whose position is reported by a client or an Autopilot.
type Vehicle struct {
	mu       sync.RWMutex
	id       string
	name     string
	position geom.Vec3
	paused   bool
	status   Status
	mode     Mode
	eventID  string
}

// NewVehicle creates a vehicle with a fresh ID.
func NewVehicle(name string, position geom.Vec3) *Vehicle {
	return NewVehicleWithID(uuid.NewString(), name, position)
}

// NewVehicleWithID creates a vehicle with a caller supplied ID.
func NewVehicleWithID(id, name string, position geom.Vec3) *Vehicle {
	return &Vehicle{
		id:       id,
		name:     name,
		position: position,
		status:   StatusIdle,
		mode:     NotCompeting,
	}
}

func (v *Vehicle) ID() string   { return v.id }
func (v *Vehicle) Name() string { return v.name }

func (v *Vehicle) Position() geom.Vec3 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.position
}

// SetPosition records a reported position. Reports are dropped while the vehicle is
// paused; the return value says whether the position was applied.
func (v *Vehicle) SetPosition(p geom.Vec3) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return false
	}
	v.position = p
	return true
}

// Place moves the vehicle regardless of pause state.
func (v *Vehicle) Place(p geom.Vec3) {
	v.mu.Lock()
	v.position = p
	v.mu.Unlock()
}

// Move translates the vehicle by delta unless it is paused.
func (v *Vehicle) Move(delta geom.Vec3) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return
	}
	v.position = v.position.Add(delta)
}

func (v *Vehicle) IsPaused() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.paused
}

func (v *Vehicle) Pause() {
	v.mu.Lock()
	v.paused = true
	v.mu.Unlock()
}

func (v *Vehicle) Resume() {
	v.mu.Lock()
	v.paused = false
	v.mu.Unlock()
}

func (v *Vehicle) CompletionStatus() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

func (v *Vehicle) SetCompletionStatus(s Status) {
	v.mu.Lock()
	v.status = s
	v.mu.Unlock()
}

func (v *Vehicle) Mode() Mode {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mode
}

func (v *Vehicle) SetMode(m Mode) {
	v.mu.Lock()
	v.mode = m
	v.mu.Unlock()
}

func (v *Vehicle) EventID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.eventID
}

func (v *Vehicle) SetEventID(id string) {
	v.mu.Lock()
	v.eventID = id
	v.mu.Unlock()
}
