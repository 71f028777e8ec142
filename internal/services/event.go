package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/abrezinsky/racetrial/internal/clock"
	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/models"
	"github.com/abrezinsky/racetrial/internal/participant"
	"github.com/abrezinsky/racetrial/internal/progress"
	"github.com/abrezinsky/racetrial/internal/repository"
	"github.com/abrezinsky/racetrial/internal/route"
)

// CircuitSource resolves stored routes to circuits.
type CircuitSource interface {
	Circuit(ctx context.Context, id int64) (*route.Circuit, error)
}

// EngineSettings supplies event timing and the public base URL.
type EngineSettings interface {
	EventConfig(ctx context.Context) (event.Config, error)
	GetBaseURL(ctx context.Context) (string, error)
}

// ResultRecorder persists completed runs.
type ResultRecorder interface {
	Record(ctx context.Context, r models.Result) error
}

// EventInput is the data needed to create an event.
type EventInput struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	RouteID  int64  `json:"route_id"`
	Laps     int    `json:"laps"`
	Capacity int    `json:"capacity"`
}

// EventView combines an event definition with its live state.
type EventView struct {
	models.EventDefinition
	Live event.Snapshot `json:"live"`
}

// ParticipantView is a participant plus its progress in the current event.
type ParticipantView struct {
	models.Participant
	Progress *progress.State `json:"progress,omitempty"`
}

type liveEvent struct {
	def models.EventDefinition
	ev  *event.Event
}

const resultQueueSize = 256

// EventService is the event engine: it owns the live events and registered
// participants and drives them from a fixed-rate tick loop.
type EventService struct {
	log      logger.Logger
	repo     repository.EventRepository
	circuits CircuitSource
	settings EngineSettings
	results  ResultRecorder
	clock    clock.Clock
	display  event.Display

	mu           sync.RWMutex
	events       map[string]*liveEvent
	participants map[string]*participant.Vehicle

	resultCh chan models.Result
}

// NewEventService creates a new EventService
func NewEventService(log logger.Logger, repo repository.EventRepository, circuits CircuitSource,
	settings EngineSettings, results ResultRecorder, clk clock.Clock, display event.Display) *EventService {
	if display == nil {
		display = event.NopDisplay{}
	}
	return &EventService{
		log:          log,
		repo:         repo,
		circuits:     circuits,
		settings:     settings,
		results:      results,
		clock:        clk,
		display:      display,
		events:       make(map[string]*liveEvent),
		participants: make(map[string]*participant.Vehicle),
		resultCh:     make(chan models.Result, resultQueueSize),
	}
}

// LoadEvents builds live events for every stored definition and drops idle events that
// are no longer stored.
func (s *EventService) LoadEvents(ctx context.Context) error {
	defs, err := s.repo.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	cfg, err := s.settings.EventConfig(ctx)
	if err != nil {
		return fmt.Errorf("load event config: %w", err)
	}

	stored := make(map[string]bool, len(defs))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range defs {
		stored[def.ID] = true
		if _, ok := s.events[def.ID]; !ok {
			s.events[def.ID] = s.newLive(def, cfg)
		}
	}
	for id, le := range s.events {
		if !stored[id] && le.ev.State() == event.Inactive {
			delete(s.events, id)
		}
	}
	s.log.Info("Events loaded", "count", len(defs))
	return nil
}

func (s *EventService) newLive(def models.EventDefinition, cfg event.Config) *liveEvent {
	ev := event.New(def.ID, def.Name, event.Kind(def.Kind), cfg, s.clock, s.display, s.log)
	routeID := def.RouteID
	ev.OnComplete(func(c event.Completion) {
		s.enqueueResult(routeID, c)
	})
	return &liveEvent{def: def, ev: ev}
}

// CreateEvent validates and stores a new event definition.
func (s *EventService) CreateEvent(ctx context.Context, in EventInput) (*models.EventDefinition, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperrors.Validation("event name is required")
	}
	kind, err := event.ParseKind(in.Kind)
	if err != nil {
		return nil, err
	}
	if in.Laps < 1 {
		return nil, apperrors.Validationf("laps must be at least 1, got %d", in.Laps)
	}
	if kind == event.TimeTrial {
		in.Capacity = 1
	}
	if in.Capacity < 1 {
		return nil, apperrors.Validationf("capacity must be at least 1, got %d", in.Capacity)
	}

	circuit, err := s.circuits.Circuit(ctx, in.RouteID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.settings.EventConfig(ctx)
	if err != nil {
		return nil, err
	}

	def := models.EventDefinition{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Kind:      string(kind),
		RouteID:   in.RouteID,
		RouteName: circuit.Name(),
		Laps:      in.Laps,
		Capacity:  in.Capacity,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateEvent(ctx, def); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.events[def.ID] = s.newLive(def, cfg)
	s.mu.Unlock()

	s.log.Info("Event created", "id", def.ID, "name", def.Name, "kind", def.Kind, "route", def.RouteName)
	return &def, nil
}

// ListEvents returns every event with its live state, ordered by name.
func (s *EventService) ListEvents(ctx context.Context) ([]EventView, error) {
	s.mu.RLock()
	views := make([]EventView, 0, len(s.events))
	for _, le := range s.events {
		views = append(views, EventView{EventDefinition: le.def, Live: le.ev.Snapshot()})
	}
	s.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].Name != views[j].Name {
			return views[i].Name < views[j].Name
		}
		return views[i].ID < views[j].ID
	})
	return views, nil
}

// GetEvent returns one event with its live state.
func (s *EventService) GetEvent(ctx context.Context, id string) (*EventView, error) {
	le, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return &EventView{EventDefinition: le.def, Live: le.ev.Snapshot()}, nil
}

// Snapshots returns the live state of every event.
func (s *EventService) Snapshots() []event.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]event.Snapshot, 0, len(s.events))
	for _, le := range s.events {
		out = append(out, le.ev.Snapshot())
	}
	return out
}

// DeleteEvent removes an inactive event.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	le, err := s.live(id)
	if err != nil {
		return err
	}
	if st := le.ev.State(); st != event.Inactive {
		return apperrors.Conflictf("event %s is %s", id, st)
	}
	if err := s.repo.DeleteEvent(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	s.mu.Lock()
	delete(s.events, id)
	s.mu.Unlock()
	s.log.Info("Event deleted", "id", id)
	return nil
}

func (s *EventService) live(id string) (*liveEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	le, ok := s.events[id]
	if !ok {
		return nil, apperrors.NotFoundf("event %s not found", id)
	}
	return le, nil
}

// ==================== Participants ====================

// RegisterParticipant creates a participant at position.
func (s *EventService) RegisterParticipant(name string, position geom.Vec3) (*models.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("participant name is required")
	}
	v := participant.NewVehicle(name, position)

	s.mu.Lock()
	s.participants[v.ID()] = v
	s.mu.Unlock()

	s.log.Info("Participant registered", "id", v.ID(), "name", name)
	p := participantModel(v)
	return &p, nil
}

// AddParticipant registers an existing vehicle, for callers that drive it themselves.
func (s *EventService) AddParticipant(v *participant.Vehicle) {
	s.mu.Lock()
	s.participants[v.ID()] = v
	s.mu.Unlock()
}

// GetParticipant returns a participant and its progress in the current event.
func (s *EventService) GetParticipant(id string) (*ParticipantView, error) {
	v, err := s.vehicle(id)
	if err != nil {
		return nil, err
	}
	view := &ParticipantView{Participant: participantModel(v)}
	if eventID := v.EventID(); eventID != "" {
		if le, err := s.live(eventID); err == nil {
			if st, ok := le.ev.Progress(id); ok {
				view.Progress = &st
			}
		}
	}
	return view, nil
}

// ParticipantProgress returns a participant's progress in its current event.
func (s *EventService) ParticipantProgress(id string) (*progress.State, error) {
	view, err := s.GetParticipant(id)
	if err != nil {
		return nil, err
	}
	if view.Progress == nil {
		return nil, apperrors.NotFoundf("participant %s is not in an event", id)
	}
	return view.Progress, nil
}

// UpdatePosition records a participant's reported position. Reports are rejected while
// the participant is held for a countdown.
func (s *EventService) UpdatePosition(id string, position geom.Vec3) (*models.Participant, error) {
	v, err := s.vehicle(id)
	if err != nil {
		return nil, err
	}
	if !v.SetPosition(position) {
		return nil, apperrors.Conflictf("participant %s is paused", id)
	}
	p := participantModel(v)
	return &p, nil
}

func (s *EventService) vehicle(id string) (*participant.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.participants[id]
	if !ok {
		return nil, apperrors.NotFoundf("participant %s not found", id)
	}
	return v, nil
}

func participantModel(v *participant.Vehicle) models.Participant {
	return models.Participant{
		ID:       v.ID(),
		Name:     v.Name(),
		Mode:     string(v.Mode()),
		Status:   string(v.CompletionStatus()),
		EventID:  v.EventID(),
		Paused:   v.IsPaused(),
		Position: v.Position(),
	}
}

// ==================== Join / Leave ====================

// Join enters a participant into an event.
func (s *EventService) Join(ctx context.Context, eventID, participantID string) error {
	le, err := s.live(eventID)
	if err != nil {
		return err
	}
	v, err := s.vehicle(participantID)
	if err != nil {
		return err
	}
	circuit, err := s.circuits.Circuit(ctx, le.def.RouteID)
	if err != nil {
		return err
	}

	cfg, err := s.settings.EventConfig(ctx)
	if err != nil {
		return err
	}
	// Ignored once the event has formed, so a concurrent first join cannot swap timing.
	le.ev.SetConfig(cfg)

	if err := le.ev.Join(v, circuit, le.def.Laps, le.def.Capacity); err != nil {
		return err
	}
	s.log.Info("Participant joined event", "event", eventID, "participant", participantID)
	return nil
}

// Leave removes a participant from an event.
func (s *EventService) Leave(ctx context.Context, eventID, participantID string) error {
	le, err := s.live(eventID)
	if err != nil {
		return err
	}
	return le.ev.Leave(participantID)
}

// Target returns the steering target for a participant in an event.
func (s *EventService) Target(eventID, participantID string) (geom.Vec3, bool) {
	le, err := s.live(eventID)
	if err != nil {
		return geom.Vec3{}, false
	}
	return le.ev.Target(participantID)
}

// ==================== Engine loop ====================

// TickAll advances every live event by dt.
func (s *EventService) TickAll(dt time.Duration) {
	s.mu.RLock()
	events := make([]*event.Event, 0, len(s.events))
	for _, le := range s.events {
		events = append(events, le.ev)
	}
	s.mu.RUnlock()

	for _, ev := range events {
		ev.Tick(dt)
	}
}

// Run ticks every event at a fixed rate until ctx is cancelled.
func (s *EventService) Run(ctx context.Context, tickRate time.Duration) {
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	s.log.Info("Event engine started", "tick", tickRate)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Event engine stopped")
			return
		case <-ticker.C:
			s.TickAll(tickRate)
		}
	}
}

// RunResultWriter persists queued results until ctx is cancelled, then drains what is
// left in the queue.
func (s *EventService) RunResultWriter(ctx context.Context) {
	for {
		select {
		case r := <-s.resultCh:
			s.writeResult(context.Background(), r)
		case <-ctx.Done():
			for {
				select {
				case r := <-s.resultCh:
					s.writeResult(context.Background(), r)
				default:
					return
				}
			}
		}
	}
}

func (s *EventService) writeResult(ctx context.Context, r models.Result) {
	if s.results == nil {
		return
	}
	if err := s.results.Record(ctx, r); err != nil {
		s.log.Error("Failed to record result", "event", r.EventID, "participant", r.ParticipantID, "error", err)
	}
}

// enqueueResult is called from the tick path and never blocks.
func (s *EventService) enqueueResult(routeID int64, c event.Completion) {
	r := models.Result{
		ID:              uuid.NewString(),
		EventID:         c.EventID,
		EventName:       c.EventName,
		Kind:            string(c.Kind),
		RouteID:         routeID,
		RouteName:       c.RouteName,
		ParticipantID:   c.ParticipantID,
		ParticipantName: c.ParticipantName,
		Laps:            c.Laps,
		Place:           c.Place,
		DurationMS:      c.Duration.Milliseconds(),
		FinishedAt:      c.FinishedAt,
	}
	select {
	case s.resultCh <- r:
	default:
		s.log.Error("Result queue full, dropping result", "event", r.EventID, "participant", r.ParticipantID)
	}
}

// ==================== QR ====================

// JoinURL returns the live board URL for an event.
func (s *EventService) JoinURL(ctx context.Context, eventID string) (string, error) {
	if _, err := s.live(eventID); err != nil {
		return "", err
	}
	baseURL, err := s.settings.GetBaseURL(ctx)
	if err != nil {
		return "", err
	}
	if baseURL == "" {
		return "", ErrBaseURLNotSet
	}
	return fmt.Sprintf("%s/?event=%s", strings.TrimSuffix(baseURL, "/"), eventID), nil
}

// JoinQR returns a PNG QR code pointing at an event's live board.
func (s *EventService) JoinQR(ctx context.Context, eventID string) ([]byte, error) {
	url, err := s.JoinURL(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(url, qrcode.Medium, 256)
}
