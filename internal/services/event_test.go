package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/abrezinsky/racetrial/internal/clock"
	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/models"
	"github.com/abrezinsky/racetrial/internal/participant"
	"github.com/abrezinsky/racetrial/internal/repository"
	"github.com/abrezinsky/racetrial/internal/repository/mock"
	"github.com/abrezinsky/racetrial/internal/services"
	"github.com/abrezinsky/racetrial/internal/testutil"
)

const engineTick = 50 * time.Millisecond

func testEventDefinition(id string, routeID int64) models.EventDefinition {
	return models.EventDefinition{
		ID:       id,
		Name:     "Sunday Trial",
		Kind:     string(event.TimeTrial),
		RouteID:  routeID,
		Laps:     1,
		Capacity: 1,
	}
}

type engineFixture struct {
	repo     *mock.Repository
	clock    *clock.Manual
	routes   *services.RouteService
	settings *services.SettingsService
	results  *services.ResultsService
	engine   *services.EventService
	routeID  int64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	log := logger.NewWithWriter(io.Discard, slog.LevelDebug)
	repo := mock.NewRepository(testutil.NewTestRepository(t))
	f := &engineFixture{
		repo:  repo,
		clock: clock.NewManual(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)),
	}
	f.routeID = testutil.SeedRoute(t, repo, "Harbour Loop", 10)
	f.routes = services.NewRouteService(log, repo)
	f.settings = services.NewSettingsService(log, repo)
	f.results = services.NewResultsService(log, repo)
	f.engine = services.NewEventService(log, repo, f.routes, f.settings, f.results, f.clock, nil)
	return f
}

func (f *engineFixture) createEvent(t *testing.T, kind string, laps, capacity int) *models.EventDefinition {
	t.Helper()
	def, err := f.engine.CreateEvent(context.Background(), services.EventInput{
		Name: "Sunday " + kind, Kind: kind, RouteID: f.routeID, Laps: laps, Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	return def
}

func (f *engineFixture) register(t *testing.T, name string) string {
	t.Helper()
	c, _ := f.routes.Circuit(context.Background(), f.routeID)
	p, err := f.engine.RegisterParticipant(name, c.WaypointAt(0).Position)
	if err != nil {
		t.Fatalf("RegisterParticipant failed: %v", err)
	}
	return p.ID
}

func (f *engineFixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.engine.TickAll(engineTick)
}

// lap reports every waypoint of the loop for participantID, one second apart.
func (f *engineFixture) lap(t *testing.T, participantID string) {
	t.Helper()
	c, _ := f.routes.Circuit(context.Background(), f.routeID)
	for i := 0; i < c.WaypointCount(); i++ {
		if _, err := f.engine.UpdatePosition(participantID, c.WaypointAt(i).Position); err != nil {
			t.Fatalf("UpdatePosition failed: %v", err)
		}
		f.advance(time.Second)
	}
}

// drainResults persists every queued result.
func (f *engineFixture) drainResults() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.engine.RunResultWriter(ctx)
}

func TestEventService_CreateEvent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	def := f.createEvent(t, "time_trial", 2, 8)
	if def.Capacity != 1 {
		t.Errorf("time trial capacity = %d, want 1", def.Capacity)
	}
	if def.RouteName != "Harbour Loop" || def.ID == "" {
		t.Errorf("unexpected definition %+v", def)
	}

	stored, err := f.repo.GetEvent(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if stored.Laps != 2 || stored.Kind != "time_trial" {
		t.Errorf("unexpected stored event %+v", stored)
	}

	view, err := f.engine.GetEvent(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if view.Live.State != event.Inactive {
		t.Errorf("new event state = %q", view.Live.State)
	}
}

func TestEventService_CreateEventValidation(t *testing.T) {
	tests := []struct {
		name string
		in   services.EventInput
		kind apperrors.Kind
	}{
		{"missing name", services.EventInput{Kind: "race", Laps: 1, Capacity: 2}, apperrors.ErrValidation},
		{"bad kind", services.EventInput{Name: "x", Kind: "drag", Laps: 1, Capacity: 2}, apperrors.ErrValidation},
		{"zero laps", services.EventInput{Name: "x", Kind: "race", Laps: 0, Capacity: 2}, apperrors.ErrValidation},
		{"zero capacity", services.EventInput{Name: "x", Kind: "race", Laps: 1, Capacity: 0}, apperrors.ErrValidation},
		{"unknown route", services.EventInput{Name: "x", Kind: "race", RouteID: 999, Laps: 1, Capacity: 2}, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t)
			if tt.in.RouteID == 0 {
				tt.in.RouteID = f.routeID
			}
			_, err := f.engine.CreateEvent(context.Background(), tt.in)
			if !apperrors.Is(err, tt.kind) {
				t.Fatalf("expected %s error, got %v", tt.kind, err)
			}
		})
	}
}

func TestEventService_CreateEventRepositoryError(t *testing.T) {
	f := newEngineFixture(t)
	f.repo.CreateEventError = errors.New("disk full")

	_, err := f.engine.CreateEvent(context.Background(), services.EventInput{
		Name: "x", Kind: "race", RouteID: f.routeID, Laps: 1, Capacity: 2,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	events, _ := f.engine.ListEvents(context.Background())
	if len(events) != 0 {
		t.Error("failed create should not add a live event")
	}
}

func TestEventService_LoadEvents(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.repo.CreateEvent(ctx, testEventDefinition("stored", f.routeID)); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if err := f.engine.LoadEvents(ctx); err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if _, err := f.engine.GetEvent(ctx, "stored"); err != nil {
		t.Fatalf("stored event not loaded: %v", err)
	}

	if err := f.repo.DeleteEvent(ctx, "stored"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if err := f.engine.LoadEvents(ctx); err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if _, err := f.engine.GetEvent(ctx, "stored"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected idle event to be dropped, got %v", err)
	}

	f.repo.ListEventsError = errors.New("boom")
	if err := f.engine.LoadEvents(ctx); err == nil {
		t.Fatal("expected LoadEvents error")
	}
}

func TestEventService_ListEventsSortedByName(t *testing.T) {
	f := newEngineFixture(t)
	f.createEvent(t, "time_trial", 1, 1)
	f.createEvent(t, "race", 1, 4)

	views, err := f.engine.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(views) != 2 || views[0].Name != "Sunday race" || views[1].Name != "Sunday time_trial" {
		t.Errorf("unexpected order: %+v", views)
	}
	if len(f.engine.Snapshots()) != 2 {
		t.Error("expected a snapshot per event")
	}
}

func TestEventService_TimeTrialRecordsResult(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	def := f.createEvent(t, "time_trial", 1, 1)
	pid := f.register(t, "Alice")

	if err := f.engine.Join(ctx, def.ID, pid); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	// Held at the start line during the countdown.
	if _, err := f.engine.UpdatePosition(pid, geom.Vec3{X: 5}); !apperrors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict while paused, got %v", err)
	}
	if st, err := f.engine.ParticipantProgress(pid); err != nil || st.NumberOfLaps != 1 {
		t.Errorf("ParticipantProgress = %+v, %v", st, err)
	}
	view, _ := f.engine.GetParticipant(pid)
	if !view.Paused || view.Mode != string(participant.TimeTrialing) || view.Progress == nil {
		t.Errorf("participant not prepared: %+v", view)
	}

	f.advance(4 * time.Second)
	if ev, _ := f.engine.GetEvent(ctx, def.ID); ev.Live.State != event.InProgress {
		t.Fatalf("state after countdown = %q", ev.Live.State)
	}

	f.lap(t, pid)
	ev, _ := f.engine.GetEvent(ctx, def.ID)
	if !ev.Live.Resolving {
		t.Fatal("expected event to be resolving")
	}

	f.drainResults()
	results, err := f.results.ListResults(ctx, 10)
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ParticipantName != "Alice" || r.RouteID != f.routeID || r.DurationMS != 10000 || r.Time != "00:10" {
		t.Errorf("unexpected result %+v", r)
	}

	f.advance(5 * time.Second)
	view, _ = f.engine.GetParticipant(pid)
	if view.EventID != "" || view.Progress != nil {
		t.Errorf("participant not released: %+v", view)
	}
	if _, err := f.engine.ParticipantProgress(pid); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found once released, got %v", err)
	}
}

func TestEventService_JoinErrors(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	def := f.createEvent(t, "time_trial", 1, 1)
	a := f.register(t, "Alice")
	b := f.register(t, "Bob")

	if err := f.engine.Join(ctx, "missing", a); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown event: %v", err)
	}
	if err := f.engine.Join(ctx, def.ID, "missing"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown participant: %v", err)
	}
	if err := f.engine.Join(ctx, def.ID, a); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := f.engine.Join(ctx, def.ID, b); !apperrors.Is(err, apperrors.ErrConflict) {
		t.Errorf("time trial second join: %v", err)
	}
	if err := f.engine.DeleteEvent(ctx, def.ID); !apperrors.Is(err, apperrors.ErrConflict) {
		t.Errorf("delete of forming event: %v", err)
	}

	if err := f.engine.Leave(ctx, def.ID, a); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if err := f.engine.Leave(ctx, def.ID, a); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second leave: %v", err)
	}
	if err := f.engine.DeleteEvent(ctx, def.ID); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, err := f.engine.GetEvent(ctx, def.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("deleted event still present: %v", err)
	}
}

func TestEventService_JoinAppliesCurrentSettings(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	def := f.createEvent(t, "time_trial", 1, 1)
	pid := f.register(t, "Alice")

	if err := f.settings.Update(ctx, services.SettingsUpdate{CountdownSteps: intPtr(2)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := f.engine.Join(ctx, def.ID, pid); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	f.advance(2 * time.Second)
	if ev, _ := f.engine.GetEvent(ctx, def.ID); ev.Live.State != event.InProgress {
		t.Fatalf("expected a two step countdown, state = %q", ev.Live.State)
	}
}

func TestEventService_LaterJoinKeepsFormedTiming(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	def := f.createEvent(t, "race", 1, 2)
	a := f.register(t, "Alice")
	b := f.register(t, "Bob")

	if err := f.engine.Join(ctx, def.ID, a); err != nil {
		t.Fatalf("Join(a) failed: %v", err)
	}
	if err := f.settings.Update(ctx, services.SettingsUpdate{CountdownSteps: intPtr(2)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := f.engine.Join(ctx, def.ID, b); err != nil {
		t.Fatalf("Join(b) failed: %v", err)
	}

	// The four step countdown chosen at formation still applies.
	f.advance(2 * time.Second)
	if ev, _ := f.engine.GetEvent(ctx, def.ID); ev.Live.State != event.Forming {
		t.Fatalf("state after 2s = %q, want forming", ev.Live.State)
	}
	f.advance(2 * time.Second)
	if ev, _ := f.engine.GetEvent(ctx, def.ID); ev.Live.State != event.InProgress {
		t.Fatalf("state after 4s = %q, want in progress", ev.Live.State)
	}
}

func TestEventService_RaceWithAutopilots(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	def := f.createEvent(t, "race", 1, 2)
	c, _ := f.routes.Circuit(ctx, f.routeID)

	var pilots []*participant.Autopilot
	for i, speed := range []float64{12, 9} {
		v := participant.NewVehicle([]string{"Fast", "Slow"}[i], c.WaypointAt(0).Position)
		f.engine.AddParticipant(v)
		if err := f.engine.Join(ctx, def.ID, v.ID()); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		id := v.ID()
		pilots = append(pilots, participant.NewAutopilot(v, participant.TargetSourceFunc(func() (geom.Vec3, bool) {
			return f.engine.Target(def.ID, id)
		}), speed))
	}

	for i := 0; i < 2000; i++ {
		for _, p := range pilots {
			p.Step(engineTick)
		}
		f.advance(engineTick)
		if ev, _ := f.engine.GetEvent(ctx, def.ID); ev.Live.Resolving {
			break
		}
	}

	ev, _ := f.engine.GetEvent(ctx, def.ID)
	if !ev.Live.Resolving || len(ev.Live.Completed) != 2 {
		t.Fatalf("race did not finish: %+v", ev.Live)
	}
	if ev.Live.Completed[0].ParticipantName != "Fast" || ev.Live.Completed[1].Place != 2 {
		t.Errorf("unexpected finishing order: %+v", ev.Live.Completed)
	}

	f.drainResults()
	board, _ := f.results.Leaderboard(ctx, f.routeID, 10)
	if len(board) != 2 || board[0].ParticipantName != "Fast" {
		t.Errorf("unexpected leaderboard %+v", board)
	}
}

func TestEventService_RecordFailureIsLogged(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	def := f.createEvent(t, "time_trial", 1, 1)
	pid := f.register(t, "Alice")
	f.repo.SaveResultError = errors.New("disk full")

	_ = f.engine.Join(ctx, def.ID, pid)
	f.advance(4 * time.Second)
	f.lap(t, pid)
	f.drainResults()

	f.repo.SaveResultError = nil
	results, _ := f.results.ListResults(ctx, 10)
	if len(results) != 0 {
		t.Errorf("expected no stored results, got %d", len(results))
	}
}

func TestEventService_Participants(t *testing.T) {
	f := newEngineFixture(t)

	if _, err := f.engine.RegisterParticipant("   ", geom.Vec3{}); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("blank name: %v", err)
	}
	if _, err := f.engine.GetParticipant("missing"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown participant: %v", err)
	}
	if _, err := f.engine.UpdatePosition("missing", geom.Vec3{}); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown participant update: %v", err)
	}

	pid := f.register(t, "Alice")
	p, err := f.engine.UpdatePosition(pid, geom.Vec3{X: 3, Y: 1, Z: 2})
	if err != nil {
		t.Fatalf("UpdatePosition failed: %v", err)
	}
	if p.Position != (geom.Vec3{X: 3, Y: 1, Z: 2}) || p.Status != string(participant.StatusIdle) {
		t.Errorf("unexpected participant %+v", p)
	}
}

func TestEventService_JoinQR(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	def := f.createEvent(t, "race", 1, 4)

	if _, err := f.engine.JoinQR(ctx, def.ID); !errors.Is(err, services.ErrBaseURLNotSet) {
		t.Fatalf("expected ErrBaseURLNotSet, got %v", err)
	}

	_ = f.settings.SetBaseURL(ctx, "http://10.0.0.5:8080/")
	url, err := f.engine.JoinURL(ctx, def.ID)
	if err != nil {
		t.Fatalf("JoinURL failed: %v", err)
	}
	if url != "http://10.0.0.5:8080/?event="+def.ID {
		t.Errorf("url = %q", url)
	}

	png, err := f.engine.JoinQR(ctx, def.ID)
	if err != nil {
		t.Fatalf("JoinQR failed: %v", err)
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Error("expected PNG data")
	}

	if _, err := f.engine.JoinQR(ctx, "missing"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown event: %v", err)
	}
}

func TestEventService_RunStopsOnCancel(t *testing.T) {
	f := newEngineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.engine.Run(ctx, time.Millisecond)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()
}

func TestEventService_DeleteEventMissingRow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	def := f.createEvent(t, "race", 1, 2)
	f.repo.DeleteEventError = repository.ErrNotFound

	if err := f.engine.DeleteEvent(ctx, def.ID); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
}
