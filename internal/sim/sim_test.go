package sim

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewWithWriter(io.Discard, slog.LevelDebug)
}

func loopScenario(kind string, laps int, riders ...ParticipantSpec) *Scenario {
	return &Scenario{
		Name:  "test",
		Route: RouteSpec{Name: "Ring", Topology: "looped", Circle: &CircleSpec{Points: 12, Radius: 30}},
		Event: EventSpec{Name: "Heat", Kind: kind, Laps: laps},
		Timing: TimingSpec{
			CountdownStepMS:  200,
			ResolveTimeoutMS: 500,
		},
		TickMS:       20,
		MaxSeconds:   300,
		Participants: riders,
	}
}

func run(t *testing.T, sc *Scenario) *Report {
	t.Helper()
	rep, err := Run(context.Background(), sc, testLogger())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return rep
}

func TestRun_TimeTrialCompletes(t *testing.T) {
	rep := run(t, loopScenario("time_trial", 2, ParticipantSpec{Name: "Solo", Speed: 15}))

	if rep.TimedOut {
		t.Fatal("time trial timed out")
	}
	if len(rep.Completions) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(rep.Completions))
	}
	c := rep.Completions[0]
	if c.ParticipantName != "Solo" || c.Place != 1 || c.Laps != 2 {
		t.Errorf("unexpected completion %+v", c)
	}

	// Two laps of the ring at 15 m/s cannot be quicker than the distance allows.
	minimum := 2 * rep.RouteLength / 15
	if c.Duration.Seconds() < minimum*0.9 {
		t.Errorf("completion in %v is faster than physically possible (%.1fs)", c.Duration, minimum)
	}
}

func TestRun_CountdownSequence(t *testing.T) {
	rep := run(t, loopScenario("time_trial", 1, ParticipantSpec{Name: "Solo", Speed: 15}))

	want := []string{"Ready", "3", "2", "1", "Start!"}
	if len(rep.Countdown) < len(want)+1 {
		t.Fatalf("countdown = %v", rep.Countdown)
	}
	for i, label := range want {
		if rep.Countdown[i] != label {
			t.Errorf("label %d = %q, want %q", i, rep.Countdown[i], label)
		}
	}
	if last := rep.Countdown[len(want)]; !strings.HasPrefix(last, "Time: ") {
		t.Errorf("expected stats label after the start, got %q", last)
	}
}

func TestRun_RaceOrdersByPace(t *testing.T) {
	sc := loopScenario("race", 1,
		ParticipantSpec{Name: "Slow", Speed: 8},
		ParticipantSpec{Name: "Fast", Speed: 14, JoinAfterMS: 100},
	)
	sc.Event.Capacity = 2
	rep := run(t, sc)

	if len(rep.Completions) != 2 {
		t.Fatalf("expected 2 completions, got %+v", rep.Completions)
	}
	if rep.Completions[0].ParticipantName != "Fast" || rep.Completions[0].Place != 1 {
		t.Errorf("expected Fast to win, got %+v", rep.Completions[0])
	}
	if rep.Completions[1].Place != 2 || rep.Completions[1].Duration <= rep.Completions[0].Duration {
		t.Errorf("unexpected second place %+v", rep.Completions[1])
	}
}

func TestRun_JoinRejections(t *testing.T) {
	t.Run("time trial is single entry", func(t *testing.T) {
		rep := run(t, loopScenario("time_trial", 1,
			ParticipantSpec{Name: "First", Speed: 15},
			ParticipantSpec{Name: "Second", Speed: 15},
		))
		if _, ok := rep.JoinErrors["Second"]; !ok {
			t.Errorf("expected Second to be rejected, got %v", rep.JoinErrors)
		}
		if len(rep.Completions) != 1 {
			t.Errorf("expected 1 completion, got %d", len(rep.Completions))
		}
	})

	t.Run("race already started", func(t *testing.T) {
		sc := loopScenario("race", 1,
			ParticipantSpec{Name: "Early", Speed: 10},
			ParticipantSpec{Name: "Late", Speed: 10, JoinAfterMS: 2000},
		)
		sc.Event.Capacity = 2
		rep := run(t, sc)
		if msg, ok := rep.JoinErrors["Late"]; !ok || !strings.Contains(msg, "in progress") {
			t.Errorf("expected Late to be rejected while in progress, got %v", rep.JoinErrors)
		}
	})

	t.Run("race full", func(t *testing.T) {
		sc := loopScenario("race", 1,
			ParticipantSpec{Name: "A", Speed: 10},
			ParticipantSpec{Name: "B", Speed: 10},
			ParticipantSpec{Name: "C", Speed: 10},
		)
		sc.Event.Capacity = 2
		rep := run(t, sc)
		if _, ok := rep.JoinErrors["C"]; !ok {
			t.Errorf("expected C to be rejected, got %v", rep.JoinErrors)
		}
		if len(rep.Completions) != 2 {
			t.Errorf("expected 2 completions, got %d", len(rep.Completions))
		}
	})
}

func TestRun_LinearRouteOutAndBack(t *testing.T) {
	sc := &Scenario{
		Name: "sprint",
		Route: RouteSpec{Name: "Pier", Topology: "linear", Waypoints: []geom.Vec3{
			{X: 0}, {X: 25}, {X: 50}, {X: 75}, {X: 100},
		}},
		Event:        EventSpec{Kind: "time_trial", Laps: 2},
		Timing:       TimingSpec{CountdownStepMS: 100, ResolveTimeoutMS: 100},
		TickMS:       20,
		MaxSeconds:   120,
		Participants: []ParticipantSpec{{Name: "Runner", Speed: 10}},
	}
	rep := run(t, sc)

	if len(rep.Completions) != 1 {
		t.Fatalf("expected completion, report %+v", rep)
	}
	// Two linear laps run out to the far end and back again.
	if got := rep.Completions[0].Duration.Seconds(); got < 2*100/10*0.9 {
		t.Errorf("two linear laps took %.1fs, expected at least the out-and-back distance", got)
	}
}

func TestRun_TimesOutWhenStationary(t *testing.T) {
	sc := loopScenario("time_trial", 1, ParticipantSpec{Name: "Parked", Speed: 0})
	sc.MaxSeconds = 5
	rep := run(t, sc)

	if !rep.TimedOut {
		t.Fatal("expected timeout")
	}
	if len(rep.Unfinished) != 1 || rep.Unfinished[0].Name != "Parked" {
		t.Errorf("unexpected unfinished %+v", rep.Unfinished)
	}
	if len(rep.Completions) != 0 {
		t.Errorf("expected no completions, got %d", len(rep.Completions))
	}
}

func TestRun_PointStyle(t *testing.T) {
	sc := loopScenario("time_trial", 1, ParticipantSpec{Name: "Hopper", Speed: 12})
	sc.Timing.ProgressStyle = "point"
	rep := run(t, sc)

	if rep.TimedOut || len(rep.Completions) != 1 {
		t.Errorf("point style run did not complete: %+v", rep)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, loopScenario("time_trial", 1, ParticipantSpec{Name: "Solo", Speed: 15}), testLogger())
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLoadScenario(t *testing.T) {
	good := `{
		"name": "harbour",
		"route": {"name": "Harbour", "topology": "looped", "circle": {"points": 10, "radius": 40}},
		"event": {"kind": "race", "laps": 2},
		"participants": [{"name": "A", "speed": 10}, {"name": "B", "speed": 11}]
	}`
	sc, err := LoadScenario(strings.NewReader(good))
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	if sc.TickMS != defaultTickMS || sc.MaxSeconds != defaultMaxSeconds {
		t.Errorf("defaults not applied: %+v", sc)
	}
	if sc.Event.Capacity != 2 || sc.Event.Name != "harbour" {
		t.Errorf("event defaults not applied: %+v", sc.Event)
	}

	tests := []struct {
		name string
		json string
		kind apperrors.Kind
	}{
		{"malformed", `{"name":`, apperrors.ErrInvalidInput},
		{"unknown field", `{"nme": "x"}`, apperrors.ErrInvalidInput},
		{"bad kind", `{"route": {"topology": "looped", "circle": {"points": 4, "radius": 5}}, "event": {"kind": "drag"}, "participants": [{"name": "A"}]}`, apperrors.ErrValidation},
		{"bad topology", `{"route": {"topology": "spiral", "circle": {"points": 4, "radius": 5}}, "event": {"kind": "race"}, "participants": [{"name": "A"}]}`, apperrors.ErrValidation},
		{"no waypoints", `{"route": {"topology": "looped"}, "event": {"kind": "race"}, "participants": [{"name": "A"}]}`, apperrors.ErrValidation},
		{"no participants", `{"route": {"topology": "looped", "circle": {"points": 4, "radius": 5}}, "event": {"kind": "race"}}`, apperrors.ErrValidation},
		{"negative speed", `{"route": {"topology": "looped", "circle": {"points": 4, "radius": 5}}, "event": {"kind": "race"}, "participants": [{"name": "A", "speed": -1}]}`, apperrors.ErrValidation},
		{"bad style", `{"route": {"topology": "looped", "circle": {"points": 4, "radius": 5}}, "event": {"kind": "race"}, "timing": {"progress_style": "warp"}, "participants": [{"name": "A"}]}`, apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(strings.NewReader(tt.json))
			if !apperrors.Is(err, tt.kind) {
				t.Errorf("expected %v error, got %v", tt.kind, err)
			}
		})
	}
}

func TestRenderResults(t *testing.T) {
	sc := loopScenario("race", 1,
		ParticipantSpec{Name: "Fast", Speed: 14},
		ParticipantSpec{Name: "Slow", Speed: 9},
		ParticipantSpec{Name: "Extra", Speed: 9},
	)
	sc.Event.Capacity = 2
	rep := run(t, sc)

	var buf bytes.Buffer
	RenderResults(&buf, rep)
	out := buf.String()

	for _, want := range []string{"Heat", "Ring", "Fast", "Slow", "DNS", "Extra", "finished", "+"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered table missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Fast") > strings.Index(out, "Slow") {
		t.Errorf("Fast should be listed before Slow:\n%s", out)
	}
}

func TestRenderResults_TimedOut(t *testing.T) {
	rep := &Report{
		Event: "Heat", Kind: event.TimeTrial, Route: "Ring", Laps: 1,
		Unfinished: []Standing{{Name: "Parked"}},
		TimedOut:   true,
	}
	var buf bytes.Buffer
	RenderResults(&buf, rep)
	if out := buf.String(); !strings.Contains(out, "DNF") || !strings.Contains(out, "timed out") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
