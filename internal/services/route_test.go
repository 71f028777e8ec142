package services_test

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/repository/mock"
	"github.com/abrezinsky/racetrial/internal/services"
	"github.com/abrezinsky/racetrial/internal/testutil"
)

func squareInput(name, topology string) services.RouteInput {
	return services.RouteInput{
		Name:     name,
		Topology: topology,
		Waypoints: []geom.Vec3{
			{X: 0, Z: 0}, {X: 10, Z: 0}, {X: 10, Z: 10}, {X: 0, Z: 10},
		},
	}
}

func TestRouteService_CreateAndGet(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	svc := services.NewRouteService(logger.New(), repo)
	ctx := context.Background()

	id, err := svc.CreateRoute(ctx, squareInput("  Square  ", "looped"))
	if err != nil {
		t.Fatalf("CreateRoute failed: %v", err)
	}

	rt, err := svc.GetRoute(ctx, id)
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
	if rt.Name != "Square" {
		t.Errorf("name = %q, want trimmed", rt.Name)
	}
	if rt.Length != 40 {
		t.Errorf("looped length = %v, want 40", rt.Length)
	}

	routes, err := svc.ListRoutes(ctx)
	if err != nil || len(routes) != 1 || routes[0].Length != 40 {
		t.Errorf("ListRoutes = %+v, %v", routes, err)
	}
}

func TestRouteService_LinearLength(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	svc := services.NewRouteService(logger.New(), repo)
	ctx := context.Background()

	id, err := svc.CreateRoute(ctx, squareInput("Sprint", "linear"))
	if err != nil {
		t.Fatalf("CreateRoute failed: %v", err)
	}
	rt, _ := svc.GetRoute(ctx, id)
	if rt.Length != 30 {
		t.Errorf("linear length = %v, want 30", rt.Length)
	}
}

func TestRouteService_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   services.RouteInput
	}{
		{"missing name", squareInput(" ", "looped")},
		{"bad topology", squareInput("Square", "figure8")},
		{"no waypoints", services.RouteInput{Name: "Empty", Topology: "linear"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewTestRepository(t)
			svc := services.NewRouteService(logger.New(), repo)

			_, err := svc.CreateRoute(context.Background(), tt.in)
			if !apperrors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRouteService_CreateDuplicateName(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	svc := services.NewRouteService(logger.New(), repo)
	ctx := context.Background()

	if _, err := svc.CreateRoute(ctx, squareInput("Square", "looped")); err != nil {
		t.Fatalf("CreateRoute failed: %v", err)
	}
	_, err := svc.CreateRoute(ctx, squareInput("Square", "linear"))
	if !apperrors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRouteService_GetNotFound(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	svc := services.NewRouteService(logger.New(), repo)

	_, err := svc.GetRoute(context.Background(), 999)
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Circuit(context.Background(), 999); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("Circuit: expected not found, got %v", err)
	}
}

func TestRouteService_CircuitIsShared(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	svc := services.NewRouteService(logger.New(), repo)
	ctx := context.Background()
	id := testutil.SeedRoute(t, repo, "Harbour Loop", 12)

	a, err := svc.Circuit(ctx, id)
	if err != nil {
		t.Fatalf("Circuit failed: %v", err)
	}
	b, _ := svc.Circuit(ctx, id)
	if a != b {
		t.Error("expected the same circuit instance for the same route")
	}
	if a.WaypointCount() != 12 || a.Name() != "Harbour Loop" {
		t.Errorf("unexpected circuit %s with %d waypoints", a.Name(), a.WaypointCount())
	}

	svc.ForgetCircuits()
	c, _ := svc.Circuit(ctx, id)
	if c == a {
		t.Error("expected a fresh circuit after ForgetCircuits")
	}
}

func TestRouteService_DeleteInUse(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	svc := services.NewRouteService(logger.New(), repo)
	ctx := context.Background()
	id := testutil.SeedRoute(t, repo, "Harbour Loop", 8)

	if err := repo.CreateEvent(ctx, testEventDefinition("ev-1", id)); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if err := svc.DeleteRoute(ctx, id); !apperrors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := repo.DeleteEvent(ctx, "ev-1"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if err := svc.DeleteRoute(ctx, id); err != nil {
		t.Fatalf("DeleteRoute failed: %v", err)
	}
	if err := svc.DeleteRoute(ctx, id); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestRouteService_RepositoryErrors(t *testing.T) {
	mockRepo := mock.NewRepository(testutil.NewTestRepository(t))
	svc := services.NewRouteService(logger.New(), mockRepo)
	ctx := context.Background()

	mockRepo.ListRoutesError = errors.New("boom")
	if _, err := svc.ListRoutes(ctx); err == nil {
		t.Error("expected ListRoutes error")
	}

	mockRepo.RouteNameExistsError = errors.New("boom")
	if _, err := svc.CreateRoute(ctx, squareInput("Square", "looped")); err == nil {
		t.Error("expected CreateRoute error from name check")
	}
	mockRepo.RouteNameExistsError = nil

	mockRepo.CreateRouteError = errors.New("boom")
	if _, err := svc.CreateRoute(ctx, squareInput("Square", "looped")); err == nil {
		t.Error("expected CreateRoute error")
	}

	mockRepo.CountEventsForRouteError = errors.New("boom")
	if err := svc.DeleteRoute(ctx, 1); err == nil {
		t.Error("expected DeleteRoute error")
	}
}
