package testutil

import (
	"context"
	"testing"

	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/repository"
)

// NewTestRepository creates a new in-memory repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

// CircleWaypoints returns n waypoints evenly spaced on a circle of the given radius.
func CircleWaypoints(n int, radius float64) []geom.Vec3 {
	return geom.Circle(n, radius)
}

// SeedRoute stores a looped circle route and returns its ID.
func SeedRoute(t *testing.T, repo repository.RouteRepository, name string, waypoints int) int64 {
	t.Helper()
	id, err := repo.CreateRoute(context.Background(), name, "looped", false, CircleWaypoints(waypoints, 40))
	if err != nil {
		t.Fatalf("failed to seed route: %v", err)
	}
	return id
}
