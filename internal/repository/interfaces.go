package repository

import (
	"context"

	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/models"
)

// RouteRepository defines route data operations
type RouteRepository interface {
	ListRoutes(ctx context.Context) ([]models.Route, error)
	GetRoute(ctx context.Context, id int64) (*models.Route, error)
	CreateRoute(ctx context.Context, name, topology string, smooth bool, waypoints []geom.Vec3) (int64, error)
	DeleteRoute(ctx context.Context, id int64) error
	RouteNameExists(ctx context.Context, name string) (bool, error)
}

// EventRepository defines event definition data operations
type EventRepository interface {
	ListEvents(ctx context.Context) ([]models.EventDefinition, error)
	GetEvent(ctx context.Context, id string) (*models.EventDefinition, error)
	CreateEvent(ctx context.Context, def models.EventDefinition) error
	DeleteEvent(ctx context.Context, id string) error
	CountEventsForRoute(ctx context.Context, routeID int64) (int, error)
}

// ResultRepository defines result data operations
type ResultRepository interface {
	SaveResult(ctx context.Context, r models.Result) error
	ListResults(ctx context.Context, limit int) ([]models.Result, error)
	Leaderboard(ctx context.Context, routeID int64, limit int) ([]models.LeaderboardEntry, error)
}

// SettingsRepository defines settings data operations
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ClearTable(ctx context.Context, table string) error
}

// FullRepository combines all repository interfaces
// Use this when a service needs access to multiple domains
type FullRepository interface {
	RouteRepository
	EventRepository
	ResultRepository
	SettingsRepository
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)
