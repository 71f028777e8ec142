package mock

import (
	"context"

	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/models"
	"github.com/abrezinsky/racetrial/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.SaveResultError = errors.New("database error")
//	svc := services.NewResultsService(log, mockRepo)
type Repository struct {
	repository.FullRepository

	// ===== Route Errors =====
	ListRoutesError      error
	GetRouteError        error
	CreateRouteError     error
	DeleteRouteError     error
	RouteNameExistsError error

	// ===== Event Errors =====
	ListEventsError          error
	GetEventError            error
	CreateEventError         error
	DeleteEventError         error
	CountEventsForRouteError error

	// ===== Result Errors =====
	SaveResultError  error
	ListResultsError error
	LeaderboardError error

	// ===== Settings Errors =====
	GetSettingError error
	SetSettingError error
	ClearTableError error
}

var _ repository.FullRepository = (*Repository)(nil)

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.FullRepository) *Repository {
	return &Repository{FullRepository: real}
}

// ===== Route Methods =====

func (m *Repository) ListRoutes(ctx context.Context) ([]models.Route, error) {
	if m.ListRoutesError != nil {
		return nil, m.ListRoutesError
	}
	return m.FullRepository.ListRoutes(ctx)
}

func (m *Repository) GetRoute(ctx context.Context, id int64) (*models.Route, error) {
	if m.GetRouteError != nil {
		return nil, m.GetRouteError
	}
	return m.FullRepository.GetRoute(ctx, id)
}

func (m *Repository) CreateRoute(ctx context.Context, name, topology string, smooth bool, waypoints []geom.Vec3) (int64, error) {
	if m.CreateRouteError != nil {
		return 0, m.CreateRouteError
	}
	return m.FullRepository.CreateRoute(ctx, name, topology, smooth, waypoints)
}

func (m *Repository) DeleteRoute(ctx context.Context, id int64) error {
	if m.DeleteRouteError != nil {
		return m.DeleteRouteError
	}
	return m.FullRepository.DeleteRoute(ctx, id)
}

func (m *Repository) RouteNameExists(ctx context.Context, name string) (bool, error) {
	if m.RouteNameExistsError != nil {
		return false, m.RouteNameExistsError
	}
	return m.FullRepository.RouteNameExists(ctx, name)
}

// ===== Event Methods =====

func (m *Repository) ListEvents(ctx context.Context) ([]models.EventDefinition, error) {
	if m.ListEventsError != nil {
		return nil, m.ListEventsError
	}
	return m.FullRepository.ListEvents(ctx)
}

func (m *Repository) GetEvent(ctx context.Context, id string) (*models.EventDefinition, error) {
	if m.GetEventError != nil {
		return nil, m.GetEventError
	}
	return m.FullRepository.GetEvent(ctx, id)
}

func (m *Repository) CreateEvent(ctx context.Context, def models.EventDefinition) error {
	if m.CreateEventError != nil {
		return m.CreateEventError
	}
	return m.FullRepository.CreateEvent(ctx, def)
}

func (m *Repository) DeleteEvent(ctx context.Context, id string) error {
	if m.DeleteEventError != nil {
		return m.DeleteEventError
	}
	return m.FullRepository.DeleteEvent(ctx, id)
}

func (m *Repository) CountEventsForRoute(ctx context.Context, routeID int64) (int, error) {
	if m.CountEventsForRouteError != nil {
		return 0, m.CountEventsForRouteError
	}
	return m.FullRepository.CountEventsForRoute(ctx, routeID)
}

// ===== Result Methods =====

func (m *Repository) SaveResult(ctx context.Context, r models.Result) error {
	if m.SaveResultError != nil {
		return m.SaveResultError
	}
	return m.FullRepository.SaveResult(ctx, r)
}

func (m *Repository) ListResults(ctx context.Context, limit int) ([]models.Result, error) {
	if m.ListResultsError != nil {
		return nil, m.ListResultsError
	}
	return m.FullRepository.ListResults(ctx, limit)
}

func (m *Repository) Leaderboard(ctx context.Context, routeID int64, limit int) ([]models.LeaderboardEntry, error) {
	if m.LeaderboardError != nil {
		return nil, m.LeaderboardError
	}
	return m.FullRepository.Leaderboard(ctx, routeID, limit)
}

// ===== Settings Methods =====

func (m *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	if m.GetSettingError != nil {
		return "", m.GetSettingError
	}
	return m.FullRepository.GetSetting(ctx, key)
}

func (m *Repository) SetSetting(ctx context.Context, key, value string) error {
	if m.SetSettingError != nil {
		return m.SetSettingError
	}
	return m.FullRepository.SetSetting(ctx, key, value)
}

func (m *Repository) ClearTable(ctx context.Context, table string) error {
	if m.ClearTableError != nil {
		return m.ClearTableError
	}
	return m.FullRepository.ClearTable(ctx, table)
}
