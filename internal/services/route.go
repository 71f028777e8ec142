package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/models"
	"github.com/abrezinsky/racetrial/internal/repository"
	"github.com/abrezinsky/racetrial/internal/route"
)

// RouteServiceRepository is what RouteService needs from storage.
type RouteServiceRepository interface {
	repository.RouteRepository
	CountEventsForRoute(ctx context.Context, routeID int64) (int, error)
}

// RouteInput is the data needed to create a route.
type RouteInput struct {
	Name      string      `json:"name"`
	Topology  string      `json:"topology"`
	Smooth    bool        `json:"smooth"`
	Waypoints []geom.Vec3 `json:"waypoints"`
}

// RouteService manages stored routes and the circuits built from them.
type RouteService struct {
	log  logger.Logger
	repo RouteServiceRepository

	mu       sync.Mutex
	circuits map[int64]*route.Circuit
}

// NewRouteService creates a new RouteService
func NewRouteService(log logger.Logger, repo RouteServiceRepository) *RouteService {
	return &RouteService{
		log:      log,
		repo:     repo,
		circuits: make(map[int64]*route.Circuit),
	}
}

// ListRoutes returns every stored route with its computed length.
func (s *RouteService) ListRoutes(ctx context.Context) ([]models.Route, error) {
	routes, err := s.repo.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		if c, err := buildCircuit(&routes[i]); err == nil {
			routes[i].Length = c.Length()
		}
	}
	return routes, nil
}

// GetRoute returns a single route.
func (s *RouteService) GetRoute(ctx context.Context, id int64) (*models.Route, error) {
	rt, err := s.repo.GetRoute(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFoundf("route %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	if c, err := buildCircuit(rt); err == nil {
		rt.Length = c.Length()
	}
	return rt, nil
}

// CreateRoute validates and stores a new route.
func (s *RouteService) CreateRoute(ctx context.Context, in RouteInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return 0, apperrors.Validation("route name is required")
	}
	topo, err := route.ParseTopology(in.Topology)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrValidation, "invalid topology")
	}
	if _, err := route.NewCircuit(in.Name, topo, in.Waypoints, in.Smooth); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrValidation, "invalid route")
	}

	exists, err := s.repo.RouteNameExists(ctx, in.Name)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, apperrors.Conflictf("route %q already exists", in.Name)
	}

	id, err := s.repo.CreateRoute(ctx, in.Name, string(topo), in.Smooth, in.Waypoints)
	if err != nil {
		return 0, err
	}
	s.log.Info("Route created", "id", id, "name", in.Name, "waypoints", len(in.Waypoints))
	return id, nil
}

// DeleteRoute removes a route that no event uses.
func (s *RouteService) DeleteRoute(ctx context.Context, id int64) error {
	n, err := s.repo.CountEventsForRoute(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperrors.Conflictf("route %d is used by %d event(s)", id, n)
	}
	if err := s.repo.DeleteRoute(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFoundf("route %d not found", id)
		}
		return err
	}

	s.mu.Lock()
	delete(s.circuits, id)
	s.mu.Unlock()
	s.log.Info("Route deleted", "id", id)
	return nil
}

// Circuit returns the circuit for a stored route. The same instance is returned for
// the same route so events can compare routes by identity.
func (s *RouteService) Circuit(ctx context.Context, id int64) (*route.Circuit, error) {
	s.mu.Lock()
	if c, ok := s.circuits[id]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	rt, err := s.GetRoute(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := buildCircuit(rt)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation, "stored route is invalid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.circuits[id]; ok {
		return existing, nil
	}
	s.circuits[id] = c
	return c, nil
}

// ForgetCircuits drops every cached circuit.
func (s *RouteService) ForgetCircuits() {
	s.mu.Lock()
	s.circuits = make(map[int64]*route.Circuit)
	s.mu.Unlock()
}

func buildCircuit(rt *models.Route) (*route.Circuit, error) {
	topo, err := route.ParseTopology(rt.Topology)
	if err != nil {
		return nil, err
	}
	return route.NewCircuit(rt.Name, topo, rt.Waypoints, rt.Smooth)
}
