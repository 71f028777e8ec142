package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/models"
	"github.com/abrezinsky/racetrial/internal/repository"
)

// Broadcaster sends a message to every connected live board.
type Broadcaster interface {
	BroadcastMessage(msgType string, payload any)
}

// ResultsServiceRepository is what ResultsService needs from storage.
type ResultsServiceRepository interface {
	repository.ResultRepository
	ClearTable(ctx context.Context, table string) error
}

const (
	defaultResultLimit = 50
	maxResultLimit     = 500
)

// ResultsService stores completed runs and builds leaderboards.
type ResultsService struct {
	log         logger.Logger
	repo        ResultsServiceRepository
	broadcaster Broadcaster
}

// NewResultsService creates a new ResultsService
func NewResultsService(log logger.Logger, repo ResultsServiceRepository) *ResultsService {
	return &ResultsService{log: log, repo: repo}
}

// SetBroadcaster sets where newly recorded results are announced.
func (s *ResultsService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Record stores a result and announces it.
func (s *ResultsService) Record(ctx context.Context, r models.Result) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ParticipantID == "" || r.EventID == "" {
		return apperrors.Validation("result needs an event and a participant")
	}
	r.Time = formatMS(r.DurationMS)

	if err := s.repo.SaveResult(ctx, r); err != nil {
		return err
	}
	s.log.Info("Result recorded", "event", r.EventID, "participant", r.ParticipantID, "time", r.Time, "place", r.Place)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage(models.MsgResult, r)
	}
	return nil
}

// ListResults returns recent results, newest first.
func (s *ResultsService) ListResults(ctx context.Context, limit int) ([]models.Result, error) {
	results, err := s.repo.ListResults(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Time = formatMS(results[i].DurationMS)
	}
	return results, nil
}

// Leaderboard returns the best time per participant on a route.
func (s *ResultsService) Leaderboard(ctx context.Context, routeID int64, limit int) ([]models.LeaderboardEntry, error) {
	entries, err := s.repo.Leaderboard(ctx, routeID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Time = formatMS(entries[i].BestMS)
	}
	return entries, nil
}

// ResetResults deletes every stored result.
func (s *ResultsService) ResetResults(ctx context.Context) error {
	if err := s.repo.ClearTable(ctx, "results"); err != nil {
		return err
	}
	s.log.Info("Results reset")
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultResultLimit
	}
	if limit > maxResultLimit {
		return maxResultLimit
	}
	return limit
}

func formatMS(ms int64) string {
	return event.FormatDuration(time.Duration(ms) * time.Millisecond)
}
