package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/models"
	"github.com/abrezinsky/racetrial/internal/progress"
	"github.com/abrezinsky/racetrial/internal/repository"
)

// Setting keys.
const (
	KeyCountdownStepMS    = "countdown_step_ms"
	KeyCountdownSteps     = "countdown_steps"
	KeyResolveTimeoutMS   = "resolve_timeout_ms"
	KeyStatsDisplayMS     = "stats_display_ms"
	KeyProximityThreshold = "proximity_threshold"
	KeyProgressStyle      = "progress_style"
	KeyBaseURL            = "base_url"
)

// SettingsService handles engine tuning and other stored settings.
type SettingsService struct {
	log  logger.Logger
	repo repository.SettingsRepository
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(log logger.Logger, repo repository.SettingsRepository) *SettingsService {
	return &SettingsService{log: log, repo: repo}
}

// GetSetting retrieves an arbitrary setting
func (s *SettingsService) GetSetting(ctx context.Context, key string) (string, error) {
	return s.repo.GetSetting(ctx, key)
}

// SetSetting saves an arbitrary setting
func (s *SettingsService) SetSetting(ctx context.Context, key, value string) error {
	return s.repo.SetSetting(ctx, key, value)
}

// GetBaseURL returns the application base URL, or "" when not yet configured.
func (s *SettingsService) GetBaseURL(ctx context.Context) (string, error) {
	value, err := s.repo.GetSetting(ctx, KeyBaseURL)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	return value, err
}

// SetBaseURL saves the application base URL
func (s *SettingsService) SetBaseURL(ctx context.Context, url string) error {
	return s.repo.SetSetting(ctx, KeyBaseURL, url)
}

// Get returns the engine settings. Missing or unparsable values fall back to defaults;
// storage errors are returned.
func (s *SettingsService) Get(ctx context.Context) (models.Settings, error) {
	out := defaultSettings()

	ints := map[string]*int{
		KeyCountdownStepMS:  &out.CountdownStepMS,
		KeyCountdownSteps:   &out.CountdownSteps,
		KeyResolveTimeoutMS: &out.ResolveTimeoutMS,
		KeyStatsDisplayMS:   &out.StatsDisplayMS,
	}
	for key, dst := range ints {
		raw, ok, err := s.lookup(ctx, key)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		} else {
			s.log.Warn("Ignoring invalid setting", "key", key, "value", raw)
		}
	}

	raw, ok, err := s.lookup(ctx, KeyProximityThreshold)
	if err != nil {
		return out, err
	}
	if ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			out.ProximityThreshold = v
		}
	}

	raw, ok, err = s.lookup(ctx, KeyProgressStyle)
	if err != nil {
		return out, err
	}
	if ok && (raw == string(progress.Smooth) || raw == string(progress.Point)) {
		out.ProgressStyle = raw
	}
	return out, nil
}

func (s *SettingsService) lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := s.repo.GetSetting(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func defaultSettings() models.Settings {
	cfg := event.DefaultConfig()
	return models.Settings{
		CountdownStepMS:    int(cfg.CountdownStep / time.Millisecond),
		CountdownSteps:     cfg.CountdownSteps,
		ResolveTimeoutMS:   int(cfg.ResolveTimeout / time.Millisecond),
		StatsDisplayMS:     int(cfg.StatsDisplay / time.Millisecond),
		ProximityThreshold: cfg.Tracker.PointThreshold,
		ProgressStyle:      string(cfg.Tracker.Style),
	}
}

// SettingsUpdate carries the fields an admin wants to change. Nil fields are left as is.
type SettingsUpdate struct {
	CountdownStepMS    *int     `json:"countdown_step_ms"`
	CountdownSteps     *int     `json:"countdown_steps"`
	ResolveTimeoutMS   *int     `json:"resolve_timeout_ms"`
	StatsDisplayMS     *int     `json:"stats_display_ms"`
	ProximityThreshold *float64 `json:"proximity_threshold"`
	ProgressStyle      *string  `json:"progress_style"`
}

// Update validates every provided field and then stores them. Nothing is written when any
// field is invalid.
func (s *SettingsService) Update(ctx context.Context, u SettingsUpdate) error {
	writes := map[string]string{}

	checkInt := func(key string, v *int, lo, hi int) error {
		if v == nil {
			return nil
		}
		if *v < lo || *v > hi {
			return apperrors.Validationf("%s must be between %d and %d", key, lo, hi)
		}
		writes[key] = strconv.Itoa(*v)
		return nil
	}
	if err := checkInt(KeyCountdownStepMS, u.CountdownStepMS, 100, 10000); err != nil {
		return err
	}
	if err := checkInt(KeyCountdownSteps, u.CountdownSteps, 1, 10); err != nil {
		return err
	}
	if err := checkInt(KeyResolveTimeoutMS, u.ResolveTimeoutMS, 0, 60000); err != nil {
		return err
	}
	if err := checkInt(KeyStatsDisplayMS, u.StatsDisplayMS, 0, 60000); err != nil {
		return err
	}
	if u.ProximityThreshold != nil {
		if *u.ProximityThreshold <= 0 || *u.ProximityThreshold > 100 {
			return apperrors.Validation("proximity_threshold must be greater than 0 and at most 100")
		}
		writes[KeyProximityThreshold] = strconv.FormatFloat(*u.ProximityThreshold, 'f', -1, 64)
	}
	if u.ProgressStyle != nil {
		style := progress.Style(*u.ProgressStyle)
		if style != progress.Smooth && style != progress.Point {
			return apperrors.Validationf("progress_style must be %q or %q", progress.Smooth, progress.Point)
		}
		writes[KeyProgressStyle] = string(style)
	}

	for key, value := range writes {
		if err := s.repo.SetSetting(ctx, key, value); err != nil {
			return err
		}
	}
	if len(writes) > 0 {
		s.log.Info("Engine settings updated", "fields", len(writes))
	}
	return nil
}

// EventConfig converts the stored settings into event timing for the next formation.
func (s *SettingsService) EventConfig(ctx context.Context) (event.Config, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return event.Config{}, err
	}
	cfg := event.DefaultConfig()
	cfg.CountdownStep = time.Duration(st.CountdownStepMS) * time.Millisecond
	cfg.CountdownSteps = st.CountdownSteps
	cfg.ResolveTimeout = time.Duration(st.ResolveTimeoutMS) * time.Millisecond
	cfg.StatsDisplay = time.Duration(st.StatsDisplayMS) * time.Millisecond
	cfg.Tracker.PointThreshold = st.ProximityThreshold
	cfg.Tracker.Style = progress.Style(st.ProgressStyle)
	return cfg, nil
}

// ResetTablesResult contains the result of a database reset
type ResetTablesResult struct {
	Tables  []string `json:"tables"`
	Message string   `json:"message"`
}

// ValidTables defines which tables can be reset
var ValidTables = map[string]bool{
	"results": true, "events": true, "routes": true, "settings": true,
}

// ResetTables clears the given tables. Clearing routes also clears the events that
// reference them.
func (s *SettingsService) ResetTables(ctx context.Context, tables []string) (*ResetTablesResult, error) {
	if len(tables) == 0 {
		return nil, ErrNoTablesSpecified
	}
	for _, table := range tables {
		if !ValidTables[table] {
			return nil, &InvalidTableError{Table: table}
		}
	}

	toReset := append([]string(nil), tables...)
	if containsTable(toReset, "routes") && !containsTable(toReset, "events") {
		toReset = append([]string{"events"}, toReset...)
	}
	// events must go before routes for the foreign key.
	if i, j := indexOf(toReset, "events"), indexOf(toReset, "routes"); i > j && j >= 0 {
		toReset[i], toReset[j] = toReset[j], toReset[i]
	}

	for _, table := range toReset {
		if err := s.repo.ClearTable(ctx, table); err != nil {
			return nil, err
		}
	}
	s.log.Info("Tables reset", "tables", toReset)

	return &ResetTablesResult{
		Tables:  toReset,
		Message: "Successfully deleted data from tables",
	}, nil
}

func containsTable(slice []string, item string) bool {
	return indexOf(slice, item) >= 0
}

func indexOf(slice []string, item string) int {
	for i, s := range slice {
		if s == item {
			return i
		}
	}
	return -1
}
