package services

import (
	"context"
	"time"

	"github.com/abrezinsky/racetrial/internal/event"
	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/models"
	"github.com/abrezinsky/racetrial/internal/progress"
)

// RouteServicer defines the interface for route operations
type RouteServicer interface {
	CircuitSource
	ListRoutes(ctx context.Context) ([]models.Route, error)
	GetRoute(ctx context.Context, id int64) (*models.Route, error)
	CreateRoute(ctx context.Context, in RouteInput) (int64, error)
	DeleteRoute(ctx context.Context, id int64) error
	ForgetCircuits()
}

// EventServicer defines the interface for event engine operations
type EventServicer interface {
	LoadEvents(ctx context.Context) error
	CreateEvent(ctx context.Context, in EventInput) (*models.EventDefinition, error)
	ListEvents(ctx context.Context) ([]EventView, error)
	GetEvent(ctx context.Context, id string) (*EventView, error)
	DeleteEvent(ctx context.Context, id string) error
	Snapshots() []event.Snapshot
	RegisterParticipant(name string, position geom.Vec3) (*models.Participant, error)
	GetParticipant(id string) (*ParticipantView, error)
	ParticipantProgress(id string) (*progress.State, error)
	UpdatePosition(id string, position geom.Vec3) (*models.Participant, error)
	Join(ctx context.Context, eventID, participantID string) error
	Leave(ctx context.Context, eventID, participantID string) error
	Target(eventID, participantID string) (geom.Vec3, bool)
	TickAll(dt time.Duration)
	Run(ctx context.Context, tickRate time.Duration)
	RunResultWriter(ctx context.Context)
	JoinURL(ctx context.Context, eventID string) (string, error)
	JoinQR(ctx context.Context, eventID string) ([]byte, error)
}

// SettingsServicer defines the interface for settings operations
type SettingsServicer interface {
	EngineSettings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	SetBaseURL(ctx context.Context, url string) error
	Get(ctx context.Context) (models.Settings, error)
	Update(ctx context.Context, u SettingsUpdate) error
	ResetTables(ctx context.Context, tables []string) (*ResetTablesResult, error)
}

// ResultsServicer defines the interface for results operations
type ResultsServicer interface {
	ResultRecorder
	ListResults(ctx context.Context, limit int) ([]models.Result, error)
	Leaderboard(ctx context.Context, routeID int64, limit int) ([]models.LeaderboardEntry, error)
	ResetResults(ctx context.Context) error
	SetBroadcaster(b Broadcaster)
}

// Ensure concrete types implement interfaces
var (
	_ RouteServicer    = (*RouteService)(nil)
	_ EventServicer    = (*EventService)(nil)
	_ SettingsServicer = (*SettingsService)(nil)
	_ ResultsServicer  = (*ResultsService)(nil)
)
