package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/abrezinsky/racetrial/internal/geom"
	"github.com/abrezinsky/racetrial/internal/models"
)

// Repository provides data access methods
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and applies migrations.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// One connection keeps :memory: databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

// DB returns the underlying database connection (for transactions)
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// DefaultSettings are inserted on first start and never overwrite stored values.
var DefaultSettings = map[string]string{
	"countdown_step_ms":   "1000",
	"countdown_steps":     "4",
	"resolve_timeout_ms":  "5000",
	"stats_display_ms":    "3000",
	"proximity_threshold": "4",
	"progress_style":      "smooth",
}

func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS routes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			topology TEXT NOT NULL,
			smooth BOOLEAN DEFAULT 0,
			waypoints TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			route_id INTEGER NOT NULL,
			laps INTEGER NOT NULL,
			capacity INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (route_id) REFERENCES routes(id)
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			event_name TEXT,
			kind TEXT,
			route_id INTEGER NOT NULL,
			route_name TEXT,
			participant_id TEXT NOT NULL,
			participant_name TEXT,
			laps INTEGER NOT NULL,
			place INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			finished_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_route ON events(route_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_route ON results(route_id, duration_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_results_finished ON results(finished_at)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return err
		}
	}

	// base_url is not seeded here; app.go sets it from the detected LAN address.
	for key, value := range DefaultSettings {
		if _, err := r.db.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Route Methods ====================

// ListRoutes returns all routes ordered by name.
func (r *Repository) ListRoutes(ctx context.Context) ([]models.Route, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, topology, smooth, waypoints, created_at
		FROM routes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routes := []models.Route{}
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, *rt)
	}
	return routes, rows.Err()
}

// GetRoute returns a single route.
func (r *Repository) GetRoute(ctx context.Context, id int64) (*models.Route, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, topology, smooth, waypoints, created_at
		FROM routes WHERE id = ?`, id)
	rt, err := scanRoute(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rt, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoute(s scanner) (*models.Route, error) {
	var rt models.Route
	var waypoints string
	var createdAt sql.NullTime
	if err := s.Scan(&rt.ID, &rt.Name, &rt.Topology, &rt.Smooth, &waypoints, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(waypoints), &rt.Waypoints); err != nil {
		return nil, fmt.Errorf("route %d waypoints: %w", rt.ID, err)
	}
	rt.CreatedAt = createdAt.Time
	return &rt, nil
}

// CreateRoute stores a route and returns its ID.
func (r *Repository) CreateRoute(ctx context.Context, name, topology string, smooth bool, waypoints []geom.Vec3) (int64, error) {
	data, err := json.Marshal(waypoints)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO routes (name, topology, smooth, waypoints) VALUES (?, ?, ?, ?)`,
		name, topology, smooth, string(data))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteRoute removes a route.
func (r *Repository) DeleteRoute(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM routes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// RouteNameExists reports whether a route with name exists.
func (r *Repository) RouteNameExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routes WHERE name = ?`, name).Scan(&count)
	return count > 0, err
}

// ==================== Event Methods ====================

const eventColumns = `e.id, e.name, e.kind, e.route_id, COALESCE(rt.name, ''), e.laps, e.capacity, e.created_at`

// ListEvents returns all event definitions, newest first.
func (r *Repository) ListEvents(ctx context.Context) ([]models.EventDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events e LEFT JOIN routes rt ON rt.id = e.route_id
		ORDER BY e.created_at DESC, e.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.EventDefinition{}
	for rows.Next() {
		def, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *def)
	}
	return events, rows.Err()
}

// GetEvent returns a single event definition.
func (r *Repository) GetEvent(ctx context.Context, id string) (*models.EventDefinition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM events e LEFT JOIN routes rt ON rt.id = e.route_id
		WHERE e.id = ?`, id)
	def, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return def, err
}

func scanEvent(s scanner) (*models.EventDefinition, error) {
	var def models.EventDefinition
	var createdAt sql.NullTime
	if err := s.Scan(&def.ID, &def.Name, &def.Kind, &def.RouteID, &def.RouteName, &def.Laps, &def.Capacity, &createdAt); err != nil {
		return nil, err
	}
	def.CreatedAt = createdAt.Time
	return &def, nil
}

// CreateEvent stores an event definition. The caller assigns the ID.
func (r *Repository) CreateEvent(ctx context.Context, def models.EventDefinition) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, name, kind, route_id, laps, capacity) VALUES (?, ?, ?, ?, ?, ?)`,
		def.ID, def.Name, def.Kind, def.RouteID, def.Laps, def.Capacity)
	return err
}

// DeleteEvent removes an event definition. Stored results are kept.
func (r *Repository) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// CountEventsForRoute returns how many event definitions use a route.
func (r *Repository) CountEventsForRoute(ctx context.Context, routeID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE route_id = ?`, routeID).Scan(&count)
	return count, err
}

// ==================== Result Methods ====================

// SaveResult stores a completed run.
func (r *Repository) SaveResult(ctx context.Context, res models.Result) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO results (id, event_id, event_name, kind, route_id, route_name,
			participant_id, participant_name, laps, place, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.EventID, res.EventName, res.Kind, res.RouteID, res.RouteName,
		res.ParticipantID, res.ParticipantName, res.Laps, res.Place, res.DurationMS, res.FinishedAt)
	return err
}

// ListResults returns the most recent results, newest first.
func (r *Repository) ListResults(ctx context.Context, limit int) ([]models.Result, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, event_name, kind, route_id, route_name,
			participant_id, participant_name, laps, place, duration_ms, finished_at
		FROM results ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.Result{}
	for rows.Next() {
		var res models.Result
		var eventName, kind, routeName, participantName sql.NullString
		if err := rows.Scan(&res.ID, &res.EventID, &eventName, &kind, &res.RouteID, &routeName,
			&res.ParticipantID, &participantName, &res.Laps, &res.Place, &res.DurationMS, &res.FinishedAt); err != nil {
			return nil, err
		}
		res.EventName = eventName.String
		res.Kind = kind.String
		res.RouteName = routeName.String
		res.ParticipantName = participantName.String
		results = append(results, res)
	}
	return results, rows.Err()
}

// Leaderboard returns each participant's best time on a route, fastest first.
func (r *Repository) Leaderboard(ctx context.Context, routeID int64, limit int) ([]models.LeaderboardEntry, error) {
	// SQLite takes bare columns from the row that produced MIN().
	rows, err := r.db.QueryContext(ctx, `
		SELECT participant_id, participant_name, MIN(duration_ms) AS best, COUNT(*)
		FROM results WHERE route_id = ?
		GROUP BY participant_id
		ORDER BY best ASC, participant_name ASC
		LIMIT ?`, routeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		var name sql.NullString
		if err := rows.Scan(&e.ParticipantID, &name, &e.BestMS, &e.Runs); err != nil {
			return nil, err
		}
		e.ParticipantName = name.String
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ==================== Settings Methods ====================

// GetSetting retrieves a setting value by key
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting stores a setting value
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

// validTables defines which tables can be safely cleared
var validTables = map[string]bool{
	"results": true, "events": true, "routes": true, "settings": true,
}

// ClearTable clears all data from a whitelisted table.
func (r *Repository) ClearTable(ctx context.Context, table string) error {
	if !validTables[table] {
		return ErrInvalidTable
	}
	_, err := r.db.ExecContext(ctx, "DELETE FROM "+table)
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
