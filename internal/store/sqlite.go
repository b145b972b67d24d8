package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id          TEXT PRIMARY KEY,
	shipment_id TEXT,
	route_id    TEXT,
	origin      TEXT NOT NULL,
	destination TEXT NOT NULL,
	risk_score  REAL NOT NULL,
	risk_level  TEXT NOT NULL,
	data        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS signal_snapshots (
	id          TEXT PRIMARY KEY,
	route_id    TEXT NOT NULL,
	source      TEXT NOT NULL,
	category    TEXT NOT NULL,
	title       TEXT NOT NULL,
	severity    REAL NOT NULL,
	location    TEXT,
	observed_at DATETIME NOT NULL,
	metadata    TEXT,
	collected_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS optimizations (
	id           TEXT PRIMARY KEY,
	origin       TEXT NOT NULL,
	destination  TEXT NOT NULL,
	best_route   TEXT,
	data         TEXT NOT NULL,
	optimized_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_actions (
	id          TEXT PRIMARY KEY,
	shipment_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	data        TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	ts          DATETIME NOT NULL,
	level       TEXT NOT NULL,
	category    TEXT NOT NULL,
	message     TEXT NOT NULL,
	shipment_id TEXT,
	route_id    TEXT,
	action_id   TEXT,
	details     TEXT
);

CREATE INDEX IF NOT EXISTS idx_assessments_route ON assessments(route_id);
CREATE INDEX IF NOT EXISTS idx_assessments_shipment ON assessments(shipment_id);
CREATE INDEX IF NOT EXISTS idx_signal_snapshots_route ON signal_snapshots(route_id);
CREATE INDEX IF NOT EXISTS idx_execution_actions_shipment ON execution_actions(shipment_id);
CREATE INDEX IF NOT EXISTS idx_execution_actions_status ON execution_actions(status);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, shipmentID string, a model.RiskAssessment) (*AssessmentRecord, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal assessment")
	}
	rec := &AssessmentRecord{
		ID:         uuid.New().String(),
		ShipmentID: shipmentID,
		Assessment: a,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, shipment_id, route_id, origin, destination, risk_score, risk_level, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, shipmentID, a.RouteID, a.Origin, a.Destination, a.OverallRiskScore, string(a.RiskLevel), string(data), rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert assessment")
	}
	return rec, nil
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]AssessmentRecord, error) {
	query := `SELECT id, shipment_id, data, created_at FROM assessments WHERE 1=1`
	var args []any
	if filter.RouteID != "" {
		query += ` AND route_id = ?`
		args = append(args, filter.RouteID)
	}
	if filter.ShipmentID != "" {
		query += ` AND shipment_id = ?`
		args = append(args, filter.ShipmentID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessments")
	}
	defer rows.Close() //nolint:errcheck

	var out []AssessmentRecord
	for rows.Next() {
		var rec AssessmentRecord
		var shipment sql.NullString
		var data string
		if err := rows.Scan(&rec.ID, &shipment, &data, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		rec.ShipmentID = shipment.String
		if err := json.Unmarshal([]byte(data), &rec.Assessment); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal assessment")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assessments iterate")
}

func (s *SQLiteStore) SaveSignals(ctx context.Context, routeID string, signals []model.Signal) (int64, error) {
	if len(signals) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin signals tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO signal_snapshots (id, route_id, source, category, title, severity, location, observed_at, metadata, collected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare signal insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, sig := range signals {
		meta, err := json.Marshal(sig.Metadata)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal signal metadata")
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), routeID, sig.Source, string(sig.Category), sig.Title,
			sig.Severity, sig.Location, sig.Timestamp.UTC(), string(meta), now,
		); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert signal")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit signals")
	}
	return int64(len(signals)), nil
}

func (s *SQLiteStore) SaveOptimization(ctx context.Context, r *model.OptimizationResult) error {
	if r == nil {
		return eris.New("sqlite: nil optimization result")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal optimization")
	}
	var best string
	if b := r.Best(); b != nil {
		best = b.RouteID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO optimizations (id, origin, destination, best_route, data, optimized_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET best_route = excluded.best_route, data = excluded.data, optimized_at = excluded.optimized_at`,
		r.ID, r.OriginalRoute.Origin, r.OriginalRoute.Destination, best, string(data), r.OptimizedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save optimization %s", r.ID)
}

func (s *SQLiteStore) GetOptimization(ctx context.Context, id string) (*model.OptimizationResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM optimizations WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "optimization %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get optimization %s", id)
	}
	var r model.OptimizationResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal optimization")
	}
	return &r, nil
}

func (s *SQLiteStore) SaveAction(ctx context.Context, a *model.ExecutionAction) error {
	if a == nil {
		return eris.New("sqlite: nil action")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal action")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_actions (id, shipment_id, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data, updated_at = excluded.updated_at`,
		a.ActionID, a.ShipmentID, string(a.Status), string(data), a.CreatedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save action %s", a.ActionID)
}

func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*model.ExecutionAction, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM execution_actions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "action %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get action %s", id)
	}
	var a model.ExecutionAction
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal action")
	}
	return &a, nil
}

func (s *SQLiteStore) ListActions(ctx context.Context, filter ActionFilter) ([]model.ExecutionAction, error) {
	query := `SELECT data FROM execution_actions WHERE 1=1`
	var args []any
	if filter.ShipmentID != "" {
		query += ` AND shipment_id = ?`
		args = append(args, filter.ShipmentID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list actions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ExecutionAction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan action")
		}
		var a model.ExecutionAction
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal action")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list actions iterate")
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, e events.Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event details")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, ts, level, category, message, shipment_id, route_id, action_id, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC(), string(e.Level), string(e.Category), e.Message,
		e.ShipmentID, e.RouteID, e.ActionID, string(details),
	)
	return eris.Wrap(err, "sqlite: insert event")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter events.Filter) ([]events.Event, error) {
	query := `SELECT id, ts, level, category, message, shipment_id, route_id, action_id, details FROM events WHERE 1=1`
	var args []any
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.Level != "" {
		query += ` AND level = ?`
		args = append(args, string(filter.Level))
	}
	if filter.ShipmentID != "" {
		query += ` AND shipment_id = ?`
		args = append(args, filter.ShipmentID)
	}
	if filter.RouteID != "" {
		query += ` AND route_id = ?`
		args = append(args, filter.RouteID)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close() //nolint:errcheck

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var shipment, route, action, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Category, &e.Message,
			&shipment, &route, &action, &details); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		e.ShipmentID, e.RouteID, e.ActionID = shipment.String, route.String, action.String
		if details.Valid && details.String != "" && details.String != "null" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal event details")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}
