package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reroute/internal/db"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id          TEXT PRIMARY KEY,
	shipment_id TEXT,
	route_id    TEXT,
	origin      TEXT NOT NULL,
	destination TEXT NOT NULL,
	risk_score  DOUBLE PRECISION NOT NULL,
	risk_level  TEXT NOT NULL,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS signal_snapshots (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	route_id     TEXT NOT NULL,
	source       TEXT NOT NULL,
	category     TEXT NOT NULL,
	title        TEXT NOT NULL,
	severity     DOUBLE PRECISION NOT NULL,
	location     TEXT,
	observed_at  TIMESTAMPTZ NOT NULL,
	metadata     JSONB,
	collected_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS optimizations (
	id           TEXT PRIMARY KEY,
	origin       TEXT NOT NULL,
	destination  TEXT NOT NULL,
	best_route   TEXT,
	data         JSONB NOT NULL,
	optimized_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_actions (
	id          TEXT PRIMARY KEY,
	shipment_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	level       TEXT NOT NULL,
	category    TEXT NOT NULL,
	message     TEXT NOT NULL,
	shipment_id TEXT,
	route_id    TEXT,
	action_id   TEXT,
	details     JSONB
);

CREATE INDEX IF NOT EXISTS idx_assessments_route ON assessments(route_id);
CREATE INDEX IF NOT EXISTS idx_assessments_shipment ON assessments(shipment_id);
CREATE INDEX IF NOT EXISTS idx_signal_snapshots_route ON signal_snapshots(route_id);
CREATE INDEX IF NOT EXISTS idx_execution_actions_shipment ON execution_actions(shipment_id);
CREATE INDEX IF NOT EXISTS idx_execution_actions_status ON execution_actions(status);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
`

// signalColumns are the columns written by SaveSignals via COPY.
var signalColumns = []string{
	"route_id", "source", "category", "title", "severity", "location", "observed_at", "metadata", "collected_at",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveAssessment(ctx context.Context, shipmentID string, a model.RiskAssessment) (*AssessmentRecord, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal assessment")
	}
	rec := &AssessmentRecord{
		ID:         uuid.New().String(),
		ShipmentID: shipmentID,
		Assessment: a,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO assessments (id, shipment_id, route_id, origin, destination, risk_score, risk_level, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, shipmentID, a.RouteID, a.Origin, a.Destination, a.OverallRiskScore, string(a.RiskLevel), data, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert assessment")
	}
	return rec, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]AssessmentRecord, error) {
	query := `SELECT id, COALESCE(shipment_id, ''), data, created_at FROM assessments WHERE true`
	args := []any{}
	argIdx := 1
	if filter.RouteID != "" {
		query += fmt.Sprintf(` AND route_id = $%d`, argIdx)
		args = append(args, filter.RouteID)
		argIdx++
	}
	if filter.ShipmentID != "" {
		query += fmt.Sprintf(` AND shipment_id = $%d`, argIdx)
		args = append(args, filter.ShipmentID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessments")
	}
	defer rows.Close()

	var out []AssessmentRecord
	for rows.Next() {
		var rec AssessmentRecord
		var data []byte
		if err := rows.Scan(&rec.ID, &rec.ShipmentID, &data, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		if err := json.Unmarshal(data, &rec.Assessment); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal assessment")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assessments iterate")
}

func (s *PostgresStore) SaveSignals(ctx context.Context, routeID string, signals []model.Signal) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(signals))
	for _, sig := range signals {
		meta, err := json.Marshal(sig.Metadata)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal signal metadata")
		}
		rows = append(rows, []any{
			routeID, sig.Source, string(sig.Category), sig.Title, sig.Severity,
			sig.Location, sig.Timestamp.UTC(), meta, now,
		})
	}
	return db.CopyFrom(ctx, s.pool, "signal_snapshots", signalColumns, rows)
}

func (s *PostgresStore) SaveOptimization(ctx context.Context, r *model.OptimizationResult) error {
	if r == nil {
		return eris.New("postgres: nil optimization result")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal optimization")
	}
	var best string
	if b := r.Best(); b != nil {
		best = b.RouteID
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO optimizations (id, origin, destination, best_route, data, optimized_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET best_route = EXCLUDED.best_route, data = EXCLUDED.data, optimized_at = EXCLUDED.optimized_at`,
		r.ID, r.OriginalRoute.Origin, r.OriginalRoute.Destination, best, data, r.OptimizedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save optimization %s", r.ID)
}

func (s *PostgresStore) GetOptimization(ctx context.Context, id string) (*model.OptimizationResult, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM optimizations WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "optimization %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get optimization %s", id)
	}
	var r model.OptimizationResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal optimization")
	}
	return &r, nil
}

func (s *PostgresStore) SaveAction(ctx context.Context, a *model.ExecutionAction) error {
	if a == nil {
		return eris.New("postgres: nil action")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal action")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO execution_actions (id, shipment_id, status, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		a.ActionID, a.ShipmentID, string(a.Status), data, a.CreatedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save action %s", a.ActionID)
}

func (s *PostgresStore) GetAction(ctx context.Context, id string) (*model.ExecutionAction, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM execution_actions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "action %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get action %s", id)
	}
	var a model.ExecutionAction
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal action")
	}
	return &a, nil
}

func (s *PostgresStore) ListActions(ctx context.Context, filter ActionFilter) ([]model.ExecutionAction, error) {
	query := `SELECT data FROM execution_actions WHERE true`
	args := []any{}
	argIdx := 1
	if filter.ShipmentID != "" {
		query += fmt.Sprintf(` AND shipment_id = $%d`, argIdx)
		args = append(args, filter.ShipmentID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list actions")
	}
	defer rows.Close()

	var out []model.ExecutionAction
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan action")
		}
		var a model.ExecutionAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal action")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list actions iterate")
}

func (s *PostgresStore) SaveEvent(ctx context.Context, e events.Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event details")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, ts, level, category, message, shipment_id, route_id, action_id, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Timestamp.UTC(), string(e.Level), string(e.Category), e.Message,
		e.ShipmentID, e.RouteID, e.ActionID, details,
	)
	return eris.Wrap(err, "postgres: insert event")
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter events.Filter) ([]events.Event, error) {
	query := `SELECT id, ts, level, category, message, COALESCE(shipment_id, ''), COALESCE(route_id, ''), COALESCE(action_id, ''), details FROM events WHERE true`
	args := []any{}
	argIdx := 1
	add := func(col, val string) {
		if val == "" {
			return
		}
		query += fmt.Sprintf(` AND %s = $%d`, col, argIdx)
		args = append(args, val)
		argIdx++
	}
	add("category", string(filter.Category))
	add("level", string(filter.Level))
	add("shipment_id", filter.ShipmentID)
	add("route_id", filter.RouteID)
	query += fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var level, category string
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &level, &category, &e.Message,
			&e.ShipmentID, &e.RouteID, &e.ActionID, &details); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		e.Level, e.Category = events.Level(level), events.Category(category)
		if len(details) > 0 && string(details) != "null" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal event details")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list events iterate")
}
