package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS assessments`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAction_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM execution_actions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	a := testAction("EXEC-1", model.ExecutionPending, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	data, err := json.Marshal(a)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM execution_actions WHERE id = \$1`).
		WithArgs("EXEC-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.GetAction(context.Background(), "EXEC-1")
	require.NoError(t, err)
	assert.Equal(t, "TW-JP-LA", got.NewRouteID)
	assert.Equal(t, model.ExecutionPending, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAction_Upserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	a := testAction("EXEC-1", model.ExecutionApproved, time.Now())
	mock.ExpectExec(`INSERT INTO execution_actions .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("EXEC-1", "SHIP1", "approved", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveAction(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAction_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO execution_actions`).
		WillReturnError(errors.New("connection refused"))

	err := s.SaveAction(context.Background(), testAction("EXEC-1", model.ExecutionPending, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: save action EXEC-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActions_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	a := testAction("EXEC-1", model.ExecutionPending, time.Now())
	data, _ := json.Marshal(a)
	mock.ExpectQuery(`SELECT data FROM execution_actions WHERE true AND shipment_id = \$1 AND status = \$2 ORDER BY created_at DESC, id LIMIT \$3`).
		WithArgs("SHIP1", "pending", 10).
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.ListActions(context.Background(), ActionFilter{ShipmentID: "SHIP1", Status: model.ExecutionPending, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EXEC-1", got[0].ActionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSignals_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"signal_snapshots"}, signalColumns).WillReturnResult(2)

	n, err := s.SaveSignals(context.Background(), "R1", []model.Signal{
		{Source: "synthetic", Category: model.CategoryPolitical, Title: "a", Severity: 0.9, Timestamp: time.Now()},
		{Source: "synthetic", Category: model.CategoryTradeNews, Title: "b", Severity: 0.5, Timestamp: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOptimization_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM optimizations WHERE id = \$1`).
		WithArgs("opt-x").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetOptimization(context.Background(), "opt-x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveOptimization(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	r := &model.OptimizationResult{
		ID:              "opt-1",
		OriginalRoute:   model.OptimizedRoute{Origin: "Taiwan", Destination: "Los Angeles"},
		OptimizedRoutes: []model.OptimizedRoute{{RouteID: "TW-JP-LA"}},
		OptimizedAt:     time.Now(),
	}
	mock.ExpectExec(`INSERT INTO optimizations`).
		WithArgs("opt-1", "Taiwan", "Los Angeles", "TW-JP-LA", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveOptimization(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEvent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	e := events.New(events.LevelWarning, events.CategoryExecution, "executing")
	e.ActionID = "EXEC-1"
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(e.ID, pgxmock.AnyArg(), "warning", "execution", "executing", "", "", "EXEC-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveEvent(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEvents(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ts := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM events WHERE true AND category = \$1 ORDER BY ts DESC LIMIT \$2`).
		WithArgs("monitoring", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "ts", "level", "category", "message", "shipment_id", "route_id", "action_id", "details"}).
			AddRow("ev-1", ts, "critical", "monitoring", "risk spike", "SHIP1", "", "", []byte(`{"risk_score":0.8}`)))

	got, err := s.ListEvents(context.Background(), events.Filter{Category: events.CategoryMonitoring})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.LevelCritical, got[0].Level)
	assert.Equal(t, "SHIP1", got[0].ShipmentID)
	assert.Empty(t, got[0].RouteID)
	assert.Equal(t, 0.8, got[0].Details["risk_score"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
