// Package store persists assessments, optimization results, execution
// actions, signal snapshots and events.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// AssessmentRecord is a persisted risk assessment.
type AssessmentRecord struct {
	ID         string               `json:"id"`
	ShipmentID string               `json:"shipment_id,omitempty"`
	Assessment model.RiskAssessment `json:"assessment"`
	CreatedAt  time.Time            `json:"created_at"`
}

// AssessmentFilter specifies criteria for listing assessments.
type AssessmentFilter struct {
	RouteID    string
	ShipmentID string
	Limit      int
}

// ActionFilter specifies criteria for listing execution actions.
type ActionFilter struct {
	ShipmentID string
	Status     model.ExecutionStatus
	Limit      int
}

// Store defines the persistence interface.
type Store interface {
	// Assessments
	SaveAssessment(ctx context.Context, shipmentID string, a model.RiskAssessment) (*AssessmentRecord, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]AssessmentRecord, error)

	// Signals
	SaveSignals(ctx context.Context, routeID string, signals []model.Signal) (int64, error)

	// Optimization results
	SaveOptimization(ctx context.Context, r *model.OptimizationResult) error
	GetOptimization(ctx context.Context, id string) (*model.OptimizationResult, error)

	// Execution actions
	SaveAction(ctx context.Context, a *model.ExecutionAction) error
	GetAction(ctx context.Context, id string) (*model.ExecutionAction, error)
	ListActions(ctx context.Context, filter ActionFilter) ([]model.ExecutionAction, error)

	// Events
	SaveEvent(ctx context.Context, e events.Event) error
	ListEvents(ctx context.Context, filter events.Filter) ([]events.Event, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver. The "none" driver returns
// a nil Store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
