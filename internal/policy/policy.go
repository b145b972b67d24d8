// Package policy decides when a shipment should be rerouted and drives the
// resulting actions through their lifecycle.
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reroute/internal/catalog"
	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/optimizer"
)

// DefaultConfig holds the standard thresholds.
var DefaultConfig = config.PolicyConfig{
	Mode:                 string(model.ModeSemiAutomatic),
	AutoExecuteThreshold: 0.75,
	MonitorThreshold:     0.50,
	AutoApproveThreshold: 0.50,
	MinRiskReduction:     0.20,
	MaxAlternatives:      3,
}

const executedBy = "reroute_policy"

// RouteOptimizer ranks alternatives for a route.
type RouteOptimizer interface {
	Optimize(ctx context.Context, req optimizer.Request) (*model.OptimizationResult, error)
}

// ActionStore persists execution actions.
type ActionStore interface {
	SaveAction(ctx context.Context, a *model.ExecutionAction) error
	GetAction(ctx context.Context, id string) (*model.ExecutionAction, error)
}

// Deps are the collaborators of a Policy. Store and Sink may be nil.
type Deps struct {
	Assessor  optimizer.RouteAssessor
	Optimizer RouteOptimizer
	Catalog   catalog.Catalog
	Executor  *Executor
	Store     ActionStore
	Sink      events.Sink
}

// RerouteRequest asks for a specific reroute of a shipment.
type RerouteRequest struct {
	ShipmentID  string
	NewRouteID  string
	Origin      string
	Destination string
	Regions     []string
	Reason      string
}

// Policy monitors shipments and proposes or executes reroutes.
type Policy struct {
	cfg       config.PolicyConfig
	mode      model.ExecutionMode
	assessor  optimizer.RouteAssessor
	optimizer RouteOptimizer
	catalog   catalog.Catalog
	executor  *Executor
	store     ActionStore
	sink      events.Sink
	now       func() time.Time
}

// New creates a Policy from cfg. It fails on an unknown mode.
func New(cfg config.PolicyConfig, d Deps) (*Policy, error) {
	mode, err := model.ParseExecutionMode(cfg.Mode)
	if err != nil {
		return nil, eris.Wrap(err, "policy: config")
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = DefaultConfig.MaxAlternatives
	}
	p := &Policy{
		cfg:       cfg,
		mode:      mode,
		assessor:  d.Assessor,
		optimizer: d.Optimizer,
		catalog:   d.Catalog,
		executor:  d.Executor,
		store:     d.Store,
		sink:      d.Sink,
		now:       time.Now,
	}
	if p.sink == nil {
		p.sink = events.Discard
	}
	if p.executor == nil {
		p.executor = NewExecutor(nil, p.sink)
	}
	return p, nil
}

// WithClock overrides the clock used for action IDs and timestamps.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// Mode returns the default execution mode.
func (p *Policy) Mode() model.ExecutionMode {
	return p.mode
}

// Monitor assesses a shipment's current route and returns a reroute action
// when risk is at or above the monitor threshold and the best alternative
// reduces it by at least the minimum reduction. At or above the
// auto-execute threshold an approved action is executed before returning.
// An empty mode uses the configured mode. A nil action means no reroute.
func (p *Policy) Monitor(ctx context.Context, shipmentID, origin, destination string, regions []string, mode model.ExecutionMode) (*model.ExecutionAction, error) {
	if mode == "" {
		mode = p.mode
	}
	routeID := shipmentRouteID(shipmentID)
	current := p.assessor.Assess(ctx, optimizer.RouteSpec{
		RouteID:     routeID,
		Origin:      origin,
		Destination: destination,
		Regions:     regions,
	}, false)
	score := current.RiskAssessment.OverallRiskScore

	log := zap.L().With(
		zap.String("shipment_id", shipmentID),
		zap.Float64("risk_score", score),
		zap.String("mode", string(mode)),
	)

	if score < p.cfg.MonitorThreshold {
		log.Debug("policy: risk below threshold")
		events.RecordMonitoring(ctx, p.sink, shipmentID, routeID, score, "none", "Risk below threshold")
		return nil, nil
	}
	critical := score >= p.cfg.AutoExecuteThreshold

	predict := true
	res, err := p.optimizer.Optimize(ctx, optimizer.Request{
		Origin:             origin,
		Destination:        destination,
		Priority:           model.PriorityRisk,
		MaxAlternatives:    p.cfg.MaxAlternatives,
		IncludePredictions: &predict,
		ShipmentID:         shipmentID,
	})
	if err != nil {
		return nil, eris.Wrap(err, "policy: optimize")
	}

	best := res.Best()
	if best == nil {
		events.RecordMonitoring(ctx, p.sink, shipmentID, routeID, score, "none", "No alternative routes found")
		return nil, nil
	}
	reduction := score - best.Metrics.RiskScore
	if reduction < p.cfg.MinRiskReduction {
		log.Info("policy: no beneficial reroute", zap.String("best_route", best.RouteID), zap.Float64("reduction", reduction))
		events.RecordMonitoring(ctx, p.sink, shipmentID, routeID, score, "none",
			fmt.Sprintf("Best alternative %s reduces risk by %.2f, below %.2f", best.RouteID, reduction, p.cfg.MinRiskReduction))
		return nil, nil
	}

	reason := res.Recommendation
	if critical {
		reason = fmt.Sprintf("CRITICAL RISK DETECTED: Risk %.2f exceeds threshold. Rerouting to reduce risk to %.2f (reduction: %.2f)",
			score, best.Metrics.RiskScore, reduction)
	}
	action := p.newAction(shipmentID, best.RouteID, score, best.Metrics.RiskScore, reason, mode,
		best.Metrics.CostUSD-res.OriginalRoute.Metrics.CostUSD,
		best.Metrics.TimeDays-res.OriginalRoute.Metrics.TimeDays)
	action.Metadata = map[string]any{
		"optimization_id": res.ID,
		"origin":          origin,
		"destination":     destination,
	}
	p.save(ctx, action)
	events.RecordMonitoring(ctx, p.sink, shipmentID, routeID, score, "reroute_proposed", reason)

	if critical && action.Status == model.ExecutionApproved {
		p.executor.Execute(ctx, action)
		p.save(ctx, action)
	}
	log.Info("policy: reroute action",
		zap.String("action_id", action.ActionID),
		zap.String("new_route_id", action.NewRouteID),
		zap.String("status", string(action.Status)),
	)
	return action, nil
}

// ExecuteReroute assesses the shipment's current route and the requested
// route, builds an action whose status follows the configured mode and runs
// it. It never returns an error; failures are reported in the result.
func (p *Policy) ExecuteReroute(ctx context.Context, req RerouteRequest) model.ExecutionResult {
	original := p.assessor.Assess(ctx, optimizer.RouteSpec{
		RouteID:     shipmentRouteID(req.ShipmentID),
		Origin:      req.Origin,
		Destination: req.Destination,
		Regions:     req.Regions,
	}, false)

	spec := optimizer.RouteSpec{
		RouteID:     req.NewRouteID,
		Origin:      req.Origin,
		Destination: req.Destination,
		Regions:     req.Regions,
	}
	if r, ok := p.lookupRoute(req.Origin, req.Destination, req.NewRouteID); ok {
		m := r.Metrics(0)
		spec.Waypoints = r.Waypoints
		spec.Regions = catalog.MergeRegions(req.Regions, r.Regions)
		spec.Metrics = &m
	}
	next := p.assessor.Assess(ctx, spec, false)

	reason := req.Reason
	if reason == "" {
		reason = "Risk mitigation reroute"
	}
	action := p.newAction(req.ShipmentID, req.NewRouteID,
		original.Metrics.RiskScore, next.Metrics.RiskScore, reason, p.mode,
		next.Metrics.CostUSD-original.Metrics.CostUSD,
		next.Metrics.TimeDays-original.Metrics.TimeDays)
	action.Metadata = map[string]any{
		"origin":      req.Origin,
		"destination": req.Destination,
		"requested":   true,
	}

	result := p.executor.Execute(ctx, action)
	p.save(ctx, action)
	return result
}

// Approve moves a pending action to approved.
func (p *Policy) Approve(ctx context.Context, actionID string) (*model.ExecutionAction, error) {
	return p.transition(ctx, actionID, model.ExecutionApproved)
}

// Reject moves a pending action to rejected.
func (p *Policy) Reject(ctx context.Context, actionID string) (*model.ExecutionAction, error) {
	return p.transition(ctx, actionID, model.ExecutionRejected)
}

// ExecuteByID loads a persisted action, executes it and saves the outcome.
// by, when set, records who triggered the execution.
func (p *Policy) ExecuteByID(ctx context.Context, actionID, by string) (model.ExecutionResult, error) {
	a, err := p.load(ctx, actionID)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	if by != "" && a.Status == model.ExecutionApproved {
		a.ExecutedBy = by
	}
	result := p.executor.Execute(ctx, a)
	if err := p.store.SaveAction(ctx, a); err != nil {
		return result, eris.Wrapf(err, "policy: save action %s", a.ActionID)
	}
	return result, nil
}

func (p *Policy) transition(ctx context.Context, actionID string, next model.ExecutionStatus) (*model.ExecutionAction, error) {
	a, err := p.load(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if err := a.Transition(next, p.now().UTC()); err != nil {
		return nil, err
	}
	if err := p.store.SaveAction(ctx, a); err != nil {
		return nil, eris.Wrapf(err, "policy: save action %s", a.ActionID)
	}
	events.RecordExecution(ctx, p.sink, a, nil)
	return a, nil
}

func (p *Policy) load(ctx context.Context, actionID string) (*model.ExecutionAction, error) {
	if p.store == nil {
		return nil, eris.New("policy: no store configured")
	}
	a, err := p.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: load action %s", actionID)
	}
	return a, nil
}

// save persists a when a store is configured. Failures are logged; the
// in-memory action remains authoritative for the caller.
func (p *Policy) save(ctx context.Context, a *model.ExecutionAction) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveAction(ctx, a); err != nil {
		zap.L().Warn("policy: save action failed", zap.String("action_id", a.ActionID), zap.Error(err))
	}
}

func (p *Policy) newAction(shipmentID, newRouteID string, before, after float64, reason string, mode model.ExecutionMode, costDelta, timeDelta float64) *model.ExecutionAction {
	now := p.now().UTC()
	reduction := before - after
	percent := 0.0
	if before > 0 {
		percent = reduction / before * 100
	}
	return &model.ExecutionAction{
		ActionID:        fmt.Sprintf("EXEC-%s-%s", shipmentID, now.Format("20060102150405")),
		ActionType:      model.ActionTypeReroute,
		ShipmentID:      shipmentID,
		OriginalRouteID: shipmentRouteID(shipmentID),
		NewRouteID:      newRouteID,
		Reason:          reason,
		RiskScoreBefore: before,
		RiskScoreAfter:  after,
		EstimatedImpact: map[string]any{
			"risk_reduction":         model.Round(reduction, 3),
			"risk_reduction_percent": model.Round(percent, 1),
			"cost_delta":             model.Round(costDelta, 2),
			"time_delta":             model.Round(timeDelta, 2),
		},
		Status:     p.statusFor(mode, reduction),
		CreatedAt:  now,
		ExecutedBy: executedBy,
	}
}

// statusFor is the initial status of a new action under mode.
func (p *Policy) statusFor(mode model.ExecutionMode, reduction float64) model.ExecutionStatus {
	switch mode {
	case model.ModeAutomatic:
		return model.ExecutionApproved
	case model.ModeSemiAutomatic:
		if reduction >= p.cfg.AutoApproveThreshold {
			return model.ExecutionApproved
		}
		return model.ExecutionPending
	default:
		return model.ExecutionPending
	}
}

func (p *Policy) lookupRoute(origin, destination, routeID string) (catalog.Route, bool) {
	if p.catalog == nil {
		return catalog.Route{}, false
	}
	for _, r := range p.catalog.Alternatives(origin, destination) {
		if strings.EqualFold(r.ID, routeID) {
			return r, true
		}
	}
	return catalog.Route{}, false
}

func shipmentRouteID(shipmentID string) string {
	return "SHIP-" + shipmentID
}
