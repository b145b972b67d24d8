package optimizer

import (
	"context"

	"github.com/sells-group/reroute/internal/catalog"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/forecast"
	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/risk"
)

// RouteSpec describes a route to assess. A nil Metrics means the metrics
// are estimated from the catalog.
type RouteSpec struct {
	RouteID     string
	Origin      string
	Destination string
	Waypoints   []string
	Regions     []string
	Metrics     *model.RouteMetrics
}

// SignalCollector gathers the signals relevant to a route.
type SignalCollector interface {
	ForRoute(ctx context.Context, origin, destination string, regions []string) []model.Signal
}

// RouteAssessor scores a single route.
type RouteAssessor interface {
	Assess(ctx context.Context, spec RouteSpec, includePredictions bool) model.OptimizedRoute
}

// Assessor collects signals for a route, aggregates them into a risk
// assessment and optionally forecasts it.
type Assessor struct {
	signals    SignalCollector
	aggregator *risk.Aggregator
	forecaster *forecast.Forecaster
	catalog    catalog.Catalog
	horizons   []int
	sink       events.Sink
}

// NewAssessor creates an Assessor. forecaster may be nil to disable
// predictions; a nil sink discards events.
func NewAssessor(sc SignalCollector, agg *risk.Aggregator, fc *forecast.Forecaster, cat catalog.Catalog, horizons []int, sink events.Sink) *Assessor {
	if sink == nil {
		sink = events.Discard
	}
	return &Assessor{
		signals:    sc,
		aggregator: agg,
		forecaster: fc,
		catalog:    cat,
		horizons:   horizons,
		sink:       sink,
	}
}

// Signals returns the signals used to assess spec.
func (a *Assessor) Signals(ctx context.Context, spec RouteSpec) []model.Signal {
	return a.signals.ForRoute(ctx, spec.Origin, spec.Destination, routeRegions(spec))
}

// Assess scores spec. It never fails: missing signals yield a zero-risk,
// low-confidence assessment.
func (a *Assessor) Assess(ctx context.Context, spec RouteSpec, includePredictions bool) model.OptimizedRoute {
	return a.AssessSignals(ctx, spec, a.Signals(ctx, spec), includePredictions)
}

// AssessSignals scores spec from an already collected signal set.
func (a *Assessor) AssessSignals(ctx context.Context, spec RouteSpec, sigs []model.Signal, includePredictions bool) model.OptimizedRoute {
	assessment := a.aggregator.Assess(sigs, spec.Origin, spec.Destination, spec.RouteID)
	events.RecordAssessment(ctx, a.sink, assessment, "")

	var predictive *model.PredictiveAssessment
	if includePredictions && a.forecaster != nil {
		pa := a.forecaster.PredictRoute(ctx, assessment, sigs, a.horizons)
		predictive = &pa
		events.RecordPrediction(ctx, a.sink, pa, "")
	}

	var metrics model.RouteMetrics
	if spec.Metrics != nil {
		metrics = *spec.Metrics
	} else {
		metrics = a.catalog.Estimate(spec.Origin, spec.Destination, spec.Waypoints)
	}
	metrics.RiskScore = assessment.OverallRiskScore

	waypoints := spec.Waypoints
	if waypoints == nil {
		waypoints = []string{}
	}
	return model.OptimizedRoute{
		RouteID:              spec.RouteID,
		Origin:               spec.Origin,
		Destination:          spec.Destination,
		Waypoints:            waypoints,
		Regions:              routeRegions(spec),
		Metrics:              metrics,
		RiskAssessment:       assessment,
		PredictiveAssessment: predictive,
	}
}

// routeRegions merges the explicit regions with those inferred from
// waypoint names.
func routeRegions(spec RouteSpec) []string {
	return catalog.MergeRegions(spec.Regions, catalog.RegionsFromWaypoints(spec.Waypoints))
}
