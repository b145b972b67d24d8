// Package optimizer ranks alternative routes by a weighted combination of
// risk, cost and time.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reroute/internal/catalog"
	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/textgen"
)

// DefaultBounds are the cost and time normalization ranges.
var DefaultBounds = config.BoundsConfig{
	CostMinUSD:  5000,
	CostMaxUSD:  50000,
	TimeMinDays: 10,
	TimeMaxDays: 30,
}

const (
	defaultMaxAlternatives = 5
	defaultConcurrency     = 4
)

// Request is a route optimization request. A nil IncludePredictions uses
// the configured default; MaxAlternatives <= 0 uses the configured maximum.
type Request struct {
	Origin             string
	Destination        string
	Priority           model.Priority
	CustomWeights      map[string]float64
	MaxAlternatives    int
	IncludePredictions *bool
	ShipmentID         string
}

// Optimizer ranks catalog alternatives against the original route.
type Optimizer struct {
	assessor           RouteAssessor
	catalog            catalog.Catalog
	gen                textgen.Generator
	sink               events.Sink
	bounds             config.BoundsConfig
	maxAlternatives    int
	concurrency        int
	includePredictions bool
	now                func() time.Time
}

// New creates an Optimizer. gen may be nil, in which case recommendations
// always use the deterministic rules.
func New(cfg config.OptimizerConfig, assessor RouteAssessor, cat catalog.Catalog, gen textgen.Generator, sink events.Sink) *Optimizer {
	o := &Optimizer{
		assessor:           assessor,
		catalog:            cat,
		gen:                gen,
		sink:               sink,
		bounds:             cfg.Bounds,
		maxAlternatives:    cfg.MaxAlternatives,
		concurrency:        cfg.Concurrency,
		includePredictions: cfg.IncludePredictions,
		now:                time.Now,
	}
	if o.sink == nil {
		o.sink = events.Discard
	}
	if o.bounds.CostMaxUSD <= o.bounds.CostMinUSD || o.bounds.TimeMaxDays <= o.bounds.TimeMinDays {
		o.bounds = DefaultBounds
	}
	if o.maxAlternatives <= 0 {
		o.maxAlternatives = defaultMaxAlternatives
	}
	if o.concurrency <= 0 {
		o.concurrency = defaultConcurrency
	}
	return o
}

// WithClock overrides the clock used to timestamp results.
func (o *Optimizer) WithClock(now func() time.Time) *Optimizer {
	o.now = now
	return o
}

// Optimize assesses the original route and every catalog alternative,
// scores them and returns the best alternatives in rank order. Only invalid
// custom weights produce an error; collaborator failures degrade the
// result instead.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*model.OptimizationResult, error) {
	weights, err := ResolveWeights(req.Priority, req.CustomWeights)
	if err != nil {
		return nil, err
	}
	maxAlt := req.MaxAlternatives
	if maxAlt <= 0 {
		maxAlt = o.maxAlternatives
	}
	predict := o.includePredictions
	if req.IncludePredictions != nil {
		predict = *req.IncludePredictions
	}

	specs := []RouteSpec{{RouteID: model.OriginalRouteID, Origin: req.Origin, Destination: req.Destination}}
	for _, alt := range o.catalog.Alternatives(req.Origin, req.Destination) {
		m := alt.Metrics(0)
		specs = append(specs, RouteSpec{
			RouteID:     alt.ID,
			Origin:      req.Origin,
			Destination: req.Destination,
			Waypoints:   alt.Waypoints,
			Regions:     alt.Regions,
			Metrics:     &m,
		})
	}

	routes := o.assessAll(ctx, specs, predict)
	for i := range routes {
		routes[i].OptimizationScore = Score(routes[i].Metrics, weights, o.bounds)
	}
	original := routes[0]

	ranked := Rank(routes)
	var alternatives []model.OptimizedRoute
	for _, r := range ranked {
		if r.RouteID == model.OriginalRouteID {
			original = r
			continue
		}
		alternatives = append(alternatives, r)
	}
	if len(alternatives) > maxAlt {
		alternatives = alternatives[:maxAlt]
	}
	original.RecommendationReason = Reason(original, original)
	for i := range alternatives {
		alternatives[i].RecommendationReason = Reason(alternatives[i], original)
	}

	result := &model.OptimizationResult{
		ID:                   uuid.New().String(),
		OriginalRoute:        original,
		OptimizedRoutes:      alternatives,
		OptimizationCriteria: weights,
		Recommendation:       o.recommend(ctx, original, alternatives),
		OptimizedAt:          o.now().UTC(),
	}
	if result.OptimizedRoutes == nil {
		result.OptimizedRoutes = []model.OptimizedRoute{}
	}

	zap.L().Info("optimizer: optimized route",
		zap.String("origin", req.Origin),
		zap.String("destination", req.Destination),
		zap.String("priority", string(req.Priority)),
		zap.Int("alternatives", len(result.OptimizedRoutes)),
		zap.Float64("original_score", original.OptimizationScore),
	)
	events.RecordOptimization(ctx, o.sink, result, req.ShipmentID)
	return result, nil
}

// CompareRoutes assesses ad-hoc routes and returns them sorted by risk,
// lowest first. Specs without a RouteID are numbered COMPARE-001 onward.
func (o *Optimizer) CompareRoutes(ctx context.Context, specs []RouteSpec, includePredictions bool) []model.OptimizedRoute {
	named := make([]RouteSpec, len(specs))
	for i, s := range specs {
		if s.RouteID == "" {
			s.RouteID = fmt.Sprintf("COMPARE-%03d", i+1)
		}
		named[i] = s
	}
	routes := o.assessAll(ctx, named, includePredictions)
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].Metrics.RiskScore < routes[j].Metrics.RiskScore
	})
	for i := range routes {
		routes[i].Rank = i + 1
	}
	return routes
}

// assessAll assesses specs concurrently, preserving input order.
func (o *Optimizer) assessAll(ctx context.Context, specs []RouteSpec, predict bool) []model.OptimizedRoute {
	out := make([]model.OptimizedRoute, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			out[i] = o.assessor.Assess(gctx, spec, predict)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Score combines normalized risk, cost and time; lower is better. Cost and
// time are scaled against bounds and clamped to [0, 1].
func Score(m model.RouteMetrics, w model.Weights, b config.BoundsConfig) float64 {
	risk := model.Clamp01(m.RiskScore)
	cost := model.Clamp01((m.CostUSD - b.CostMinUSD) / (b.CostMaxUSD - b.CostMinUSD))
	days := model.Clamp01((m.TimeDays - b.TimeMinDays) / (b.TimeMaxDays - b.TimeMinDays))
	return model.Round(risk*w.Risk+cost*w.Cost+days*w.Time, 4)
}

// Rank sorts routes by ascending score, breaking ties by route ID, and
// assigns 1-based ranks. The input slice is not modified.
func Rank(routes []model.OptimizedRoute) []model.OptimizedRoute {
	out := make([]model.OptimizedRoute, len(routes))
	copy(out, routes)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OptimizationScore != out[j].OptimizationScore {
			return out[i].OptimizationScore < out[j].OptimizationScore
		}
		return out[i].RouteID < out[j].RouteID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
