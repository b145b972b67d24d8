// Package app wires the reroute components from configuration and exposes
// the operations shared by the CLI and the HTTP server.
package app

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reroute/internal/catalog"
	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/forecast"
	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/optimizer"
	"github.com/sells-group/reroute/internal/policy"
	"github.com/sells-group/reroute/internal/risk"
	"github.com/sells-group/reroute/internal/signals"
	"github.com/sells-group/reroute/internal/store"
	"github.com/sells-group/reroute/internal/textgen"
)

// App holds every initialized component. Store is nil when the "none"
// driver is configured.
type App struct {
	Config    *config.Config
	Store     store.Store
	Sink      events.Sink
	Source    signals.Source
	Catalog   catalog.Catalog
	Assessor  *optimizer.Assessor
	Optimizer *optimizer.Optimizer
	Policy    *policy.Policy
}

// RouteInput identifies a route to assess.
type RouteInput struct {
	ShipmentID  string
	RouteID     string
	Origin      string
	Destination string
	Waypoints   []string
	Regions     []string
}

func (in RouteInput) spec() optimizer.RouteSpec {
	return optimizer.RouteSpec{
		RouteID:     in.RouteID,
		Origin:      in.Origin,
		Destination: in.Destination,
		Waypoints:   in.Waypoints,
		Regions:     in.Regions,
	}
}

// Build opens the store, runs migrations and constructs the component
// graph. Callers should defer Close.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "app: open store")
	}
	if st != nil {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "app: migrate store")
		}
	}

	sink := buildSink(cfg.Events, st)

	src, err := signals.New(cfg.Signals, cfg.Resilience)
	if err != nil {
		closeStore(st)
		return nil, eris.Wrap(err, "app: signal source")
	}

	var cat catalog.Catalog = catalog.Default()
	if cfg.Optimizer.CatalogPath != "" {
		c, err := catalog.Load(cfg.Optimizer.CatalogPath)
		if err != nil {
			closeStore(st)
			return nil, eris.Wrap(err, "app: route catalog")
		}
		cat = c
	}

	gen := textgen.FromConfig(cfg.Anthropic, cfg.Resilience)
	if gen == nil {
		zap.L().Debug("REROUTE_ANTHROPIC_KEY not set, using deterministic forecasts and recommendations")
	}
	var forecaster *forecast.Forecaster
	if cfg.Forecast.UseGenerator {
		forecaster = forecast.New(gen)
	} else {
		forecaster = forecast.New(nil)
	}

	collector := signals.NewCollector(src, sink)
	aggregator := risk.NewAggregator(cfg.Risk)
	assessor := optimizer.NewAssessor(collector, aggregator, forecaster, cat, cfg.Forecast.Horizons, sink)
	opt := optimizer.New(cfg.Optimizer, assessor, cat, gen, sink)

	deps := policy.Deps{
		Assessor:  assessor,
		Optimizer: opt,
		Catalog:   cat,
		Executor:  policy.NewExecutor(nil, sink),
		Sink:      sink,
	}
	if st != nil {
		deps.Store = st
	}
	pol, err := policy.New(cfg.Policy, deps)
	if err != nil {
		closeStore(st)
		return nil, err
	}

	zap.L().Debug("app: initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("signals", src.Name()),
		zap.Bool("generator", gen != nil),
	)

	return &App{
		Config:    cfg,
		Store:     st,
		Sink:      sink,
		Source:    src,
		Catalog:   cat,
		Assessor:  assessor,
		Optimizer: opt,
		Policy:    pol,
	}, nil
}

// Close releases resources held by the app.
func (a *App) Close() {
	closeStore(a.Store)
}

// ErrNoStore is returned by operations that need persistence when the
// "none" driver is configured.
var ErrNoStore = eris.New("app: no store configured")

// RequireStore returns the store or ErrNoStore.
func (a *App) RequireStore() (store.Store, error) {
	if a.Store == nil {
		return nil, ErrNoStore
	}
	return a.Store, nil
}

// AssessRoute assesses a route and persists the signals and the assessment
// when a store is configured.
func (a *App) AssessRoute(ctx context.Context, in RouteInput) model.RiskAssessment {
	spec := in.spec()
	sigs := a.Assessor.Signals(ctx, spec)
	route := a.Assessor.AssessSignals(ctx, spec, sigs, false)
	a.persistAssessment(ctx, in, sigs, route.RiskAssessment)
	return route.RiskAssessment
}

// PredictRoute assesses a route and forecasts it over the configured
// horizons.
func (a *App) PredictRoute(ctx context.Context, in RouteInput) model.PredictiveAssessment {
	spec := in.spec()
	sigs := a.Assessor.Signals(ctx, spec)
	route := a.Assessor.AssessSignals(ctx, spec, sigs, true)
	a.persistAssessment(ctx, in, sigs, route.RiskAssessment)
	if route.PredictiveAssessment == nil {
		return model.PredictiveAssessment{
			RouteID:          in.RouteID,
			Origin:           in.Origin,
			Destination:      in.Destination,
			CurrentRiskScore: route.RiskAssessment.OverallRiskScore,
			Predictions:      []model.PredictiveScore{},
			OverallTrend:     model.TrendStable,
		}
	}
	return *route.PredictiveAssessment
}

// OptimizeRoute ranks alternatives and persists the result when a store is
// configured.
func (a *App) OptimizeRoute(ctx context.Context, req optimizer.Request) (*model.OptimizationResult, error) {
	res, err := a.Optimizer.Optimize(ctx, req)
	if err != nil {
		return nil, err
	}
	if a.Store != nil {
		if err := a.Store.SaveOptimization(ctx, res); err != nil {
			zap.L().Warn("app: save optimization failed", zap.String("id", res.ID), zap.Error(err))
		}
	}
	return res, nil
}

func (a *App) persistAssessment(ctx context.Context, in RouteInput, sigs []model.Signal, ra model.RiskAssessment) {
	if a.Store == nil {
		return
	}
	routeID := in.RouteID
	if routeID == "" {
		routeID = in.Origin + "->" + in.Destination
	}
	if len(sigs) > 0 {
		if _, err := a.Store.SaveSignals(ctx, routeID, sigs); err != nil {
			zap.L().Warn("app: save signals failed", zap.String("route_id", routeID), zap.Error(err))
		}
	}
	if _, err := a.Store.SaveAssessment(ctx, in.ShipmentID, ra); err != nil {
		zap.L().Warn("app: save assessment failed", zap.String("route_id", routeID), zap.Error(err))
	}
}

func buildSink(cfg config.EventsConfig, st store.Store) events.Sink {
	sinks := events.Multi{events.LogSink{}}
	if cfg.Persist && st != nil {
		sinks = append(sinks, events.StoreSink{W: st})
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.WebhookURL))
	}
	return sinks
}

func closeStore(st store.Store) {
	if st != nil {
		_ = st.Close()
	}
}
