package optimizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reroute/internal/catalog"
	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// stubAssessor returns a fixed risk per route ID and the spec's metrics.
type stubAssessor struct {
	mu    sync.Mutex
	risk  map[string]float64
	calls []RouteSpec
}

func (s *stubAssessor) Assess(_ context.Context, spec RouteSpec, _ bool) model.OptimizedRoute {
	s.mu.Lock()
	s.calls = append(s.calls, spec)
	s.mu.Unlock()

	m := model.RouteMetrics{CostUSD: 12000, TimeDays: 12.4, DistanceKM: 11000, PortCalls: 2}
	if spec.Metrics != nil {
		m = *spec.Metrics
	}
	m.RiskScore = s.risk[spec.RouteID]
	return model.OptimizedRoute{
		RouteID:        spec.RouteID,
		Origin:         spec.Origin,
		Destination:    spec.Destination,
		Waypoints:      spec.Waypoints,
		Metrics:        m,
		RiskAssessment: model.RiskAssessment{OverallRiskScore: m.RiskScore, RiskLevel: model.LevelForScore(m.RiskScore)},
	}
}

type stubCatalog struct {
	routes []catalog.Route
}

func (c stubCatalog) Alternatives(string, string) []catalog.Route { return c.routes }

func (c stubCatalog) Estimate(string, string, []string) model.RouteMetrics {
	return model.RouteMetrics{CostUSD: 12000, TimeDays: 12.4, DistanceKM: 11000, PortCalls: 2}
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, purpose, prompt string) (string, error) {
	args := m.Called(ctx, purpose, prompt)
	return args.String(0), args.Error(1)
}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureSink) Record(_ context.Context, e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func testCatalog() stubCatalog {
	return stubCatalog{routes: []catalog.Route{
		{ID: "TW-VN-LA", Waypoints: []string{"Port of Ho Chi Minh City, Vietnam"}, CostUSD: 15000, TimeDays: 15, DistanceKM: 12000, PortCalls: 3},
		{ID: "TW-JP-LA", Waypoints: []string{"Port of Tokyo, Japan"}, CostUSD: 25000, TimeDays: 16, DistanceKM: 11000, PortCalls: 3},
		{ID: "TW-SG-LA", Waypoints: []string{"Port of Singapore, Singapore"}, CostUSD: 18000, TimeDays: 17, DistanceKM: 14000, PortCalls: 3},
	}}
}

func newTestOptimizer(a RouteAssessor, cat catalog.Catalog, gen *mockGenerator, sink events.Sink) *Optimizer {
	cfg := config.OptimizerConfig{MaxAlternatives: 5, Concurrency: 2, Bounds: DefaultBounds}
	var o *Optimizer
	if gen == nil {
		o = New(cfg, a, cat, nil, sink)
	} else {
		o = New(cfg, a, cat, gen, sink)
	}
	return o.WithClock(func() time.Time { return testNow })
}

func TestScore(t *testing.T) {
	w := Presets[model.PriorityBalanced]
	tests := []struct {
		name string
		m    model.RouteMetrics
		want float64
	}{
		{"all minimal", model.RouteMetrics{RiskScore: 0, CostUSD: 5000, TimeDays: 10}, 0},
		{"all maximal", model.RouteMetrics{RiskScore: 1, CostUSD: 50000, TimeDays: 30}, 1},
		{"clamped below", model.RouteMetrics{RiskScore: 0, CostUSD: 100, TimeDays: 1}, 0},
		{"clamped above", model.RouteMetrics{RiskScore: 1, CostUSD: 99999, TimeDays: 90}, 1},
		{"midpoint", model.RouteMetrics{RiskScore: 0.5, CostUSD: 27500, TimeDays: 20}, 0.5},
		{"taiwan direct", model.RouteMetrics{RiskScore: 0.6, CostUSD: 12000, TimeDays: 12.4}, 0.3707},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.m, w, DefaultBounds), 1e-9)
		})
	}
}

func TestScore_ScalingInvariance(t *testing.T) {
	m := model.RouteMetrics{RiskScore: 0.42, CostUSD: 21000, TimeDays: 17}
	w := model.Weights{Risk: 0.5, Cost: 0.3, Time: 0.2}

	scaled, err := ResolveWeights("", map[string]float64{"risk": 5, "cost": 3, "time": 2})
	require.NoError(t, err)
	assert.InDelta(t, Score(m, w, DefaultBounds), Score(m, scaled, DefaultBounds), 1e-9)
}

func TestScore_Dominance(t *testing.T) {
	better := model.RouteMetrics{RiskScore: 0.2, CostUSD: 10000, TimeDays: 12}
	worse := model.RouteMetrics{RiskScore: 0.3, CostUSD: 15000, TimeDays: 14}
	for p, w := range Presets {
		assert.Less(t, Score(better, w, DefaultBounds), Score(worse, w, DefaultBounds), string(p))
	}
}

func TestResolveWeights(t *testing.T) {
	w, err := ResolveWeights(model.PriorityRisk, nil)
	require.NoError(t, err)
	assert.Equal(t, Presets[model.PriorityRisk], w)

	w, err = ResolveWeights("unknown", nil)
	require.NoError(t, err)
	assert.Equal(t, Presets[model.PriorityBalanced], w)

	w, err = ResolveWeights(model.PriorityCost, map[string]float64{"risk": 2, "time": 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, w.Risk, 1e-9)
	assert.InDelta(t, 0.0, w.Cost, 1e-9)
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)
}

func TestResolveWeights_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		custom map[string]float64
	}{
		{"unknown key", map[string]float64{"risk": 1, "speed": 1}},
		{"negative", map[string]float64{"risk": -0.1, "cost": 1}},
		{"zero sum", map[string]float64{"risk": 0, "cost": 0, "time": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveWeights(model.PriorityBalanced, tt.custom)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidWeights)
		})
	}
}

func TestRank_TiesStableByRouteID(t *testing.T) {
	routes := []model.OptimizedRoute{
		{RouteID: "C", OptimizationScore: 0.3},
		{RouteID: "B", OptimizationScore: 0.2},
		{RouteID: "A", OptimizationScore: 0.3},
	}
	ranked := Rank(routes)

	ids := []string{ranked[0].RouteID, ranked[1].RouteID, ranked[2].RouteID}
	assert.Equal(t, []string{"B", "A", "C"}, ids)
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
	assert.Equal(t, "C", routes[0].RouteID, "input untouched")
}

func TestOptimize_RanksAndExcludesOriginal(t *testing.T) {
	a := &stubAssessor{risk: map[string]float64{
		model.OriginalRouteID: 0.65,
		"TW-VN-LA":            0.30,
		"TW-JP-LA":            0.20,
		"TW-SG-LA":            0.40,
	}}
	sink := &captureSink{}
	o := newTestOptimizer(a, testCatalog(), nil, sink)

	res, err := o.Optimize(context.Background(), Request{
		Origin: "Taiwan", Destination: "Los Angeles", Priority: model.PriorityRisk, ShipmentID: "S1",
	})
	require.NoError(t, err)

	require.Len(t, res.OptimizedRoutes, 3)
	ids := make([]string, 0, 3)
	for i, r := range res.OptimizedRoutes {
		ids = append(ids, r.RouteID)
		assert.Equal(t, i+1, r.Rank)
		assert.NotEmpty(t, r.RecommendationReason)
	}
	assert.Equal(t, []string{"TW-JP-LA", "TW-VN-LA", "TW-SG-LA"}, ids)
	assert.InDelta(t, 0.2517, res.OptimizedRoutes[0].OptimizationScore, 1e-9)
	assert.Equal(t, model.OriginalRouteID, res.OriginalRoute.RouteID)
	assert.Equal(t, 4, res.OriginalRoute.Rank)
	assert.InDelta(t, 0.4963, res.OriginalRoute.OptimizationScore, 1e-9)
	assert.Equal(t, "Baseline: current route", res.OriginalRoute.RecommendationReason)
	assert.Equal(t, Presets[model.PriorityRisk], res.OptimizationCriteria)
	assert.Equal(t, testNow, res.OptimizedAt)
	assert.NotEmpty(t, res.ID)
	assert.Contains(t, res.Recommendation, "STRONGLY RECOMMENDED")
	assert.Len(t, a.calls, 4)

	require.Len(t, sink.events, 1)
	assert.Equal(t, events.CategoryOptimization, sink.events[0].Category)
	assert.Equal(t, "S1", sink.events[0].ShipmentID)
}

func TestOptimize_Truncates(t *testing.T) {
	a := &stubAssessor{risk: map[string]float64{model.OriginalRouteID: 0.5}}
	o := newTestOptimizer(a, testCatalog(), nil, nil)

	res, err := o.Optimize(context.Background(), Request{Origin: "Taiwan", Destination: "Los Angeles", MaxAlternatives: 2})
	require.NoError(t, err)
	assert.Len(t, res.OptimizedRoutes, 2)
}

func TestOptimize_NoAlternatives(t *testing.T) {
	a := &stubAssessor{risk: map[string]float64{}}
	o := newTestOptimizer(a, stubCatalog{}, nil, nil)

	res, err := o.Optimize(context.Background(), Request{Origin: "A", Destination: "B"})
	require.NoError(t, err)
	assert.Empty(t, res.OptimizedRoutes)
	assert.NotNil(t, res.OptimizedRoutes)
	assert.Nil(t, res.Best())
	assert.Equal(t, "No alternative routes found. Current route is the only option.", res.Recommendation)
}

func TestOptimize_InvalidWeights(t *testing.T) {
	a := &stubAssessor{}
	o := newTestOptimizer(a, testCatalog(), nil, nil)

	_, err := o.Optimize(context.Background(), Request{CustomWeights: map[string]float64{"risk": -1}})
	assert.ErrorIs(t, err, ErrInvalidWeights)
	assert.Empty(t, a.calls)
}

func TestOptimize_UsesGenerator(t *testing.T) {
	a := &stubAssessor{risk: map[string]float64{model.OriginalRouteID: 0.7, "TW-VN-LA": 0.2}}
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, "route_recommendation", mock.MatchedBy(func(p string) bool {
		return containsAll(p, "Analyze these shipping routes", "Best Alternative Route: TW-VN-LA", "Risk Improvement: 0.50")
	})).Return("  Reroute via Vietnam.  ", nil)

	cat := stubCatalog{routes: testCatalog().routes[:1]}
	o := newTestOptimizer(a, cat, gen, nil)

	res, err := o.Optimize(context.Background(), Request{Origin: "Taiwan", Destination: "Los Angeles"})
	require.NoError(t, err)
	assert.Equal(t, "Reroute via Vietnam.", res.Recommendation)
	gen.AssertExpectations(t)
}

func TestOptimize_GeneratorFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"error", "", errors.New("boom")},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &stubAssessor{risk: map[string]float64{model.OriginalRouteID: 0.7, "TW-VN-LA": 0.2}}
			gen := &mockGenerator{}
			gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tt.reply, tt.err)
			o := newTestOptimizer(a, stubCatalog{routes: testCatalog().routes[:1]}, gen, nil)

			res, err := o.Optimize(context.Background(), Request{Origin: "Taiwan", Destination: "Los Angeles"})
			require.NoError(t, err)
			assert.Contains(t, res.Recommendation, "STRONGLY RECOMMENDED: Reroute via Port of Ho Chi Minh City, Vietnam.")
		})
	}
}

func TestFallbackRecommendation(t *testing.T) {
	original := model.OptimizedRoute{
		RouteID:           model.OriginalRouteID,
		Metrics:           model.RouteMetrics{RiskScore: 0.6, CostUSD: 12000, TimeDays: 12.4},
		OptimizationScore: 0.4,
	}
	alt := func(risk, score float64) model.OptimizedRoute {
		return model.OptimizedRoute{
			RouteID:           "TW-VN-LA",
			Waypoints:         []string{"Port of Ho Chi Minh City, Vietnam"},
			Metrics:           model.RouteMetrics{RiskScore: risk, CostUSD: 15000, TimeDays: 15},
			OptimizationScore: score,
		}
	}
	tests := []struct {
		name string
		best model.OptimizedRoute
		want string
	}{
		{
			"strong", alt(0.3, 0.3),
			"STRONGLY RECOMMENDED: Reroute via Port of Ho Chi Minh City, Vietnam. Risk reduction: 0.30 (0.60 -> 0.30). Cost impact: $+3,000. Time impact: +2.6 days.",
		},
		{
			"moderate", alt(0.45, 0.35),
			"RECOMMENDED: Consider rerouting via Port of Ho Chi Minh City, Vietnam. Risk reduction: 0.15. Cost impact: $+3,000. Time impact: +2.6 days.",
		},
		{
			"optional", alt(0.55, 0.39),
			"OPTIONAL: Alternative route via Port of Ho Chi Minh City, Vietnam offers better overall optimization. Risk: 0.55 vs 0.60. Cost: $15,000 vs $12,000. Time: 15.0 vs 12.4 days.",
		},
		{
			"optimal", alt(0.55, 0.45),
			"CURRENT ROUTE OPTIMAL: Current route appears to be the best option based on the selected optimization criteria.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FallbackRecommendation(original, tt.best))
		})
	}
}

func TestFallbackRecommendation_ViaRouteIDWithoutWaypoints(t *testing.T) {
	original := model.OptimizedRoute{Metrics: model.RouteMetrics{RiskScore: 0.9}}
	best := model.OptimizedRoute{RouteID: "GENERIC-1", Metrics: model.RouteMetrics{RiskScore: 0.1}}
	assert.Contains(t, FallbackRecommendation(original, best), "Reroute via GENERIC-1.")
}

func TestReason(t *testing.T) {
	original := model.OptimizedRoute{RouteID: model.OriginalRouteID, Metrics: model.RouteMetrics{RiskScore: 0.6, CostUSD: 12000, TimeDays: 12.5}}

	r := model.OptimizedRoute{RouteID: "X", Rank: 1, Metrics: model.RouteMetrics{RiskScore: 0.3, CostUSD: 15000, TimeDays: 12}}
	assert.Equal(t, "Rank 1: lower risk (-0.30), higher cost ($+3,000), faster (-0.5 days)", Reason(r, original))

	same := model.OptimizedRoute{RouteID: "Y", Rank: 2, Metrics: original.Metrics}
	assert.Equal(t, "Rank 2: equivalent to current route", Reason(same, original))
}

func TestCompareRoutes(t *testing.T) {
	a := &stubAssessor{risk: map[string]float64{"COMPARE-001": 0.5, "COMPARE-002": 0.1, "named": 0.3}}
	o := newTestOptimizer(a, testCatalog(), nil, nil)

	routes := o.CompareRoutes(context.Background(), []RouteSpec{
		{Origin: "Taiwan", Destination: "Los Angeles"},
		{Origin: "Vietnam", Destination: "Los Angeles"},
		{RouteID: "named", Origin: "Japan", Destination: "Los Angeles"},
	}, false)

	require.Len(t, routes, 3)
	assert.Equal(t, "COMPARE-002", routes[0].RouteID)
	assert.Equal(t, "named", routes[1].RouteID)
	assert.Equal(t, "COMPARE-001", routes[2].RouteID)
	assert.Equal(t, 3, routes[2].Rank)
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
