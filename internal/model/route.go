package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// OriginalRouteID identifies the unmodified route in an optimization.
const OriginalRouteID = "ORIGINAL"

// Priority selects a preset weighting for route optimization.
type Priority string

const (
	PriorityRisk     Priority = "risk"
	PriorityCost     Priority = "cost"
	PriorityTime     Priority = "time"
	PriorityBalanced Priority = "balanced"
)

// ParsePriority converts a string into a Priority. Empty means balanced.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PriorityBalanced, nil
	case PriorityRisk, PriorityCost, PriorityTime, PriorityBalanced:
		return p, nil
	default:
		return "", eris.Errorf("model: unknown optimization priority %q", s)
	}
}

// Weights are the risk/cost/time optimization weights.
type Weights struct {
	Risk float64 `json:"risk"`
	Cost float64 `json:"cost"`
	Time float64 `json:"time"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Risk + w.Cost + w.Time
}

// RouteMetrics are the measurable properties of a route.
type RouteMetrics struct {
	RiskScore  float64 `json:"risk_score"`
	CostUSD    float64 `json:"cost_usd"`
	TimeDays   float64 `json:"time_days"`
	DistanceKM float64 `json:"distance_km"`
	PortCalls  int     `json:"port_calls"`
}

// OptimizedRoute is a scored and ranked route option.
type OptimizedRoute struct {
	RouteID              string                `json:"route_id"`
	Origin               string                `json:"origin"`
	Destination          string                `json:"destination"`
	Waypoints            []string              `json:"waypoints"`
	Regions              []string              `json:"route_regions,omitempty"`
	Metrics              RouteMetrics          `json:"metrics"`
	RiskAssessment       RiskAssessment        `json:"risk_assessment"`
	PredictiveAssessment *PredictiveAssessment `json:"predictive_assessment,omitempty"`
	OptimizationScore    float64               `json:"optimization_score"`
	Rank                 int                   `json:"rank"`
	RecommendationReason string                `json:"recommendation_reason"`
}

// OptimizationResult is the outcome of ranking alternatives for a route.
type OptimizationResult struct {
	ID                   string           `json:"id"`
	OriginalRoute        OptimizedRoute   `json:"original_route"`
	OptimizedRoutes      []OptimizedRoute `json:"optimized_routes"`
	OptimizationCriteria Weights          `json:"optimization_criteria"`
	Recommendation       string           `json:"recommendation"`
	OptimizedAt          time.Time        `json:"optimization_timestamp"`
}

// Best returns the top-ranked alternative, or nil if there is none.
func (r *OptimizationResult) Best() *OptimizedRoute {
	if r == nil || len(r.OptimizedRoutes) == 0 {
		return nil
	}
	return &r.OptimizedRoutes[0]
}
