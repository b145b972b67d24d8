package model

import (
	"strings"
	"time"
)

// Trend is the direction of a forecast.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// ParseTrend normalizes free text into a Trend. Unknown values are stable.
func ParseTrend(s string) Trend {
	switch Trend(strings.ToLower(strings.TrimSpace(s))) {
	case TrendIncreasing:
		return TrendIncreasing
	case TrendDecreasing:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// PredictiveScore is a forecast for a single horizon.
type PredictiveScore struct {
	DaysAhead          int       `json:"days_ahead"`
	PredictedRiskScore float64   `json:"predicted_risk_score"`
	PredictedRiskLevel RiskLevel `json:"predicted_risk_level"`
	Confidence         float64   `json:"confidence"`
	Trend              Trend     `json:"trend"`
	Factors            []string  `json:"factors"`
	PredictedAt        time.Time `json:"prediction_timestamp"`
	TargetDate         time.Time `json:"target_date"`
}

// PredictiveAssessment groups forecasts for several horizons.
type PredictiveAssessment struct {
	RouteID          string            `json:"route_id,omitempty"`
	Origin           string            `json:"origin"`
	Destination      string            `json:"destination"`
	CurrentRiskScore float64           `json:"current_risk_score"`
	Predictions      []PredictiveScore `json:"predictions"`
	OverallTrend     Trend             `json:"overall_trend"`
	Recommendation   string            `json:"recommendation"`
	AssessedAt       time.Time         `json:"assessment_timestamp"`
}
