package model

import (
	"math"
	"time"
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Score thresholds (inclusive lower bounds).
const (
	CriticalThreshold = 0.75
	HighThreshold     = 0.50
	MediumThreshold   = 0.25
)

// LevelForScore maps a score in [0, 1] to its risk level.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return RiskLevelCritical
	case score >= HighThreshold:
		return RiskLevelHigh
	case score >= MediumThreshold:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// RiskBreakdown holds per-category scores and their weighted total.
type RiskBreakdown struct {
	TradeNews      float64 `json:"trade_news"`
	Political      float64 `json:"political"`
	PortCongestion float64 `json:"port_congestion"`
	Total          float64 `json:"total"`
}

// Score returns the breakdown score for a category.
func (b RiskBreakdown) Score(c Category) float64 {
	switch c {
	case CategoryTradeNews:
		return b.TradeNews
	case CategoryPolitical:
		return b.Political
	case CategoryPortCongestion:
		return b.PortCongestion
	default:
		return 0
	}
}

// Dominant returns the category with the highest score. Ties resolve in
// Categories order.
func (b RiskBreakdown) Dominant() Category {
	best := Categories[0]
	for _, c := range Categories[1:] {
		if b.Score(c) > b.Score(best) {
			best = c
		}
	}
	return best
}

// ContributingFactor is a signal surfaced as a top driver of an assessment.
type ContributingFactor struct {
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    float64   `json:"severity"`
	Location    string    `json:"location"`
	HoursAgo    float64   `json:"hours_ago"`
	Impact      RiskLevel `json:"impact"`
}

// RiskAssessment is the result of aggregating signals for a route.
type RiskAssessment struct {
	RouteID             string               `json:"route_id,omitempty"`
	Origin              string               `json:"origin"`
	Destination         string               `json:"destination"`
	OverallRiskScore    float64              `json:"overall_risk_score"`
	RiskLevel           RiskLevel            `json:"risk_level"`
	Breakdown           RiskBreakdown        `json:"breakdown"`
	ContributingFactors []ContributingFactor `json:"contributing_factors"`
	Recommendation      string               `json:"recommendation"`
	Confidence          float64              `json:"confidence"`
	AssessedAt          time.Time            `json:"assessment_timestamp"`
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
