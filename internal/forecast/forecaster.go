// Package forecast predicts route risk a few days ahead, using a text
// generator when one is configured and a statistical model otherwise.
package forecast

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/textgen"
)

// DefaultHorizons are the day offsets forecast when none are requested.
var DefaultHorizons = []int{3, 5, 7}

const (
	historyWindow     = 10
	increaseRatio     = 1.1
	decreaseRatio     = 0.9
	increaseTarget    = 1.15
	decreaseTarget    = 0.85
	dailyUncertainty  = 0.02
	baseConfidence    = 0.8
	confidenceStep    = 0.05
	minConfidence     = 0.5
	forecastFactorCap = 3
)

// Forecaster produces PredictiveScores. A nil generator selects the
// statistical strategy only.
type Forecaster struct {
	gen textgen.Generator
	now func() time.Time
}

// New creates a Forecaster. gen may be nil.
func New(gen textgen.Generator) *Forecaster {
	return &Forecaster{gen: gen, now: time.Now}
}

// WithClock returns a copy of the forecaster that reads time from now.
func (f *Forecaster) WithClock(now func() time.Time) *Forecaster {
	cp := *f
	cp.now = now
	return &cp
}

// Predict forecasts the risk daysAhead days after current. Generator
// failures and unparsable replies fall back to the statistical strategy.
func (f *Forecaster) Predict(ctx context.Context, current model.RiskAssessment, historical []model.Signal, daysAhead int) model.PredictiveScore {
	if f.gen != nil {
		p, err := f.predictWithGenerator(ctx, current, historical, daysAhead)
		if err == nil {
			return p
		}
		zap.L().Warn("forecast: generator prediction failed, using statistical model",
			zap.String("route", current.Origin+" -> "+current.Destination),
			zap.Int("days_ahead", daysAhead),
			zap.Error(err),
		)
	}
	return f.predictStatistical(current, historical, daysAhead)
}

// PredictRoute forecasts every horizon independently. Non-positive
// horizons are dropped; an empty list uses DefaultHorizons.
func (f *Forecaster) PredictRoute(ctx context.Context, current model.RiskAssessment, historical []model.Signal, horizons []int) model.PredictiveAssessment {
	days := validHorizons(horizons)

	preds := make([]model.PredictiveScore, 0, len(days))
	for _, d := range days {
		preds = append(preds, f.Predict(ctx, current, historical, d))
	}
	trend := OverallTrend(preds)

	return model.PredictiveAssessment{
		RouteID:          current.RouteID,
		Origin:           current.Origin,
		Destination:      current.Destination,
		CurrentRiskScore: current.OverallRiskScore,
		Predictions:      preds,
		OverallTrend:     trend,
		Recommendation:   Recommendation(preds, trend),
		AssessedAt:       f.now(),
	}
}

func validHorizons(horizons []int) []int {
	var out []int
	for _, h := range horizons {
		if h > 0 {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return DefaultHorizons
	}
	return out
}

func (f *Forecaster) predictStatistical(current model.RiskAssessment, historical []model.Signal, daysAhead int) model.PredictiveScore {
	score := current.OverallRiskScore
	trend, target := model.TrendStable, score

	if n := min(len(historical), historyWindow); n > 0 {
		var sum float64
		for _, s := range historical[:n] {
			sum += s.ClampedSeverity()
		}
		avg := sum / float64(n)

		switch {
		case avg > score*increaseRatio:
			trend, target = model.TrendIncreasing, min(1, score*increaseTarget)
		case avg < score*decreaseRatio:
			trend, target = model.TrendDecreasing, max(0, score*decreaseTarget)
		}
	}

	tf := 1 - dailyUncertainty*float64(daysAhead)
	predicted := model.Round(model.Clamp01(score*tf+target*(1-tf)), 3)

	factors := make([]string, 0, forecastFactorCap)
	for i, cf := range current.ContributingFactors {
		if i == forecastFactorCap {
			break
		}
		factors = append(factors, cf.Title)
	}

	now := f.now()
	return model.PredictiveScore{
		DaysAhead:          daysAhead,
		PredictedRiskScore: predicted,
		PredictedRiskLevel: model.LevelForScore(predicted),
		Confidence:         model.Round(max(minConfidence, baseConfidence-confidenceStep*float64(daysAhead)), 2),
		Trend:              trend,
		Factors:            factors,
		PredictedAt:        now,
		TargetDate:         now.AddDate(0, 0, daysAhead),
	}
}

// OverallTrend is the majority trend across predictions. Ties and an empty
// list are stable.
func OverallTrend(preds []model.PredictiveScore) model.Trend {
	var up, down int
	for _, p := range preds {
		switch p.Trend {
		case model.TrendIncreasing:
			up++
		case model.TrendDecreasing:
			down++
		}
	}
	switch {
	case up > down:
		return model.TrendIncreasing
	case down > up:
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

// Recommendation summarizes a set of forecasts keyed by the worst horizon
// and the overall trend.
func Recommendation(preds []model.PredictiveScore, trend model.Trend) string {
	if len(preds) > 0 {
		worst := preds[0]
		for _, p := range preds[1:] {
			if p.PredictedRiskScore > worst.PredictedRiskScore {
				worst = p
			}
		}

		switch worst.PredictedRiskLevel {
		case model.RiskLevelCritical:
			return fmt.Sprintf("CRITICAL RISK PREDICTED: Risk is predicted to reach critical levels (%.2f) in %d days. "+
				"Immediate action required. Consider rerouting or delaying shipment.",
				worst.PredictedRiskScore, worst.DaysAhead)
		case model.RiskLevelHigh:
			if trend == model.TrendIncreasing {
				return fmt.Sprintf("HIGH RISK TREND: Risk is increasing and predicted to reach %.2f in %d days. "+
					"Prepare alternative routes and monitor closely.",
					worst.PredictedRiskScore, worst.DaysAhead)
			}
			return "MODERATE RISK: Risk predicted to remain manageable. " +
				"Monitor conditions and have contingency plans ready."
		}
	}

	if trend == model.TrendDecreasing {
		return "POSITIVE TREND: Risk is decreasing. Current risk should improve over time. " +
			"Continue monitoring but conditions appear favorable."
	}
	return "STABLE CONDITIONS: Risk levels predicted to remain relatively stable. " +
		"Continue standard monitoring procedures."
}
