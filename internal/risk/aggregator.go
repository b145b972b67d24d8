// Package risk aggregates categorized signals into a route risk assessment.
package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/model"
)

const (
	maxFactors        = 5
	recentWindow      = 24 * time.Hour
	emptyConfidence   = 0.3
	criticalSeverity  = 0.8
	recentSeverity    = 0.7
	perCriticalBoost  = 0.05
	maxCriticalFactor = 1.2
	recentBoost       = 0.1
	maxMultiplier     = 1.3
)

// DefaultWeights are the category weights used when none are configured.
var DefaultWeights = config.CategoryWeights{TradeNews: 0.35, Political: 0.40, PortCongestion: 0.25}

// DefaultDecayWindow is the age at which a signal stops contributing.
const DefaultDecayWindow = 168 * time.Hour

// Aggregator scores signal sets. It holds no mutable state and is safe for
// concurrent use.
type Aggregator struct {
	weights config.CategoryWeights
	decay   time.Duration
	now     func() time.Time
}

// NewAggregator creates an Aggregator from config, falling back to the
// default weights and decay window for zero values.
func NewAggregator(cfg config.RiskConfig) *Aggregator {
	a := &Aggregator{
		weights: cfg.Weights,
		decay:   time.Duration(cfg.DecayWindowHours * float64(time.Hour)),
		now:     time.Now,
	}
	if a.weights.Sum() <= 0 {
		a.weights = DefaultWeights
	}
	if a.decay <= 0 {
		a.decay = DefaultDecayWindow
	}
	return a
}

// WithClock returns a copy of the aggregator that reads time from now.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	cp := *a
	cp.now = now
	return &cp
}

// Now returns the aggregator's current time.
func (a *Aggregator) Now() time.Time {
	return a.now()
}

// Assess scores signals for a route. It never fails: an empty signal set
// yields a zero-risk, low-confidence assessment.
func (a *Aggregator) Assess(signals []model.Signal, origin, destination, routeID string) model.RiskAssessment {
	now := a.now()

	breakdown := a.breakdown(signals, now)
	score := model.Round(min(1, breakdown.Total*escalation(signals, now)), 3)
	level := model.LevelForScore(score)

	return model.RiskAssessment{
		RouteID:             routeID,
		Origin:              origin,
		Destination:         destination,
		OverallRiskScore:    score,
		RiskLevel:           level,
		Breakdown:           breakdown,
		ContributingFactors: topFactors(signals, now),
		Recommendation:      Recommendation(level, breakdown),
		Confidence:          confidence(signals, now),
		AssessedAt:          now,
	}
}

// Compare orders assessments from lowest to highest overall risk.
func (a *Aggregator) Compare(assessments []model.RiskAssessment) []model.RiskAssessment {
	out := append([]model.RiskAssessment(nil), assessments...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OverallRiskScore < out[j].OverallRiskScore
	})
	return out
}

func (a *Aggregator) breakdown(signals []model.Signal, now time.Time) model.RiskBreakdown {
	byCat := make(map[model.Category][]model.Signal, len(model.Categories))
	for _, s := range signals {
		byCat[s.Category] = append(byCat[s.Category], s)
	}

	b := model.RiskBreakdown{
		TradeNews:      a.categoryScore(byCat[model.CategoryTradeNews], now),
		Political:      a.categoryScore(byCat[model.CategoryPolitical], now),
		PortCongestion: a.categoryScore(byCat[model.CategoryPortCongestion], now),
	}
	b.Total = b.TradeNews*a.weights.TradeNews +
		b.Political*a.weights.Political +
		b.PortCongestion*a.weights.PortCongestion
	return b
}

// categoryScore averages decayed severities over the signal count. Signals
// past the decay window still count in the denominator.
func (a *Aggregator) categoryScore(signals []model.Signal, now time.Time) float64 {
	if len(signals) == 0 {
		return 0
	}

	var sum, totalWeight float64
	for _, s := range signals {
		w := a.TimeWeight(s, now)
		sum += s.ClampedSeverity() * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return min(1, sum/float64(len(signals)))
}

// TimeWeight is 1 for a fresh signal, falling linearly to 0 at the decay
// window. Future timestamps count as fresh.
func (a *Aggregator) TimeWeight(s model.Signal, now time.Time) float64 {
	age := s.Age(now)
	if age < 0 {
		age = 0
	}
	return max(0, 1-float64(age)/float64(a.decay))
}

func escalation(signals []model.Signal, now time.Time) float64 {
	m := 1.0

	critical := 0
	recent := false
	for _, s := range signals {
		sev := s.ClampedSeverity()
		if sev > criticalSeverity {
			critical++
		}
		if sev > recentSeverity && s.Age(now) < recentWindow {
			recent = true
		}
	}

	if critical > 0 {
		m = min(maxCriticalFactor, 1+perCriticalBoost*float64(critical))
	}
	if recent {
		m = min(maxMultiplier, m+recentBoost)
	}
	return m
}

func topFactors(signals []model.Signal, now time.Time) []model.ContributingFactor {
	sorted := append([]model.Signal(nil), signals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].ClampedSeverity(), sorted[j].ClampedSeverity()
		if si != sj {
			return si > sj
		}
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > maxFactors {
		sorted = sorted[:maxFactors]
	}

	factors := make([]model.ContributingFactor, 0, len(sorted))
	for _, s := range sorted {
		sev := s.ClampedSeverity()
		factors = append(factors, model.ContributingFactor{
			Category:    s.Category,
			Title:       s.Title,
			Description: s.Description,
			Severity:    sev,
			Location:    s.Location,
			HoursAgo:    model.Round(s.Age(now).Hours(), 1),
			Impact:      model.LevelForScore(sev),
		})
	}
	return factors
}

func confidence(signals []model.Signal, now time.Time) float64 {
	if len(signals) == 0 {
		return emptyConfidence
	}
	recent := 0
	for _, s := range signals {
		if s.Age(now) < recentWindow {
			recent++
		}
	}
	volume := min(1, float64(len(signals))/10)
	recency := min(1, float64(recent)/5)
	return model.Round(0.6*volume+0.4*recency, 2)
}

// Recommendation returns the guidance text for a risk level. High risk
// names the dominant category.
func Recommendation(level model.RiskLevel, b model.RiskBreakdown) string {
	switch level {
	case model.RiskLevelCritical:
		return "CRITICAL RISK: Immediate rerouting recommended. " +
			"Multiple high-severity risks detected. " +
			"Consider alternative routes or delay shipment."
	case model.RiskLevelHigh:
		return fmt.Sprintf("HIGH RISK: Consider rerouting. Primary concern: %s. "+
			"Monitor closely and prepare alternative routes.", b.Dominant().Label())
	case model.RiskLevelMedium:
		return "MEDIUM RISK: Monitor route conditions. " +
			"Some risks present but manageable. " +
			"Have contingency plans ready."
	default:
		return "LOW RISK: Route appears safe. " +
			"Continue monitoring for any changes in conditions."
	}
}
