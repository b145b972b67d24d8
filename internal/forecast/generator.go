package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reroute/internal/model"
)

// firstObject matches the first flat JSON object in a reply.
var firstObject = regexp.MustCompile(`\{[^}]+\}`)

type generatedForecast struct {
	PredictedRiskScore *float64 `json:"predicted_risk_score"`
	Confidence         *float64 `json:"confidence"`
	Trend              string   `json:"trend"`
	KeyFactors         []string `json:"key_factors"`
}

func (f *Forecaster) predictWithGenerator(ctx context.Context, current model.RiskAssessment, historical []model.Signal, daysAhead int) (model.PredictiveScore, error) {
	now := f.now()
	reply, err := f.gen.Generate(ctx, "forecast", buildPrompt(current, historical, daysAhead, now))
	if err != nil {
		return model.PredictiveScore{}, err
	}

	g, err := parseForecast(reply)
	if err != nil {
		return model.PredictiveScore{}, err
	}

	score, conf := 0.5, 0.7
	if g.PredictedRiskScore != nil {
		score = *g.PredictedRiskScore
	}
	if g.Confidence != nil {
		conf = *g.Confidence
	}
	score = model.Round(model.Clamp01(score), 3)
	factors := g.KeyFactors
	if factors == nil {
		factors = []string{}
	}

	return model.PredictiveScore{
		DaysAhead:          daysAhead,
		PredictedRiskScore: score,
		PredictedRiskLevel: model.LevelForScore(score),
		Confidence:         model.Round(model.Clamp01(conf), 2),
		Trend:              model.ParseTrend(g.Trend),
		Factors:            factors,
		PredictedAt:        now,
		TargetDate:         now.AddDate(0, 0, daysAhead),
	}, nil
}

func parseForecast(reply string) (generatedForecast, error) {
	raw := firstObject.FindString(reply)
	if raw == "" {
		raw = strings.TrimSpace(reply)
	}

	var g generatedForecast
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return g, eris.Wrap(err, "forecast: parse generator reply")
	}
	return g, nil
}

func buildPrompt(current model.RiskAssessment, historical []model.Signal, daysAhead int, now time.Time) string {
	recentHigh := 0
	for _, s := range historical {
		if s.ClampedSeverity() > 0.6 && s.Age(now) < 7*24*time.Hour {
			recentHigh++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a supply chain risk prediction expert. Analyze the following risk data and predict the risk level %d days into the future.\n\n", daysAhead)
	b.WriteString("Current Risk Assessment:\n")
	fmt.Fprintf(&b, "- Overall Risk Score: %.2f\n", current.OverallRiskScore)
	fmt.Fprintf(&b, "- Risk Level: %s\n", current.RiskLevel)
	fmt.Fprintf(&b, "- Route: %s → %s\n\n", current.Origin, current.Destination)

	b.WriteString("Current Risk Factors:\n")
	for i, cf := range current.ContributingFactors {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "- %s: %s (severity: %.2f)\n", cf.Category, cf.Title, cf.Severity)
	}

	b.WriteString("\nRisk Breakdown:\n")
	fmt.Fprintf(&b, "- Trade News Risk: %.2f\n", current.Breakdown.TradeNews)
	fmt.Fprintf(&b, "- Political Risk: %.2f\n", current.Breakdown.Political)
	fmt.Fprintf(&b, "- Port Congestion Risk: %.2f\n\n", current.Breakdown.PortCongestion)
	fmt.Fprintf(&b, "Recent High-Severity Events (last 7 days): %d\n\n", recentHigh)

	fmt.Fprintf(&b, "Based on this data, predict the risk level %d days from now. Consider:\n", daysAhead)
	b.WriteString("1. Current trends and patterns\n2. Historical risk patterns for similar routes\n")
	b.WriteString("3. Geopolitical and trade dynamics\n4. Port congestion patterns\n\n")
	b.WriteString("Provide your prediction in the following JSON format:\n")
	b.WriteString("{\n    \"predicted_risk_score\": <float between 0.0 and 1.0>,\n")
	b.WriteString("    \"confidence\": <float between 0.0 and 1.0>,\n")
	b.WriteString("    \"trend\": \"<increasing|decreasing|stable>\",\n")
	b.WriteString("    \"key_factors\": [\"factor1\", \"factor2\", \"factor3\"]\n}\n\n")
	b.WriteString("Be specific and data-driven in your prediction.")
	return b.String()
}
