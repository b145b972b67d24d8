package optimizer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/reroute/internal/model"
)

const (
	strongReduction   = 0.2
	moderateReduction = 0.1
)

var printer = message.NewPrinter(language.English)

// recommend asks the generator for a recommendation and falls back to the
// deterministic rules when it is unavailable, fails or answers empty.
func (o *Optimizer) recommend(ctx context.Context, original model.OptimizedRoute, alternatives []model.OptimizedRoute) string {
	if len(alternatives) == 0 {
		return "No alternative routes found. Current route is the only option."
	}
	best := alternatives[0]
	if o.gen != nil {
		reply, err := o.gen.Generate(ctx, "route_recommendation", buildPrompt(original, best))
		if err == nil && strings.TrimSpace(reply) != "" {
			return strings.TrimSpace(reply)
		}
		zap.L().Warn("optimizer: recommendation generator unavailable, using rules", zap.Error(err))
	}
	return FallbackRecommendation(original, best)
}

// FallbackRecommendation is the rule-based recommendation comparing the best
// alternative with the original route.
func FallbackRecommendation(original, best model.OptimizedRoute) string {
	reduction := original.Metrics.RiskScore - best.Metrics.RiskScore
	costDelta := best.Metrics.CostUSD - original.Metrics.CostUSD
	timeDelta := best.Metrics.TimeDays - original.Metrics.TimeDays
	via := viaLabel(best)

	switch {
	case reduction > strongReduction:
		return fmt.Sprintf("STRONGLY RECOMMENDED: Reroute via %s. Risk reduction: %.2f (%.2f -> %.2f). Cost impact: %s. Time impact: %+.1f days.",
			via, reduction, original.Metrics.RiskScore, best.Metrics.RiskScore, signedUSD(costDelta), timeDelta)
	case reduction > moderateReduction:
		return fmt.Sprintf("RECOMMENDED: Consider rerouting via %s. Risk reduction: %.2f. Cost impact: %s. Time impact: %+.1f days.",
			via, reduction, signedUSD(costDelta), timeDelta)
	case best.OptimizationScore < original.OptimizationScore:
		return fmt.Sprintf("OPTIONAL: Alternative route via %s offers better overall optimization. Risk: %.2f vs %.2f. Cost: %s vs %s. Time: %.1f vs %.1f days.",
			via, best.Metrics.RiskScore, original.Metrics.RiskScore,
			usd(best.Metrics.CostUSD), usd(original.Metrics.CostUSD),
			best.Metrics.TimeDays, original.Metrics.TimeDays)
	default:
		return "CURRENT ROUTE OPTIMAL: Current route appears to be the best option based on the selected optimization criteria."
	}
}

// Reason is a short explanation of how r compares with the original route.
func Reason(r, original model.OptimizedRoute) string {
	if r.RouteID == original.RouteID {
		return "Baseline: current route"
	}
	var parts []string
	if d := original.Metrics.RiskScore - r.Metrics.RiskScore; d > 0 {
		parts = append(parts, fmt.Sprintf("lower risk (-%.2f)", d))
	} else if d < 0 {
		parts = append(parts, fmt.Sprintf("higher risk (+%.2f)", -d))
	}
	if d := original.Metrics.CostUSD - r.Metrics.CostUSD; d > 0 {
		parts = append(parts, "lower cost ("+signedUSD(-d)+")")
	} else if d < 0 {
		parts = append(parts, "higher cost ("+signedUSD(-d)+")")
	}
	if d := original.Metrics.TimeDays - r.Metrics.TimeDays; d > 0 {
		parts = append(parts, fmt.Sprintf("faster (-%.1f days)", d))
	} else if d < 0 {
		parts = append(parts, fmt.Sprintf("slower (+%.1f days)", -d))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Rank %d: equivalent to current route", r.Rank)
	}
	return fmt.Sprintf("Rank %d: %s", r.Rank, strings.Join(parts, ", "))
}

func buildPrompt(original, best model.OptimizedRoute) string {
	reduction := original.Metrics.RiskScore - best.Metrics.RiskScore
	var b strings.Builder
	fmt.Fprintf(&b, "Original Route: %s -> %s\n", original.Origin, original.Destination)
	writeRouteLines(&b, original)
	fmt.Fprintf(&b, "\nBest Alternative Route: %s (%s -> %s)\n", best.RouteID, best.Origin, best.Destination)
	writeRouteLines(&b, best)
	waypoints := "None"
	if len(best.Waypoints) > 0 {
		waypoints = strings.Join(best.Waypoints, ", ")
	}
	fmt.Fprintf(&b, "- Waypoints: %s\n\n", waypoints)
	fmt.Fprintf(&b, "Risk Improvement: %.2f (%.1f%% reduction)\n", reduction, reduction*100)
	fmt.Fprintf(&b, "Cost Impact: %s\n", signedUSD(best.Metrics.CostUSD-original.Metrics.CostUSD))
	fmt.Fprintf(&b, "Time Impact: %+.1f days\n\n", best.Metrics.TimeDays-original.Metrics.TimeDays)
	b.WriteString("Contributing Risk Factors:\n")
	factors := best.RiskAssessment.ContributingFactors
	if len(factors) > 3 {
		factors = factors[:3]
	}
	for _, f := range factors {
		fmt.Fprintf(&b, "- %s: %s (Severity: %.2f)\n", f.Title, clip(f.Description, 100), f.Severity)
	}

	return "Analyze these shipping routes and provide a recommendation:\n\n" + b.String() +
		"\nBased on the risk assessment, cost, and time analysis, should we reroute? " +
		"Provide a clear, concise recommendation (2-3 sentences) explaining:\n" +
		"1. Whether to reroute or stay on current route\n" +
		"2. Key reasons (risk reduction, cost/time tradeoffs)\n" +
		"3. Any important considerations\n\n" +
		"Be specific about the risk factors and why the alternative is better or worse."
}

func writeRouteLines(b *strings.Builder, r model.OptimizedRoute) {
	bd := r.RiskAssessment.Breakdown
	fmt.Fprintf(b, "- Risk Score: %.2f\n", r.Metrics.RiskScore)
	fmt.Fprintf(b, "- Cost: %s\n", usd(r.Metrics.CostUSD))
	fmt.Fprintf(b, "- Time: %.1f days\n", r.Metrics.TimeDays)
	fmt.Fprintf(b, "- Risk Breakdown: Trade News: %.2f, Political: %.2f, Port Congestion: %.2f\n",
		bd.TradeNews, bd.Political, bd.PortCongestion)
}

func viaLabel(r model.OptimizedRoute) string {
	if len(r.Waypoints) > 0 {
		return strings.Join(r.Waypoints, ", ")
	}
	return r.RouteID
}

// usd formats v as whole dollars with thousands separators.
func usd(v float64) string {
	if v < 0 {
		return "-$" + printer.Sprintf("%.0f", math.Abs(v))
	}
	return "$" + printer.Sprintf("%.0f", v)
}

// signedUSD formats v like usd but always carries a sign.
func signedUSD(v float64) string {
	sign := "+"
	if v < 0 {
		sign = "-"
	}
	return "$" + sign + printer.Sprintf("%.0f", math.Abs(v))
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
