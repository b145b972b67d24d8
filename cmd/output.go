package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

// render writes v as indented JSON when --format json is set, otherwise
// calls table.
func render(out io.Writer, v any, table func(io.Writer)) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "table", "":
		table(out)
		return nil
	default:
		return eris.Errorf("unknown output format %q (want table or json)", outputFormat)
	}
}

// formatAssessment writes a risk assessment summary to w.
func formatAssessment(out io.Writer, a model.RiskAssessment) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Route:\t%s -> %s\n", a.Origin, a.Destination)
	if a.RouteID != "" {
		_, _ = fmt.Fprintf(w, "Route ID:\t%s\n", a.RouteID)
	}
	_, _ = fmt.Fprintf(w, "Risk:\t%.3f (%s)\n", a.OverallRiskScore, a.RiskLevel)
	_, _ = fmt.Fprintf(w, "Confidence:\t%.2f\n", a.Confidence)
	for _, c := range model.Categories {
		_, _ = fmt.Fprintf(w, "  %s:\t%.3f\n", c.Label(), a.Breakdown.Score(c))
	}
	_, _ = fmt.Fprintf(w, "Recommendation:\t%s\n", a.Recommendation)
	_ = w.Flush()

	if len(a.ContributingFactors) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tSEVERITY\tAGE\tIMPACT\tTITLE")
	_, _ = fmt.Fprintln(w, "--------\t--------\t---\t------\t-----")
	for _, f := range a.ContributingFactors {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.0fh\t%s\t%s\n", f.Category.Label(), f.Severity, f.HoursAgo, f.Impact, clip(f.Title, 60))
	}
	_ = w.Flush()
}

// formatPrediction writes a predictive assessment to w.
func formatPrediction(out io.Writer, p model.PredictiveAssessment) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Route:\t%s -> %s\n", p.Origin, p.Destination)
	_, _ = fmt.Fprintf(w, "Current risk:\t%.3f\n", p.CurrentRiskScore)
	_, _ = fmt.Fprintf(w, "Trend:\t%s\n", p.OverallTrend)
	_, _ = fmt.Fprintf(w, "Recommendation:\t%s\n", p.Recommendation)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "DAYS\tSCORE\tLEVEL\tCONFIDENCE\tTREND\tFACTORS")
	_, _ = fmt.Fprintln(w, "----\t-----\t-----\t----------\t-----\t-------")
	for _, s := range p.Predictions {
		_, _ = fmt.Fprintf(w, "%d\t%.3f\t%s\t%.2f\t%s\t%s\n",
			s.DaysAhead, s.PredictedRiskScore, s.PredictedRiskLevel, s.Confidence, s.Trend, clip(strings.Join(s.Factors, "; "), 60))
	}
	_ = w.Flush()
}

// formatOptimization writes the ranked alternatives to w.
func formatOptimization(out io.Writer, r *model.OptimizationResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tROUTE\tSCORE\tRISK\tCOST\tDAYS\tREASON")
	_, _ = fmt.Fprintln(w, "----\t-----\t-----\t----\t----\t----\t------")
	rows := append([]model.OptimizedRoute{r.OriginalRoute}, r.OptimizedRoutes...)
	for _, rt := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.4f\t%.3f\t%.0f\t%.1f\t%s\n",
			rt.Rank, rt.RouteID, rt.OptimizationScore, rt.Metrics.RiskScore, rt.Metrics.CostUSD, rt.Metrics.TimeDays, rt.RecommendationReason)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nWeights: risk %.2f, cost %.2f, time %.2f\n",
		r.OptimizationCriteria.Risk, r.OptimizationCriteria.Cost, r.OptimizationCriteria.Time)
	_, _ = fmt.Fprintf(out, "Recommendation: %s\n", r.Recommendation)
}

// formatAction writes a single action to w. A nil action prints a notice.
func formatAction(out io.Writer, a *model.ExecutionAction) {
	if a == nil {
		_, _ = fmt.Fprintln(out, "No action required.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Action:\t%s\n", a.ActionID)
	_, _ = fmt.Fprintf(w, "Shipment:\t%s\n", a.ShipmentID)
	_, _ = fmt.Fprintf(w, "Route:\t%s -> %s\n", a.OriginalRouteID, a.NewRouteID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", a.Status)
	_, _ = fmt.Fprintf(w, "Risk:\t%.3f -> %.3f\n", a.RiskScoreBefore, a.RiskScoreAfter)
	_, _ = fmt.Fprintf(w, "Reason:\t%s\n", a.Reason)
	_ = w.Flush()
}

// formatActions writes a tabular list of actions to w.
func formatActions(out io.Writer, actions []model.ExecutionAction) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSHIPMENT\tNEW_ROUTE\tSTATUS\tRISK\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t---------\t------\t----\t-------")
	for _, a := range actions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f -> %.2f\t%s\n",
			a.ActionID, a.ShipmentID, a.NewRouteID, a.Status, a.RiskScoreBefore, a.RiskScoreAfter,
			a.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

// formatResult writes an execution result to w.
func formatResult(out io.Writer, r model.ExecutionResult) {
	status := "FAILED"
	if r.Success {
		status = "OK"
	}
	_, _ = fmt.Fprintf(out, "%s: %s\n", status, r.Message)
	if r.Action != nil {
		formatAction(out, r.Action)
	}
}

// formatEvents writes a tabular list of events to w.
func formatEvents(out io.Writer, evs []events.Event) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tLEVEL\tCATEGORY\tSHIPMENT\tMESSAGE")
	_, _ = fmt.Fprintln(w, "----\t-----\t--------\t--------\t-------")
	for _, e := range evs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Category, e.ShipmentID, clip(e.Message, 80))
	}
	_ = w.Flush()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
