package events

import (
	"context"
	"fmt"

	"github.com/sells-group/reroute/internal/model"
)

// LevelForRisk maps a risk score to an event level.
func LevelForRisk(score float64) Level {
	switch {
	case score >= model.CriticalThreshold:
		return LevelCritical
	case score >= model.HighThreshold:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// LevelForStatus maps an execution status to an event level.
func LevelForStatus(s model.ExecutionStatus) Level {
	switch s {
	case model.ExecutionFailed:
		return LevelError
	case model.ExecutionExecuting:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// RecordMonitoring records a monitoring decision for a shipment. reason is
// optional.
func RecordMonitoring(ctx context.Context, sink Sink, shipmentID, routeID string, score float64, action, reason string) {
	level := model.LevelForScore(score)
	e := New(LevelForRisk(score), CategoryMonitoring,
		fmt.Sprintf("Monitoring event: Risk %.2f (%s), Action: %s", score, level, action))
	e.ShipmentID = shipmentID
	e.RouteID = routeID
	e.Details = map[string]any{
		"risk_score":   score,
		"risk_level":   string(level),
		"action_taken": action,
	}
	if reason != "" {
		e.Details["reason"] = reason
	}
	sink.Record(ctx, e)
}

// RecordAssessment records a completed risk assessment.
func RecordAssessment(ctx context.Context, sink Sink, a model.RiskAssessment, shipmentID string) {
	e := New(LevelForRisk(a.OverallRiskScore), CategoryRiskAssessment,
		fmt.Sprintf("Risk assessment: Route %s - Risk %.2f (%s)", routeLabel(a.RouteID, a.Origin, a.Destination), a.OverallRiskScore, a.RiskLevel))
	e.ShipmentID = shipmentID
	e.RouteID = a.RouteID
	e.Details = map[string]any{
		"origin":      a.Origin,
		"destination": a.Destination,
		"risk_score":  a.OverallRiskScore,
		"risk_level":  string(a.RiskLevel),
		"confidence":  a.Confidence,
		"breakdown":   a.Breakdown,
	}
	sink.Record(ctx, e)
}

// RecordPrediction records each horizon of a predictive assessment.
func RecordPrediction(ctx context.Context, sink Sink, pa model.PredictiveAssessment, shipmentID string) {
	route := routeLabel(pa.RouteID, pa.Origin, pa.Destination)
	for _, p := range pa.Predictions {
		e := New(LevelInfo, CategoryPrediction,
			fmt.Sprintf("Prediction: Route %s - %d days ahead: %.2f (%s)", route, p.DaysAhead, p.PredictedRiskScore, p.Trend))
		e.ShipmentID = shipmentID
		e.RouteID = pa.RouteID
		e.Details = map[string]any{
			"days_ahead":      p.DaysAhead,
			"predicted_score": p.PredictedRiskScore,
			"trend":           string(p.Trend),
			"confidence":      p.Confidence,
		}
		sink.Record(ctx, e)
	}
}

// RecordOptimization records an optimization result.
func RecordOptimization(ctx context.Context, sink Sink, r *model.OptimizationResult, shipmentID string) {
	if r == nil {
		return
	}
	ids := make([]string, 0, len(r.OptimizedRoutes))
	for _, rt := range r.OptimizedRoutes {
		ids = append(ids, rt.RouteID)
	}
	e := New(LevelInfo, CategoryOptimization,
		fmt.Sprintf("Route optimization: %d alternatives found for route %s", len(r.OptimizedRoutes),
			routeLabel(r.OriginalRoute.RouteID, r.OriginalRoute.Origin, r.OriginalRoute.Destination)))
	e.ShipmentID = shipmentID
	e.RouteID = r.OriginalRoute.RouteID
	e.Details = map[string]any{
		"optimization_id":    r.ID,
		"alternatives_count": len(r.OptimizedRoutes),
		"alternatives":       ids,
		"criteria":           r.OptimizationCriteria,
		"recommendation":     r.Recommendation,
	}
	sink.Record(ctx, e)
}

// RecordExecution records an action status change.
func RecordExecution(ctx context.Context, sink Sink, a *model.ExecutionAction, details map[string]any) {
	if a == nil {
		return
	}
	e := New(LevelForStatus(a.Status), CategoryExecution,
		fmt.Sprintf("Execution: %s for shipment %s - Status: %s", a.ActionType, a.ShipmentID, a.Status))
	e.ShipmentID = a.ShipmentID
	e.RouteID = a.NewRouteID
	e.ActionID = a.ActionID
	e.Details = map[string]any{
		"action_type": a.ActionType,
		"status":      string(a.Status),
	}
	for k, v := range details {
		e.Details[k] = v
	}
	sink.Record(ctx, e)
}

// RecordIngestion records a signal fetch.
func RecordIngestion(ctx context.Context, sink Sink, source string, count int, region string, details map[string]any) {
	e := New(LevelInfo, CategoryDataIngestion,
		fmt.Sprintf("Data ingestion: %d points from %s", count, source))
	e.Details = map[string]any{
		"source":            source,
		"data_points_count": count,
	}
	if region != "" {
		e.Details["region"] = region
	}
	for k, v := range details {
		e.Details[k] = v
	}
	sink.Record(ctx, e)
}

func routeLabel(id, origin, destination string) string {
	if id != "" {
		return id
	}
	return origin + " -> " + destination
}
