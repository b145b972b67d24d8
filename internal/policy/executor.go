package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

// Hook performs the side effect of an action, such as notifying a carrier
// system. A nil Hook completes every action immediately.
type Hook func(ctx context.Context, a *model.ExecutionAction) error

// Executor drives approved actions through executing to completed or failed.
type Executor struct {
	hook Hook
	sink events.Sink
	now  func() time.Time
}

// NewExecutor creates an Executor. A nil sink discards events.
func NewExecutor(hook Hook, sink events.Sink) *Executor {
	if sink == nil {
		sink = events.Discard
	}
	return &Executor{hook: hook, sink: sink, now: time.Now}
}

// WithClock overrides the clock used to stamp executions.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Execute runs a. Only approved actions are executed; anything else yields
// an unsuccessful result with the status unchanged. Hook failures mark the
// action failed. Execute never returns an error.
func (e *Executor) Execute(ctx context.Context, a *model.ExecutionAction) model.ExecutionResult {
	now := e.now().UTC()
	if a.Status != model.ExecutionApproved {
		return model.ExecutionResult{
			Action:     a,
			Success:    false,
			Message:    fmt.Sprintf("Action not approved. Status: %s", a.Status),
			ExecutedAt: now,
			Details:    map[string]any{"status": string(a.Status)},
		}
	}

	if err := a.Transition(model.ExecutionExecuting, now); err != nil {
		return e.fail(ctx, a, now, err)
	}
	events.RecordExecution(ctx, e.sink, a, map[string]any{
		"original_route": a.OriginalRouteID,
		"new_route":      a.NewRouteID,
		"risk_before":    a.RiskScoreBefore,
		"risk_after":     a.RiskScoreAfter,
	})

	if err := e.run(ctx, a); err != nil {
		return e.fail(ctx, a, now, err)
	}

	if err := a.Transition(model.ExecutionCompleted, now); err != nil {
		return e.fail(ctx, a, now, err)
	}
	executedAt := a.ExecutedAt.Format(time.RFC3339)
	events.RecordExecution(ctx, e.sink, a, map[string]any{"executed_at": executedAt})
	zap.L().Info("policy: action executed",
		zap.String("action_id", a.ActionID),
		zap.String("shipment_id", a.ShipmentID),
		zap.String("new_route_id", a.NewRouteID),
	)

	return model.ExecutionResult{
		Action:     a,
		Success:    true,
		Message:    fmt.Sprintf("Successfully executed %s for shipment %s", a.ActionType, a.ShipmentID),
		ExecutedAt: now,
		Details: map[string]any{
			"action_id":      a.ActionID,
			"risk_reduction": model.Round(a.RiskReduction(), 3),
			"executed_at":    executedAt,
		},
	}
}

// run calls the hook, converting a panic into an error.
func (e *Executor) run(ctx context.Context, a *model.ExecutionAction) (err error) {
	if e.hook == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("policy: execution hook panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "policy: execution cancelled")
	}
	return e.hook(ctx, a)
}

func (e *Executor) fail(ctx context.Context, a *model.ExecutionAction, now time.Time, err error) model.ExecutionResult {
	if a.Status == model.ExecutionExecuting {
		_ = a.Transition(model.ExecutionFailed, now)
	}
	zap.L().Error("policy: action failed",
		zap.String("action_id", a.ActionID),
		zap.String("shipment_id", a.ShipmentID),
		zap.Error(err),
	)
	events.RecordExecution(ctx, e.sink, a, map[string]any{"error": err.Error()})
	return model.ExecutionResult{
		Action:     a,
		Success:    false,
		Message:    "Execution failed: " + err.Error(),
		ExecutedAt: now,
		Details:    map[string]any{"error": err.Error()},
	}
}
