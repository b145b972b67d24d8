package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ExecutionStatus is the lifecycle state of an execution action.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionApproved  ExecutionStatus = "approved"
	ExecutionExecuting ExecutionStatus = "executing"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionRejected  ExecutionStatus = "rejected"
)

// ErrIllegalTransition is returned when a status change violates the
// execution lifecycle.
var ErrIllegalTransition = eris.New("model: illegal execution status transition")

var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionPending:   {ExecutionApproved, ExecutionRejected},
	ExecutionApproved:  {ExecutionExecuting},
	ExecutionExecuting: {ExecutionCompleted, ExecutionFailed},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	for _, allowed := range executionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionRejected
}

// ParseExecutionStatus converts a string into an ExecutionStatus.
func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	st := ExecutionStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case ExecutionPending, ExecutionApproved, ExecutionExecuting,
		ExecutionCompleted, ExecutionFailed, ExecutionRejected:
		return st, nil
	default:
		return "", eris.Errorf("model: unknown execution status %q", s)
	}
}

// ExecutionMode controls how reroute actions are approved.
type ExecutionMode string

const (
	ModeAutomatic     ExecutionMode = "automatic"
	ModeSemiAutomatic ExecutionMode = "semi_automatic"
	ModeManual        ExecutionMode = "manual"
)

// ParseExecutionMode converts a string into an ExecutionMode. Empty means
// semi-automatic.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	m := ExecutionMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return ModeSemiAutomatic, nil
	case ModeAutomatic, ModeSemiAutomatic, ModeManual:
		return m, nil
	default:
		return "", eris.Errorf("model: unknown execution mode %q", s)
	}
}

// ActionTypeReroute is the only action type the policy currently emits.
const ActionTypeReroute = "reroute"

// ExecutionAction is a proposed or performed reroute.
type ExecutionAction struct {
	ActionID        string          `json:"action_id"`
	ActionType      string          `json:"action_type"`
	ShipmentID      string          `json:"shipment_id"`
	OriginalRouteID string          `json:"original_route_id"`
	NewRouteID      string          `json:"new_route_id,omitempty"`
	Reason          string          `json:"reason"`
	RiskScoreBefore float64         `json:"risk_score_before"`
	RiskScoreAfter  float64         `json:"risk_score_after"`
	EstimatedImpact map[string]any  `json:"estimated_impact"`
	Status          ExecutionStatus `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty"`
	ExecutedBy      string          `json:"executed_by"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// Transition moves the action to next if the lifecycle allows it. Entering
// executing stamps ExecutedAt.
func (a *ExecutionAction) Transition(next ExecutionStatus, now time.Time) error {
	if !a.Status.CanTransition(next) {
		return eris.Wrapf(ErrIllegalTransition, "%s -> %s", a.Status, next)
	}
	a.Status = next
	if next == ExecutionExecuting {
		t := now
		a.ExecutedAt = &t
	}
	return nil
}

// RiskReduction returns the expected drop in risk score.
func (a *ExecutionAction) RiskReduction() float64 {
	return a.RiskScoreBefore - a.RiskScoreAfter
}

// ExecutionResult reports the outcome of an execution attempt.
type ExecutionResult struct {
	Action     *ExecutionAction `json:"action"`
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	ExecutedAt time.Time        `json:"execution_timestamp"`
	Details    map[string]any   `json:"details,omitempty"`
}
