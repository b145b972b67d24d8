// Package events records structured operational events (assessments,
// forecasts, optimizations, executions, ingestion) to pluggable sinks.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Level is the severity of an event.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

var levelRank = map[Level]int{LevelInfo: 0, LevelWarning: 1, LevelError: 2, LevelCritical: 3}

// AtLeast reports whether l is as severe as min.
func (l Level) AtLeast(min Level) bool {
	return levelRank[l] >= levelRank[min]
}

// ParseLevel converts a string into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelRank[l]; !ok {
		return "", eris.Errorf("events: unknown level %q", s)
	}
	return l, nil
}

// Category groups events by the operation that produced them.
type Category string

const (
	CategoryMonitoring     Category = "monitoring"
	CategoryRiskAssessment Category = "risk_assessment"
	CategoryPrediction     Category = "prediction"
	CategoryOptimization   Category = "optimization"
	CategoryExecution      Category = "execution"
	CategoryDataIngestion  Category = "data_ingestion"
	CategorySystem         Category = "system"
)

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryMonitoring, CategoryRiskAssessment, CategoryPrediction, CategoryOptimization,
		CategoryExecution, CategoryDataIngestion, CategorySystem:
		return c, nil
	default:
		return "", eris.Errorf("events: unknown category %q", s)
	}
}

// Event is a single structured record.
type Event struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      Level          `json:"level"`
	Category   Category       `json:"category"`
	Message    string         `json:"message"`
	ShipmentID string         `json:"shipment_id,omitempty"`
	RouteID    string         `json:"route_id,omitempty"`
	ActionID   string         `json:"action_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// New creates an event with a fresh ID and the current UTC time.
func New(level Level, category Category, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Category:  category,
		Message:   message,
	}
}

// Filter selects events when listing them back from a store.
type Filter struct {
	Category   Category
	Level      Level
	ShipmentID string
	RouteID    string
	Limit      int
}

// Sink receives events. Record must not fail the caller: implementations
// log their own errors.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) {}

// LogSink writes events to the global zap logger.
type LogSink struct{}

// Record logs e at a zap level matching its severity.
func (LogSink) Record(_ context.Context, e Event) {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("category", string(e.Category)),
	}
	if e.ShipmentID != "" {
		fields = append(fields, zap.String("shipment_id", e.ShipmentID))
	}
	if e.RouteID != "" {
		fields = append(fields, zap.String("route_id", e.RouteID))
	}
	if e.ActionID != "" {
		fields = append(fields, zap.String("action_id", e.ActionID))
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}

	msg := "[" + string(e.Category) + "] " + e.Message
	switch e.Level {
	case LevelCritical, LevelError:
		zap.L().Error(msg, fields...)
	case LevelWarning:
		zap.L().Warn(msg, fields...)
	default:
		zap.L().Info(msg, fields...)
	}
}

// Writer persists events.
type Writer interface {
	SaveEvent(ctx context.Context, e Event) error
}

// StoreSink persists events through a Writer.
type StoreSink struct {
	W Writer
}

// Record saves e, logging any failure.
func (s StoreSink) Record(ctx context.Context, e Event) {
	if err := s.W.SaveEvent(ctx, e); err != nil {
		zap.L().Error("events: failed to persist event",
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
	}
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Record forwards e to every sink.
func (m Multi) Record(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, e)
		}
	}
}
