package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Category classifies a risk signal.
type Category string

const (
	CategoryTradeNews      Category = "trade_news"
	CategoryPolitical      Category = "political"
	CategoryPortCongestion Category = "port_congestion"
)

// Categories lists every known category in breakdown order.
var Categories = []Category{CategoryTradeNews, CategoryPolitical, CategoryPortCongestion}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryTradeNews, CategoryPolitical, CategoryPortCongestion:
		return c, nil
	default:
		return "", eris.Errorf("model: unknown signal category %q", s)
	}
}

// Label returns the human-readable category name used in recommendations.
func (c Category) Label() string {
	switch c {
	case CategoryTradeNews:
		return "Trade News"
	case CategoryPolitical:
		return "Political"
	case CategoryPortCongestion:
		return "Port Congestion"
	default:
		return string(c)
	}
}

// Signal is a single timestamped, categorized risk observation.
type Signal struct {
	Source      string         `json:"source"`
	Category    Category       `json:"category"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    float64        `json:"severity"`
	Location    string         `json:"location"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ClampedSeverity returns Severity bounded to [0, 1].
func (s Signal) ClampedSeverity() float64 {
	return Clamp01(s.Severity)
}

// Age returns how long ago the signal was observed relative to now.
func (s Signal) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
