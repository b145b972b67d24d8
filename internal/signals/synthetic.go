package signals

import (
	"context"
	"time"

	"github.com/sells-group/reroute/internal/model"
)

// Synthetic serves a fixed set of fixtures timestamped relative to its
// clock. It is the default source when no live feed is configured.
type Synthetic struct {
	now func() time.Time
}

// NewSynthetic creates a Synthetic source using the wall clock.
func NewSynthetic() *Synthetic {
	return &Synthetic{now: time.Now}
}

// WithClock overrides the clock used to timestamp fixtures.
func (s *Synthetic) WithClock(now func() time.Time) *Synthetic {
	s.now = now
	return s
}

func (s *Synthetic) Name() string { return "synthetic" }

// Fetch filters fixtures by region (substring of the location) for trade
// news and political signals, and by port code for congestion.
func (s *Synthetic) Fetch(_ context.Context, q Query) ([]model.Signal, error) {
	now := s.now().UTC()
	var out []model.Signal
	for _, f := range fixtures {
		if f.Category != q.Category {
			continue
		}
		switch q.Category {
		case model.CategoryPortCongestion:
			if q.PortCode != "" {
				code, _ := f.Metadata["port_code"].(string)
				if !containsFold(code, q.PortCode) {
					continue
				}
			}
		default:
			if q.Region != "" && !containsFold(f.Location, q.Region) {
				continue
			}
		}
		out = append(out, f.at(now))
	}
	if q.Category == model.CategoryTradeNews {
		out = limit(out, q.Limit)
	}
	return out, nil
}

type fixture struct {
	Source      string
	Category    model.Category
	Title       string
	Description string
	Severity    float64
	Location    string
	Age         time.Duration
	Metadata    map[string]any
}

func (f fixture) at(now time.Time) model.Signal {
	meta := make(map[string]any, len(f.Metadata))
	for k, v := range f.Metadata {
		meta[k] = v
	}
	return model.Signal{
		Source:      f.Source,
		Category:    f.Category,
		Title:       f.Title,
		Description: f.Description,
		Severity:    f.Severity,
		Location:    f.Location,
		Timestamp:   now.Add(-f.Age),
		Metadata:    meta,
	}
}

var fixtures = []fixture{
	{
		Source: "trade_news_api", Category: model.CategoryTradeNews,
		Title:       "New Tariffs Announced on Semiconductor Imports",
		Description: "Trade tensions escalate with new tariffs affecting semiconductor supply chains",
		Severity:    0.75, Location: "Taiwan Strait", Age: 2 * time.Hour,
		Metadata: map[string]any{"impact": "high", "sector": "semiconductors"},
	},
	{
		Source: "trade_news_api", Category: model.CategoryTradeNews,
		Title:       "Supply Chain Disruption in South China Sea",
		Description: "Increased shipping delays due to regional tensions",
		Severity:    0.65, Location: "South China Sea", Age: 5 * time.Hour,
		Metadata: map[string]any{"impact": "medium", "sector": "shipping"},
	},
	{
		Source: "trade_news_api", Category: model.CategoryTradeNews,
		Title:       "Trade Agreement Updates",
		Description: "Positive developments in regional trade agreements",
		Severity:    0.25, Location: "Southeast Asia", Age: 24 * time.Hour,
		Metadata: map[string]any{"impact": "low", "sector": "general"},
	},
	{
		Source: "geopolitical_api", Category: model.CategoryPolitical,
		Title:       "Increased Military Activity in Region",
		Description: "Heightened military presence affecting shipping lanes",
		Severity:    0.70, Location: "East China Sea", Age: 3 * time.Hour,
		Metadata: map[string]any{"type": "military", "duration": "ongoing"},
	},
	{
		Source: "geopolitical_api", Category: model.CategoryPolitical,
		Title:       "Diplomatic Tensions Rising",
		Description: "Escalating diplomatic tensions between regional powers",
		Severity:    0.60, Location: "Asia-Pacific", Age: 24 * time.Hour,
		Metadata: map[string]any{"type": "diplomatic", "duration": "recent"},
	},
	{
		Source: "geopolitical_api", Category: model.CategoryPolitical,
		Title:       "Stable Political Environment",
		Description: "No significant political disruptions reported",
		Severity:    0.20, Location: "Japan", Age: 12 * time.Hour,
		Metadata: map[string]any{"type": "stability", "duration": "stable"},
	},
	{
		Source: "port_api", Category: model.CategoryPortCongestion,
		Title:       "High Congestion at Los Angeles Port",
		Description: "Container backlog causing 3-5 day delays",
		Severity:    0.55, Location: "Los Angeles, USA", Age: time.Hour,
		Metadata: map[string]any{"port_code": "USLAX", "wait_time_days": 4, "capacity": "85%"},
	},
	{
		Source: "port_api", Category: model.CategoryPortCongestion,
		Title:       "Normal Operations at Singapore Port",
		Description: "Port operating at normal capacity",
		Severity:    0.15, Location: "Singapore", Age: 6 * time.Hour,
		Metadata: map[string]any{"port_code": "SGSIN", "wait_time_days": 0, "capacity": "45%"},
	},
	{
		Source: "port_api", Category: model.CategoryPortCongestion,
		Title:       "Moderate Delays at Rotterdam",
		Description: "Slight congestion with 1-2 day delays",
		Severity:    0.35, Location: "Rotterdam, Netherlands", Age: 4 * time.Hour,
		Metadata: map[string]any{"port_code": "NLRTM", "wait_time_days": 2, "capacity": "70%"},
	},
}
