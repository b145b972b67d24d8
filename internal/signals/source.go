// Package signals fetches risk signals (trade news, political instability,
// port congestion) and assembles the signal set for a route.
package signals

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/model"
)

// Query selects signals of one category. Region and PortCode are optional
// filters; Limit <= 0 means no limit.
type Query struct {
	Category model.Category
	Region   string
	PortCode string
	Limit    int
}

// Source provides risk signals.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]model.Signal, error)
}

// New builds the source selected by cfg.Mode, wrapped in a TTL cache when
// CacheTTLSecs is positive.
func New(cfg config.SignalsConfig, rc config.ResilienceConfig) (Source, error) {
	var src Source
	switch cfg.Mode {
	case "", "synthetic":
		src = NewSynthetic()
	case "live":
		live, err := NewLive(cfg, rc)
		if err != nil {
			return nil, err
		}
		src = live
	default:
		return nil, eris.Errorf("signals: unknown mode %q", cfg.Mode)
	}
	if cfg.CacheTTLSecs > 0 {
		src = NewCached(src, time.Duration(cfg.CacheTTLSecs)*time.Second)
	}
	return src, nil
}

func limit(sigs []model.Signal, n int) []model.Signal {
	if n > 0 && len(sigs) > n {
		return sigs[:n]
	}
	return sigs
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
