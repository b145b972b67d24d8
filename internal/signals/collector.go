package signals

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reroute/internal/catalog"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

const (
	regionTradeLimit  = 20
	generalTradeLimit = 30
	fetchConcurrency  = 4
)

// Collector assembles the signal set for a route from a Source.
type Collector struct {
	src  Source
	sink events.Sink
}

// NewCollector creates a Collector. A nil sink discards ingestion events.
func NewCollector(src Source, sink events.Sink) *Collector {
	if sink == nil {
		sink = events.Discard
	}
	return &Collector{src: src, sink: sink}
}

// ForRoute fetches trade news and political signals for every region on the
// route (inferred from origin and destination plus the extra regions),
// congestion for known origin and destination ports, and general trade
// news. Failed fetches are logged and contribute nothing. The result is
// sorted newest first.
func (c *Collector) ForRoute(ctx context.Context, origin, destination string, regions []string) []model.Signal {
	all := catalog.MergeRegions(
		[]string{catalog.RegionForPort(origin), catalog.RegionForPort(destination)},
		regions,
	)

	var queries []Query
	for _, r := range all {
		queries = append(queries,
			Query{Category: model.CategoryTradeNews, Region: r, Limit: regionTradeLimit},
			Query{Category: model.CategoryPolitical, Region: r},
		)
	}
	for _, port := range []string{origin, destination} {
		if code := catalog.PortCode(port); code != "" {
			queries = append(queries, Query{Category: model.CategoryPortCongestion, PortCode: code})
		}
	}
	queries = append(queries, Query{Category: model.CategoryTradeNews, Limit: generalTradeLimit})

	results := make([][]model.Signal, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			results[i] = c.fetch(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	var out []model.Signal
	for _, r := range results {
		out = append(out, r...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	zap.L().Info("signals: collected route signals",
		zap.String("origin", origin),
		zap.String("destination", destination),
		zap.Strings("regions", all),
		zap.Int("count", len(out)),
	)
	return out
}

func (c *Collector) fetch(ctx context.Context, q Query) []model.Signal {
	sigs, err := c.src.Fetch(ctx, q)
	if err != nil {
		zap.L().Warn("signals: data unavailable",
			zap.String("source", c.src.Name()),
			zap.String("category", string(q.Category)),
			zap.String("region", q.Region),
			zap.String("port_code", q.PortCode),
			zap.Error(err),
		)
		return nil
	}
	details := map[string]any{"category": string(q.Category)}
	if q.PortCode != "" {
		details["port_code"] = q.PortCode
	}
	events.RecordIngestion(ctx, c.sink, c.src.Name(), len(sigs), q.Region, details)
	return sigs
}
