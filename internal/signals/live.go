package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/resilience"
)

// Live reads signals from an HTTP JSON feed exposing one endpoint per
// category: GET {base}/{category}?region=&port_code=&limit=.
type Live struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	guard   *resilience.Guard
	now     func() time.Time
}

// NewLive creates a Live source from the signals config.
func NewLive(cfg config.SignalsConfig, rc config.ResilienceConfig) (*Live, error) {
	if cfg.BaseURL == "" {
		return nil, eris.New("signals: live source requires base_url")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, eris.Wrap(err, "signals: parse base_url")
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Live{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		guard:   resilience.NewGuard("signals-live", rc, timeout),
		now:     time.Now,
	}, nil
}

func (l *Live) Name() string { return "live" }

// feedResponse is the feed envelope.
type feedResponse struct {
	Results []feedItem `json:"results"`
}

type feedItem struct {
	ID            string         `json:"id"`
	Source        string         `json:"source"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Notes         string         `json:"notes"`
	Severity      *float64       `json:"severity"`
	Location      string         `json:"location"`
	Country       string         `json:"country"`
	CountryCode   string         `json:"country_code"`
	Timestamp     string         `json:"timestamp"`
	PublishedDate string         `json:"published_date"`
	EventDate     string         `json:"event_date"`
	EventType     string         `json:"event_type"`
	SubEventType  string         `json:"sub_event_type"`
	Fatalities    int            `json:"fatalities"`
	TenderEndDate string         `json:"tender_end_date"`
	PortCode      string         `json:"port_code"`
	URL           string         `json:"url"`
	Metadata      map[string]any `json:"metadata"`
}

// Fetch requests one category page from the feed.
func (l *Live) Fetch(ctx context.Context, q Query) ([]model.Signal, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "signals: rate limit wait")
	}

	params := url.Values{}
	if q.Region != "" {
		params.Set("region", q.Region)
	}
	if q.PortCode != "" {
		params.Set("port_code", q.PortCode)
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	reqURL := fmt.Sprintf("%s/%s", l.baseURL, q.Category)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	body, err := resilience.Call(ctx, l.guard, func(ctx context.Context) ([]byte, error) {
		return l.get(ctx, reqURL)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "signals: fetch %s", q.Category)
	}

	var resp feedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "signals: decode %s feed", q.Category)
	}

	now := l.now().UTC()
	out := make([]model.Signal, 0, len(resp.Results))
	for _, item := range resp.Results {
		out = append(out, toSignal(q.Category, item, now))
	}
	zap.L().Debug("signals: live fetch",
		zap.String("category", string(q.Category)),
		zap.String("region", q.Region),
		zap.Int("count", len(out)),
	)
	return limit(out, q.Limit), nil
}

func (l *Live) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "signals: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "reroute/1.0")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, resilience.Transient(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resilience.Transient(eris.Wrap(err, "signals: read body"), 0)
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("signals: status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}

func toSignal(cat model.Category, item feedItem, now time.Time) model.Signal {
	s := model.Signal{
		Source:      item.Source,
		Category:    cat,
		Title:       item.Title,
		Description: item.Description,
		Location:    item.Location,
		Timestamp:   parseTimestamp(now, item.Timestamp, item.PublishedDate, item.EventDate),
		Metadata:    map[string]any{},
	}
	if s.Source == "" {
		s.Source = "live_feed"
	}
	if s.Description == "" {
		s.Description = item.Notes
	}
	s.Description = truncate(s.Description, 500)
	if s.Location == "" {
		s.Location = firstNonEmpty(item.Country, item.CountryCode, "Unknown")
	}
	if s.Title == "" && item.EventType != "" {
		s.Title = item.EventType + " - " + item.SubEventType
	}

	switch {
	case item.Severity != nil:
		s.Severity = model.Clamp01(*item.Severity)
	case cat == model.CategoryPolitical:
		s.Severity = eventSeverity(item.EventType, item.SubEventType, item.Fatalities)
	case cat == model.CategoryTradeNews:
		s.Severity = tradeSeverity(now, s.Timestamp, item.TenderEndDate)
	default:
		s.Severity = 0.5
	}

	for k, v := range item.Metadata {
		s.Metadata[k] = v
	}
	setIf(s.Metadata, "id", item.ID)
	setIf(s.Metadata, "url", item.URL)
	setIf(s.Metadata, "port_code", item.PortCode)
	setIf(s.Metadata, "country_code", item.CountryCode)
	setIf(s.Metadata, "event_type", item.EventType)
	setIf(s.Metadata, "sub_event_type", item.SubEventType)
	if item.Fatalities > 0 {
		s.Metadata["fatalities"] = item.Fatalities
	}
	return s
}

// eventSeverity scores a conflict event by type and fatalities.
func eventSeverity(eventType, subType string, fatalities int) float64 {
	sev := 0.3
	kind := strings.ToLower(eventType + " " + subType)
	switch {
	case strings.Contains(kind, "violence"):
		sev += 0.3
	case strings.Contains(kind, "battle"):
		sev += 0.4
	case strings.Contains(kind, "explosion"):
		sev += 0.35
	case strings.Contains(kind, "protest"):
		sev += 0.1
	}
	switch {
	case fatalities >= 100:
		sev += 0.3
	case fatalities >= 10:
		sev += 0.2
	case fatalities >= 1:
		sev += 0.1
	}
	return model.Clamp01(sev)
}

// tradeSeverity scores a trade item by deadline proximity and recency.
func tradeSeverity(now, published time.Time, tenderEnd string) float64 {
	sev := 0.5
	if end, err := time.Parse(time.DateOnly, tenderEnd); err == nil {
		days := int(end.Sub(now).Hours() / 24)
		switch {
		case days >= 0 && days <= 7:
			sev = 0.8
		case days >= 8 && days <= 30:
			sev = 0.6
		}
	}
	switch age := now.Sub(published); {
	case age <= 24*time.Hour:
		sev += 0.2
	case age <= 7*24*time.Hour:
		sev += 0.1
	}
	return model.Clamp01(sev)
}

func parseTimestamp(now time.Time, values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			return t
		}
	}
	return now
}

func setIf(m map[string]any, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
