package signals

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reroute/internal/config"
	"github.com/sells-group/reroute/internal/events"
	"github.com/sells-group/reroute/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func synthetic() *Synthetic {
	return NewSynthetic().WithClock(func() time.Time { return fixedNow })
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Fetch(ctx context.Context, q Query) ([]model.Signal, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Signal), args.Error(1)
}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureSink) Record(_ context.Context, e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func titles(sigs []model.Signal) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.Title
	}
	return out
}

func TestSynthetic_Filters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := synthetic()

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"all trade", Query{Category: model.CategoryTradeNews}, []string{
			"New Tariffs Announced on Semiconductor Imports",
			"Supply Chain Disruption in South China Sea",
			"Trade Agreement Updates",
		}},
		{"trade by region", Query{Category: model.CategoryTradeNews, Region: "TAIWAN"}, []string{
			"New Tariffs Announced on Semiconductor Imports",
		}},
		{"trade limit", Query{Category: model.CategoryTradeNews, Limit: 1}, []string{
			"New Tariffs Announced on Semiconductor Imports",
		}},
		{"political by region", Query{Category: model.CategoryPolitical, Region: "japan"}, []string{
			"Stable Political Environment",
		}},
		{"political no match", Query{Category: model.CategoryPolitical, Region: "usa"}, []string{}},
		{"port by code", Query{Category: model.CategoryPortCongestion, PortCode: "uslax"}, []string{
			"High Congestion at Los Angeles Port",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Fetch(ctx, tt.q)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, titles(got))
		})
	}
}

func TestSynthetic_TimestampsRelativeToClock(t *testing.T) {
	t.Parallel()

	got, err := synthetic().Fetch(context.Background(), Query{Category: model.CategoryPortCongestion, PortCode: "USLAX"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fixedNow.Add(-time.Hour), got[0].Timestamp)
	assert.Equal(t, 0.55, got[0].Severity)

	// Fixture metadata is copied per call.
	got[0].Metadata["port_code"] = "mutated"
	again, _ := synthetic().Fetch(context.Background(), Query{Category: model.CategoryPortCongestion, PortCode: "USLAX"})
	assert.Equal(t, "USLAX", again[0].Metadata["port_code"])
}

func TestNew_SelectsSource(t *testing.T) {
	t.Parallel()

	src, err := New(config.SignalsConfig{Mode: "synthetic"}, config.ResilienceConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Synthetic{}, src)

	src, err = New(config.SignalsConfig{Mode: "synthetic", CacheTTLSecs: 60}, config.ResilienceConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, src)

	src, err = New(config.SignalsConfig{Mode: "live", BaseURL: "http://feed.local"}, config.ResilienceConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Live{}, src)

	_, err = New(config.SignalsConfig{Mode: "live"}, config.ResilienceConfig{})
	assert.Error(t, err)

	_, err = New(config.SignalsConfig{Mode: "carrier-pigeon"}, config.ResilienceConfig{})
	assert.Error(t, err)
}

func fastResilience() config.ResilienceConfig {
	return config.ResilienceConfig{
		MaxAttempts:      3,
		InitialBackoffMs: 1,
		MaxBackoffMs:     2,
		Multiplier:       2,
		FailureThreshold: 10,
		ResetTimeoutSecs: 60,
	}
}

func newLive(t *testing.T, url string) *Live {
	t.Helper()
	l, err := NewLive(config.SignalsConfig{
		Mode: "live", BaseURL: url, APIKey: "secret", RatePerSecond: 1000, Burst: 10, TimeoutSecs: 5,
	}, fastResilience())
	require.NoError(t, err)
	l.now = func() time.Time { return fixedNow }
	return l
}

func TestLive_FetchMapsItems(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/political", r.URL.Path)
		assert.Equal(t, "taiwan", r.URL.Query().Get("region"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[ 
			{"id":"E1","event_type":"Battles","sub_event_type":"Armed clash","fatalities":12,
			 "country":"Taiwan","event_date":"2026-02-28","notes":"Clash near port"},
			{"id":"E2","title":"Explicit","severity":1.7,"location":"Kaohsiung",
			 "timestamp":"2026-03-01T10:00:00Z"}
		]}`)) //nolint:errcheck
	}))
	defer ts.Close()

	got, err := newLive(t, ts.URL).Fetch(context.Background(), Query{Category: model.CategoryPolitical, Region: "taiwan"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Battles - Armed clash", got[0].Title)
	assert.Equal(t, "Clash near port", got[0].Description)
	assert.Equal(t, "Taiwan", got[0].Location)
	assert.InDelta(t, 0.9, got[0].Severity, 1e-9)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), got[0].Timestamp)
	assert.Equal(t, model.CategoryPolitical, got[0].Category)
	assert.Equal(t, "E1", got[0].Metadata["id"])

	assert.Equal(t, 1.0, got[1].Severity)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), got[1].Timestamp)
}

func TestLive_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results":[{"title":"ok","severity":0.4}]}`)) //nolint:errcheck
	}))
	defer ts.Close()

	got, err := newLive(t, ts.URL).Fetch(context.Background(), Query{Category: model.CategoryTradeNews})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLive_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := newLive(t, ts.URL).Fetch(context.Background(), Query{Category: model.CategoryTradeNews})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLive_BadJSON(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := newLive(t, ts.URL).Fetch(context.Background(), Query{Category: model.CategoryPortCongestion})
	assert.Error(t, err)
}

func TestEventSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		eventType, subType string
		fatalities         int
		want               float64
	}{
		{"Protests", "Peaceful protest", 0, 0.4},
		{"Violence against civilians", "", 1, 0.7},
		{"Explosions/Remote violence", "", 0, 0.6}, // violence matches first
		{"Riots", "", 0, 0.3},
		{"Battles", "", 150, 1.0},
		{"Explosion", "Shelling", 10, 0.85},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, eventSeverity(tt.eventType, tt.subType, tt.fatalities), 1e-9, tt.eventType)
	}
}

func TestTradeSeverity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, tradeSeverity(fixedNow, fixedNow.Add(-30*24*time.Hour), ""), 1e-9)
	assert.InDelta(t, 0.7, tradeSeverity(fixedNow, fixedNow.Add(-time.Hour), ""), 1e-9)
	assert.InDelta(t, 0.9, tradeSeverity(fixedNow, fixedNow.Add(-3*24*time.Hour), "2026-03-04"), 1e-9)
	assert.InDelta(t, 0.6, tradeSeverity(fixedNow, fixedNow.Add(-30*24*time.Hour), "2026-03-20"), 1e-9)
}

func TestCached_HitsAndExpiry(t *testing.T) {
	t.Parallel()

	src := &mockSource{}
	q := Query{Category: model.CategoryTradeNews, Region: "taiwan"}
	src.On("Fetch", mock.Anything, q).Return([]model.Signal{{Title: "a"}}, nil)

	now := fixedNow
	c := NewCached(src, time.Minute)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		got, err := c.Fetch(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, titles(got))
	}
	src.AssertNumberOfCalls(t, "Fetch", 1)

	now = now.Add(time.Minute)
	_, err := c.Fetch(context.Background(), q)
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "Fetch", 2)
	assert.Equal(t, "mock", c.Name())
}

func TestCached_ErrorsNotCached(t *testing.T) {
	t.Parallel()

	src := &mockSource{}
	q := Query{Category: model.CategoryPolitical}
	src.On("Fetch", mock.Anything, q).Return(nil, errors.New("down")).Once()
	src.On("Fetch", mock.Anything, q).Return([]model.Signal{{Title: "b"}}, nil).Once()

	c := NewCached(src, time.Minute)
	_, err := c.Fetch(context.Background(), q)
	require.Error(t, err)

	got, err := c.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, titles(got))
}

func TestCollector_TaiwanToLosAngeles(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	got := NewCollector(synthetic(), sink).ForRoute(context.Background(), "Taiwan", "Los Angeles", nil)

	// Taiwan trade news matches both the regional and general fetch.
	assert.Equal(t, []string{
		"New Tariffs Announced on Semiconductor Imports",
		"New Tariffs Announced on Semiconductor Imports",
		"Supply Chain Disruption in South China Sea",
		"Trade Agreement Updates",
	}, titles(got))

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.After(got[i-1].Timestamp))
	}

	// taiwan + usa (trade, political each) and the general fetch.
	assert.Len(t, sink.events, 5)
	for _, e := range sink.events {
		assert.Equal(t, events.CategoryDataIngestion, e.Category)
	}
}

func TestCollector_PortCongestionAndExtraRegions(t *testing.T) {
	t.Parallel()

	got := NewCollector(synthetic(), nil).ForRoute(context.Background(),
		"Port of Singapore", "Port of Los Angeles", []string{"Japan"})

	var ports, political []string
	for _, s := range got {
		switch s.Category {
		case model.CategoryPortCongestion:
			ports = append(ports, s.Metadata["port_code"].(string))
		case model.CategoryPolitical:
			political = append(political, s.Title)
		}
	}
	assert.ElementsMatch(t, []string{"SGSIN", "USLAX"}, ports)
	assert.Equal(t, []string{"Stable Political Environment"}, political)
}

func TestCollector_FailuresTreatedAsEmpty(t *testing.T) {
	t.Parallel()

	src := &mockSource{}
	src.On("Fetch", mock.Anything, mock.MatchedBy(func(q Query) bool { return q.Region == "" })).
		Return([]model.Signal{{Title: "general", Timestamp: fixedNow}}, nil)
	src.On("Fetch", mock.Anything, mock.Anything).Return(nil, errors.New("feed down"))

	sink := &captureSink{}
	got := NewCollector(src, sink).ForRoute(context.Background(), "Taiwan", "Rotterdam", nil)
	assert.Equal(t, []string{"general"}, titles(got))
	assert.Len(t, sink.events, 1)
}
