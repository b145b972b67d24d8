// Package catalog supplies candidate routes and metric estimates for an
// origin/destination pair.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reroute/internal/model"
)

//go:embed routes.yaml
var builtinYAML []byte

// Route is a candidate alternative with literal metrics.
type Route struct {
	ID         string   `yaml:"route_id"`
	Waypoints  []string `yaml:"waypoints"`
	Regions    []string `yaml:"regions"`
	CostUSD    float64  `yaml:"cost_usd"`
	TimeDays   float64  `yaml:"time_days"`
	DistanceKM float64  `yaml:"distance_km"`
	PortCalls  int      `yaml:"port_calls"`
}

// Metrics returns the route's metrics with the given risk score.
func (r Route) Metrics(risk float64) model.RouteMetrics {
	return model.RouteMetrics{
		RiskScore:  risk,
		CostUSD:    r.CostUSD,
		TimeDays:   r.TimeDays,
		DistanceKM: r.DistanceKM,
		PortCalls:  r.PortCalls,
	}
}

// Lane groups the alternatives for an origin/destination match.
type Lane struct {
	Origin      string  `yaml:"origin"`
	Destination string  `yaml:"destination"`
	Routes      []Route `yaml:"routes"`
}

// BaseDistance is the direct distance for an exact origin/destination pair.
type BaseDistance struct {
	Origin      string  `yaml:"origin"`
	Destination string  `yaml:"destination"`
	KM          float64 `yaml:"km"`
}

// Catalog is the route source the optimizer depends on.
type Catalog interface {
	// Alternatives returns candidate routes. It never returns an empty list.
	Alternatives(origin, destination string) []Route
	// Estimate derives metrics for a route with no catalog entry.
	Estimate(origin, destination string, waypoints []string) model.RouteMetrics
}

// Static is a Catalog backed by an in-memory table.
type Static struct {
	Lanes     []Lane         `yaml:"lanes"`
	Distances []BaseDistance `yaml:"base_distances"`
}

// Default returns the built-in catalog.
func Default() *Static {
	s, err := parse(builtinYAML)
	if err != nil {
		panic(eris.Wrap(err, "catalog: built-in table"))
	}
	return s
}

// Load reads a catalog file. Its lanes and distances take precedence over
// the built-in ones.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	s, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	def := Default()
	s.Lanes = append(s.Lanes, def.Lanes...)
	s.Distances = append(s.Distances, def.Distances...)
	return s, nil
}

func parse(data []byte) (*Static, error) {
	var wrapper struct {
		Catalog Static `yaml:"catalog"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	return &wrapper.Catalog, nil
}

func (s *Static) validate() error {
	var errs []string
	for i, l := range s.Lanes {
		if l.Origin == "" || l.Destination == "" {
			errs = append(errs, fmt.Sprintf("lane %d: origin and destination are required", i))
		}
		for _, r := range l.Routes {
			if r.ID == "" || r.ID == model.OriginalRouteID {
				errs = append(errs, fmt.Sprintf("lane %d: route_id must be set and not %s", i, model.OriginalRouteID))
			}
			if r.CostUSD < 0 || r.TimeDays < 0 || r.DistanceKM < 0 || r.PortCalls < 0 {
				errs = append(errs, fmt.Sprintf("route %s: metrics must be non-negative", r.ID))
			}
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("catalog: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Alternatives returns the first lane whose keys appear in the folded
// origin and destination, or three generic routes when none match.
func (s *Static) Alternatives(origin, destination string) []Route {
	o, d := fold(origin), fold(destination)
	for _, l := range s.Lanes {
		if strings.Contains(o, fold(l.Origin)) && strings.Contains(d, fold(l.Destination)) {
			return cloneRoutes(l.Routes)
		}
	}
	return Generic()
}

// Generic returns the fallback alternatives ALT-001..ALT-003 with linearly
// increasing cost, time and distance.
func Generic() []Route {
	out := make([]Route, 0, 3)
	for i := 1; i <= 3; i++ {
		out = append(out, Route{
			ID:         fmt.Sprintf("ALT-%03d", i),
			CostUSD:    10000 + 2000*float64(i),
			TimeDays:   14 + float64(i),
			DistanceKM: 10000 + 500*float64(i),
			PortCalls:  2,
		})
	}
	return out
}

const (
	defaultDistanceKM = 10000
	waypointKM        = 500
	kmPerNauticalMile = 1.852
	speedKnots        = 20
	costPerKM         = 1.0
	costPerPortCall   = 500
)

// Estimate derives metrics for a route from its base distance plus a detour
// per waypoint, sailing at 20 knots.
func (s *Static) Estimate(origin, destination string, waypoints []string) model.RouteMetrics {
	km := float64(defaultDistanceKM)
	o, d := fold(origin), fold(destination)
	for _, bd := range s.Distances {
		if fold(bd.Origin) == o && fold(bd.Destination) == d {
			km = bd.KM
			break
		}
	}
	km += waypointKM * float64(len(waypoints))
	calls := len(waypoints) + 2

	return model.RouteMetrics{
		CostUSD:    km*costPerKM + costPerPortCall*float64(calls),
		TimeDays:   km / kmPerNauticalMile / speedKnots / 24,
		DistanceKM: km,
		PortCalls:  calls,
	}
}

func cloneRoutes(in []Route) []Route {
	out := make([]Route, len(in))
	for i, r := range in {
		r.Waypoints = append([]string(nil), r.Waypoints...)
		r.Regions = append([]string(nil), r.Regions...)
		out[i] = r
	}
	return out
}

// fold case-folds s for matching. A Caser is not safe for concurrent use,
// so one is created per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
