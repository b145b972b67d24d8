package optimizer

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reroute/internal/model"
)

// ErrInvalidWeights is returned for custom weights with unknown keys,
// negative values or a zero sum.
var ErrInvalidWeights = eris.New("optimizer: invalid weights")

// Presets are the weights used for each optimization priority.
var Presets = map[model.Priority]model.Weights{
	model.PriorityRisk:     {Risk: 0.70, Cost: 0.15, Time: 0.15},
	model.PriorityCost:     {Risk: 0.20, Cost: 0.60, Time: 0.20},
	model.PriorityTime:     {Risk: 0.20, Cost: 0.20, Time: 0.60},
	model.PriorityBalanced: {Risk: 0.50, Cost: 0.30, Time: 0.20},
}

// ResolveWeights returns the normalized custom weights when any are given,
// otherwise the preset for priority. Keys missing from custom count as 0.
func ResolveWeights(priority model.Priority, custom map[string]float64) (model.Weights, error) {
	if len(custom) == 0 {
		w, ok := Presets[priority]
		if !ok {
			w = Presets[model.PriorityBalanced]
		}
		return w, nil
	}

	var w model.Weights
	var unknown []string
	for k, v := range custom {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Weights{}, eris.Wrapf(ErrInvalidWeights, "%s must be a finite value >= 0, got %v", k, v)
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "risk":
			w.Risk += v
		case "cost":
			w.Cost += v
		case "time":
			w.Time += v
		default:
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return model.Weights{}, eris.Wrapf(ErrInvalidWeights, "unknown keys %s (want risk, cost, time)", strings.Join(unknown, ", "))
	}

	total := w.Sum()
	if total <= 0 {
		return model.Weights{}, eris.Wrap(ErrInvalidWeights, "weights sum to zero")
	}
	return model.Weights{Risk: w.Risk / total, Cost: w.Cost / total, Time: w.Time / total}, nil
}
