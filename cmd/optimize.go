package main

import (
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/optimizer"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Rank alternative routes by risk, cost and time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		origin, _ := cmd.Flags().GetString("origin")
		destination, _ := cmd.Flags().GetString("destination")
		if origin == "" || destination == "" {
			return eris.New("--origin and --destination are required")
		}
		p, _ := cmd.Flags().GetString("priority")
		priority, err := model.ParsePriority(p)
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetStringToString("weights")
		weights, err := parseWeights(raw)
		if err != nil {
			return err
		}
		maxAlt, _ := cmd.Flags().GetInt("max")
		shipment, _ := cmd.Flags().GetString("shipment")

		req := optimizer.Request{
			Origin:          origin,
			Destination:     destination,
			Priority:        priority,
			CustomWeights:   weights,
			MaxAlternatives: maxAlt,
			ShipmentID:      shipment,
		}
		if cmd.Flags().Changed("predictions") {
			v, _ := cmd.Flags().GetBool("predictions")
			req.IncludePredictions = &v
		}

		a, err := initApp(cmd.Context(), "core")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.OptimizeRoute(cmd.Context(), req)
		if err != nil {
			return err
		}
		return render(os.Stdout, res, func(w io.Writer) { formatOptimization(w, res) })
	},
}

// parseWeights converts --weights risk=0.6,cost=0.2 into floats. Key
// validation is left to the optimizer.
func parseWeights(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "--weights %s", k)
		}
		out[k] = f
	}
	return out, nil
}

func init() {
	optimizeCmd.Flags().String("origin", "", "origin port or country (required)")
	optimizeCmd.Flags().String("destination", "", "destination port or country (required)")
	optimizeCmd.Flags().String("priority", "balanced", "optimization priority (risk, cost, time, balanced)")
	optimizeCmd.Flags().StringToString("weights", nil, "custom weights, e.g. risk=0.6,cost=0.2,time=0.2")
	optimizeCmd.Flags().Int("max", 0, "max alternatives (default from config)")
	optimizeCmd.Flags().Bool("predictions", true, "include predictive assessments")
	optimizeCmd.Flags().String("shipment", "", "shipment ID for event correlation")
	rootCmd.AddCommand(optimizeCmd)
}
