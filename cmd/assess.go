package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reroute/internal/app"
	"github.com/sells-group/reroute/internal/model"
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess the current risk of a route",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := routeInput(cmd)
		if err != nil {
			return err
		}

		a, err := initApp(cmd.Context(), "core")
		if err != nil {
			return err
		}
		defer a.Close()

		ra := a.AssessRoute(cmd.Context(), in)
		return render(os.Stdout, ra, func(w io.Writer) { formatAssessment(w, ra) })
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast route risk over the configured horizons",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := routeInput(cmd)
		if err != nil {
			return err
		}

		a, err := initApp(cmd.Context(), "core")
		if err != nil {
			return err
		}
		defer a.Close()

		pa := a.PredictRoute(cmd.Context(), in)
		return render(os.Stdout, pa, func(w io.Writer) { formatPrediction(w, pa) })
	},
}

// addRouteFlags registers the flags that identify a route.
func addRouteFlags(cmd *cobra.Command) {
	cmd.Flags().String("origin", "", "origin port or country (required)")
	cmd.Flags().String("destination", "", "destination port or country (required)")
	cmd.Flags().StringSlice("regions", nil, "extra regions to collect signals for")
	cmd.Flags().StringSlice("waypoints", nil, "ordered waypoints")
	cmd.Flags().String("shipment", "", "shipment ID")
	cmd.Flags().String("route-id", "", "route ID")
}

func routeInput(cmd *cobra.Command) (app.RouteInput, error) {
	origin, _ := cmd.Flags().GetString("origin")
	destination, _ := cmd.Flags().GetString("destination")
	if origin == "" || destination == "" {
		return app.RouteInput{}, eris.New("--origin and --destination are required")
	}
	regions, _ := cmd.Flags().GetStringSlice("regions")
	waypoints, _ := cmd.Flags().GetStringSlice("waypoints")
	shipment, _ := cmd.Flags().GetString("shipment")
	routeID, _ := cmd.Flags().GetString("route-id")
	return app.RouteInput{
		ShipmentID:  shipment,
		RouteID:     routeID,
		Origin:      origin,
		Destination: destination,
		Waypoints:   waypoints,
		Regions:     regions,
	}, nil
}

// parseMode converts a --mode flag value; empty means the configured mode.
func parseMode(s string) (model.ExecutionMode, error) {
	if s == "" {
		return "", nil
	}
	return model.ParseExecutionMode(s)
}

func init() {
	addRouteFlags(assessCmd)
	addRouteFlags(predictCmd)
	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(predictCmd)
}
