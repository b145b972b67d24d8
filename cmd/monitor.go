package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reroute/internal/policy"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Check a shipment's route and propose or execute a reroute",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := routeInput(cmd)
		if err != nil {
			return err
		}
		if in.ShipmentID == "" {
			return eris.New("--shipment is required")
		}
		m, _ := cmd.Flags().GetString("mode")
		mode, err := parseMode(m)
		if err != nil {
			return err
		}

		a, err := initApp(cmd.Context(), "core")
		if err != nil {
			return err
		}
		defer a.Close()

		action, err := a.Policy.Monitor(cmd.Context(), in.ShipmentID, in.Origin, in.Destination, in.Regions, mode)
		if err != nil {
			return err
		}
		return render(os.Stdout, map[string]any{"action": action}, func(w io.Writer) { formatAction(w, action) })
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Reroute a shipment onto a specific route",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := routeInput(cmd)
		if err != nil {
			return err
		}
		newRoute, _ := cmd.Flags().GetString("to")
		if in.ShipmentID == "" || newRoute == "" {
			return eris.New("--shipment and --to are required")
		}
		reason, _ := cmd.Flags().GetString("reason")

		a, err := initApp(cmd.Context(), "core")
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.Policy.ExecuteReroute(cmd.Context(), policy.RerouteRequest{
			ShipmentID:  in.ShipmentID,
			NewRouteID:  newRoute,
			Origin:      in.Origin,
			Destination: in.Destination,
			Regions:     in.Regions,
			Reason:      reason,
		})
		return render(os.Stdout, res, func(w io.Writer) { formatResult(w, res) })
	},
}

func init() {
	addRouteFlags(monitorCmd)
	monitorCmd.Flags().String("mode", "", "execution mode (automatic, semi_automatic, manual; default from config)")

	addRouteFlags(executeCmd)
	executeCmd.Flags().String("to", "", "route ID to reroute onto (required)")
	executeCmd.Flags().String("reason", "", "reason recorded on the action")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(executeCmd)
}
