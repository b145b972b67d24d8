package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/reroute/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter, err := eventFilter(cmd)
		if err != nil {
			return err
		}

		a, err := initApp(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer a.Close()
		st, err := a.RequireStore()
		if err != nil {
			return err
		}

		evs, err := st.ListEvents(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(evs) == 0 && outputFormat != "json" {
			fmt.Println("No events found.")
			return nil
		}
		return render(os.Stdout, evs, func(w io.Writer) { formatEvents(w, evs) })
	},
}

func eventFilter(cmd *cobra.Command) (events.Filter, error) {
	var f events.Filter
	if c, _ := cmd.Flags().GetString("category"); c != "" {
		cat, err := events.ParseCategory(c)
		if err != nil {
			return f, err
		}
		f.Category = cat
	}
	if l, _ := cmd.Flags().GetString("level"); l != "" {
		lvl, err := events.ParseLevel(l)
		if err != nil {
			return f, err
		}
		f.Level = lvl
	}
	f.ShipmentID, _ = cmd.Flags().GetString("shipment")
	f.RouteID, _ = cmd.Flags().GetString("route-id")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f, nil
}

func init() {
	eventsCmd.Flags().String("category", "", "filter by category")
	eventsCmd.Flags().String("level", "", "filter by level (info, warning, error, critical)")
	eventsCmd.Flags().String("shipment", "", "filter by shipment ID")
	eventsCmd.Flags().String("route-id", "", "filter by route ID")
	eventsCmd.Flags().Int("limit", 50, "max events to show")
	rootCmd.AddCommand(eventsCmd)
}
