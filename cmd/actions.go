package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/reroute/internal/model"
	"github.com/sells-group/reroute/internal/store"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List and manage reroute actions",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent reroute actions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		shipment, _ := cmd.Flags().GetString("shipment")
		statusFlag, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ActionFilter{ShipmentID: shipment, Limit: limit}
		if statusFlag != "" {
			s, err := model.ParseExecutionStatus(statusFlag)
			if err != nil {
				return err
			}
			filter.Status = s
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

		actions, err := st.ListActions(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(actions) == 0 && outputFormat != "json" {
			fmt.Println("No actions found.")
			return nil
		}
		return render(os.Stdout, actions, func(w io.Writer) { formatActions(w, actions) })
	},
}

var actionsApproveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve a pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionAction(cmd, args[0], true)
	},
}

var actionsRejectCmd = &cobra.Command{
	Use:   "reject <action-id>",
	Short: "Reject a pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionAction(cmd, args[0], false)
	},
}

var actionsRunCmd = &cobra.Command{
	Use:   "run <action-id>",
	Short: "Execute an approved action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by, _ := cmd.Flags().GetString("by")

		a, err := initApp(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer a.Close()
		if _, err := a.RequireStore(); err != nil {
			return err
		}

		res, err := a.Policy.ExecuteByID(cmd.Context(), args[0], by)
		if err != nil {
			return err
		}
		return render(os.Stdout, res, func(w io.Writer) { formatResult(w, res) })
	},
}

func transitionAction(cmd *cobra.Command, id string, approve bool) error {
	a, err := initApp(cmd.Context(), "store")
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.RequireStore(); err != nil {
		return err
	}

	var action *model.ExecutionAction
	if approve {
		action, err = a.Policy.Approve(cmd.Context(), id)
	} else {
		action, err = a.Policy.Reject(cmd.Context(), id)
	}
	if err != nil {
		return err
	}
	return render(os.Stdout, action, func(w io.Writer) { formatAction(w, action) })
}

func init() {
	actionsListCmd.Flags().String("shipment", "", "filter by shipment ID")
	actionsListCmd.Flags().String("status", "", "filter by status (pending, approved, executing, completed, failed, rejected)")
	actionsListCmd.Flags().Int("limit", 20, "max actions to show")
	actionsRunCmd.Flags().String("by", "", "operator recorded as executor")

	actionsCmd.AddCommand(actionsListCmd, actionsApproveCmd, actionsRejectCmd, actionsRunCmd)
	rootCmd.AddCommand(actionsCmd)
}
