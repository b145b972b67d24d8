package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := initApp(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer a.Close()
		if _, err := a.RequireStore(); err != nil {
			return err
		}
		// app.Build already migrates; this command exists so deploys can run it alone.
		zap.L().Info("migrations applied", zap.String("driver", cfg.Store.Driver))
		fmt.Println("Migrations applied.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
