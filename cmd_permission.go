package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Report whether the device allows UI automation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		open, _ := cmd.Flags().GetBool("open")

		return withApp(cmd, func(ctx context.Context, app *App) error {
			status, err := app.IsAutomationPermissionGranted(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if status.Granted {
				fmt.Fprintf(out, "granted (device state: %s)\n", status.State)
				return nil
			}
			fmt.Fprintf(out, "not granted (device state: %s)\n", status.State)
			if status.Detail != "" {
				fmt.Fprintln(out, status.Detail)
			}
			if open {
				return app.OpenPermissionSettings(ctx)
			}
			return nil
		})
	},
}

func init() {
	permissionCmd.Flags().Bool("open", false, "Open developer options on the device when not granted")
	rootCmd.AddCommand(permissionCmd)
}
