package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ussdpilot/pkg/types"
	"ussdpilot/pkg/ussd"
)

var sendCmd = &cobra.Command{
	Use:   "send CODE",
	Short: "Dial a USSD code and print the response",
	Example: `  ussdpilot send '*123#'
  ussdpilot send '*100#' --line 1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, _ := cmd.Flags().GetInt("line")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		return withApp(cmd, func(ctx context.Context, app *App) error {
			ctx, cancel := withTimeout(ctx, timeout)
			defer cancel()

			res, err := app.SendRequest(ctx, args[0], line)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

var menuCmd = &cobra.Command{
	Use:     "menu CODE [OPTION...]",
	Short:   "Dial a USSD code and answer each menu with the next option",
	Example: `  ussdpilot menu '*144#' 2 1 1000`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, _ := cmd.Flags().GetInt("line")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		out := cmd.OutOrStdout()

		return withApp(cmd, func(ctx context.Context, app *App) error {
			ctx, cancel := withTimeout(ctx, timeout)
			defer cancel()

			step := 0
			res, err := app.SendMultiStepRequest(ctx, args[0], line, args[1:], func(msg string) {
				step++
				fmt.Fprintf(out, "[%d] %s\n", step, msg)
			})
			if err != nil {
				return err
			}
			return printResult(out, res)
		})
	},
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func printResult(w io.Writer, res *types.SendResult) error {
	if res.Status == types.StatusPermissionRequired {
		if res.Message != "" {
			fmt.Fprintln(w, res.Message)
		}
		return ussd.ErrPermissionRequired
	}
	fmt.Fprintln(w, res.Message)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, menuCmd} {
		c.Flags().Int("line", -1, "SIM slot to dial from (see 'ussdpilot lines'; default SIM when negative)")
		c.Flags().Duration("timeout", 2*time.Minute, "Give up after this long (0 disables)")
		rootCmd.AddCommand(c)
	}
}
