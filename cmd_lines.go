package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "List the SIM lines of the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withApp(cmd, func(ctx context.Context, app *App) error {
			lines, err := app.ListLines(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(lines)
			}
			if len(lines) == 0 {
				fmt.Fprintln(out, "No SIM lines found")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LINE\tSUB\tNAME\tCARRIER\tNUMBER")
			for _, l := range lines {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", l.ID, l.SubID, l.DisplayName, l.Carrier, l.Number)
			}
			return tw.Flush()
		})
	},
}

func init() {
	linesCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(linesCmd)
}
