package main

import (
	"context"

	"github.com/spf13/cobra"

	"ussdpilot/mcp"
	"ussdpilot/pkg/config"
	"ussdpilot/pkg/logging"
)

var _ mcp.UssdApp = (*App)(nil)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Model Context Protocol (MCP) server on stdio",
	Long: `Starts ussdpilot as an MCP server on standard input/output so agents can
dial codes, walk menus and reply to dialogs as tools. Every dialog message is
also pushed to clients as a notifications/ussd/message notification.

The config file is watched: hideDialogs, the word lists and dialogPackages
apply without a restart. Set metricsAddr (or --metrics-addr) to expose
/metrics and /healthz over HTTP.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			cfg := app.Config()
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
			}

			srv := mcp.NewMCPServer(app)
			app.OnMessageReceived(srv.NotifyMessage)

			if _, err := app.ensureEngine(ctx); err != nil {
				logging.Warn("serve").Err(err).Msg("Engine not attached yet, retrying on first request")
			}

			if err := config.Watch(ctx, cfg.Path(), app.applyConfig); err != nil {
				logging.Warn("serve").Err(err).Msg("Config hot reload disabled")
			}

			if cfg.MetricsAddr != "" {
				go func() {
					if err := app.serveMetrics(ctx, cfg.MetricsAddr); err != nil {
						logging.Error("serve").Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics endpoint failed")
					}
				}()
			}

			return srv.Start()
		})
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "Listen address for /metrics and /healthz (overrides metricsAddr)")
	rootCmd.AddCommand(serveCmd)
}
