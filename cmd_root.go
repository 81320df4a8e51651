package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ussdpilot/pkg/config"
	"ussdpilot/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "ussdpilot",
	Short: "Drive USSD sessions on an Android device over adb",
	Long: `ussdpilot dials USSD codes on a connected Android phone, reads the
operator dialogs and answers menus. It runs as an MCP server for agents or as
one-shot commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	// Persistent flags (available to all commands)
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Config file (default "+config.DefaultPath()+")")
	flags.String("device", "", "Serial of the device to drive (default: first connected)")
	flags.String("adb", "", "Path to the adb binary")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.Bool("hide-dialogs", false, "Dismiss USSD dialogs after reading them")
}

// loadConfig reads the config file and applies the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("device") {
		cfg.Device, _ = flags.GetString("device")
	}
	if flags.Changed("adb") {
		cfg.AdbPath, _ = flags.GetString("adb")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("hide-dialogs") {
		cfg.HideDialogs, _ = flags.GetBool("hide-dialogs")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	logCfg.File = cfg.Log.File
	logCfg.FilePath = filepath.Join(config.Dir(), "logs", "ussdpilot.log")
	return logging.Init(logCfg)
}

// loadApp builds a started App from the config and flags of cmd. The caller
// must call Shutdown and logging.Close.
func loadApp(cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}

	app := NewApp(cfg, version)
	if err := app.startup(cmd.Context()); err != nil {
		logging.Close()
		return nil, err
	}
	return app, nil
}

// withApp runs fn against a started App and tears it down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	app, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer logging.Close()
	defer app.Shutdown()
	return fn(cmd.Context(), app)
}
