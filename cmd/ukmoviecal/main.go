package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ukmoviecal/internal/config"
	appLog "ukmoviecal/internal/log"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		appLog.Error("ukmoviecal failed", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "ukmoviecal",
		Short:         "Calendar of upcoming UK cinema releases",
		Long:          "Collects upcoming UK movie releases, keeps the most popular per month and writes them as an all-day iCalendar feed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to YAML config file (created with defaults if missing)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file to load secrets from")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		generateCmd(g),
		serveCmd(g),
		inspectCmd(),
	)
	return root
}

// loadConfig reads the config file, applies overrides and resolves the API
// key. The result is normalized and validated.
func loadConfig(g *globalFlags, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}

	lvl, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(lvl)

	if err := cfg.ResolveSecrets(g.envFile); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appLog.Info("effective config",
		"source", cfg.Source,
		"bucket", cfg.Window.Bucket,
		"year", cfg.Window.Year,
		"month", cfg.Window.Month,
		"mode", cfg.Selection.Mode,
		"top_n", cfg.Selection.TopN,
		"enrich", cfg.Enrich,
		"output", cfg.Calendar.Output,
	)
	return cfg, nil
}
