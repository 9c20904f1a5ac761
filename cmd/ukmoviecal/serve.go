package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ukmoviecal/internal/config"
	appLog "ukmoviecal/internal/log"
	"ukmoviecal/internal/pipeline"
	"ukmoviecal/internal/schedule"
	"ukmoviecal/internal/web"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		listen  string
		refresh string
		initial bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Regenerate the calendar on a schedule and serve it over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := loadConfig(g, func(c *config.Config) {
				if flags.Changed("listen") {
					c.Serve.Listen = listen
				}
				if flags.Changed("refresh") {
					c.Serve.Refresh = refresh
				}
			})
			if err != nil {
				return err
			}

			// Windows are planned per run so a rolling range follows the clock.
			sched, err := schedule.New(cfg.Serve.Refresh, func(ctx context.Context) (pipeline.Result, error) {
				opts, err := pipeline.FromConfig(cfg, time.Now())
				if err != nil {
					return pipeline.Result{}, err
				}
				return pipeline.Run(ctx, opts)
			})
			if err != nil {
				return err
			}

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			if initial {
				if _, err := sched.RunNow(ctx); err != nil {
					appLog.Error("initial run failed; serving previous calendar if any", err)
				}
			}

			if err := sched.Start(ctx); err != nil {
				return err
			}

			serveErr := web.StartServer(ctx, cfg, sched)

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			sched.Stop(stopCtx)

			appLog.Info("ukmoviecal exiting")
			return serveErr
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	f.StringVar(&refresh, "refresh", "", `Cron expression for regeneration, e.g. "0 6 * * *"`)
	f.BoolVar(&initial, "initial-run", true, "Generate once at startup before the first scheduled run")
	return cmd
}
