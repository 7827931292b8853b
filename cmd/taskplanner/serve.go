package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"task-planner/internal/api"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP task API",
		Long: `Serve the JSON task API. Reminders fire in this process and are written to the log.

Examples:
  taskplanner serve --addr :8080
  HTTP_ADDR=:9000 taskplanner serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.restoreReminders(ctx); err != nil {
				return err
			}
			a.scheduler.Start()

			log.Printf("[info] http api listening on %s", cfg.HTTPAddr)
			return api.NewServer(a.stores, a.loc).Run(ctx, cfg.HTTPAddr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}
