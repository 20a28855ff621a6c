package main

import (
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"studio-checkout/internal/database"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry sweep",
		Long: `Run the HTTP API and the background expiry sweep until interrupted.

Examples:
  studio serve
  studio serve --migrate -c ./studio.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				if err := a.db.Migrate(ctx); err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.server.Run(gctx) })
			g.Go(func() error { return a.worker.Run(gctx) })

			err = g.Wait()
			log.Info("studio stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.worker.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("orders expired: %d\nbookings expired: %d\nneeds review: %d\nerrors: %d\n",
				res.OrdersExpired, res.BookingsExpired, res.NeedsReview, res.Errors)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database.New(ctx, database.Options{
				DSN:          cfg.Database.DSN(),
				Name:         cfg.Database.Database,
				MaxOpenConns: 2,
			})
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Migrate(ctx)
		},
	}
}
