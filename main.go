// Command oa-workflow betreibt den Open-Access-Workflow für Publikationen.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"oa-workflow/config"
	"oa-workflow/server"
)

var errNeedsBroker = errors.New("JOB_BACKEND=gochannel keeps jobs in memory; use `serve` or JOB_BACKEND=kafka")

// cli hält die per Flag gesteuerten Einstellungen; der Logger entsteht erst nach dem Parsen.
type cli struct {
	debug  bool
	logger *zap.Logger
}

func (c *cli) initLogger(*cobra.Command, []string) error {
	var err error
	if c.debug {
		c.logger, err = zap.NewDevelopment()
	} else {
		c.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	return nil
}

func main() {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:               "oa-workflow",
		Short:             "Open-access workflow for faculty publications",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initLogger,
	}
	rootCmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "use the zap development logger")
	rootCmd.AddCommand(
		c.serveCmd(),
		c.workerCmd(),
		c.runWorkflowCmd(),
		c.syncPostprintsCmd(),
		c.backfillLocationsCmd(),
		c.migrateCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Command failed", zap.Error(err))
		} else {
			log.Print(err)
		}
		os.Exit(1)
	}
}

// withApp lädt die Konfiguration, verdrahtet alles und räumt danach auf.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	logging := c.logger
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logging)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Warn("Shutdown error", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP server, job worker and cron schedules in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.AutoMigrate(ctx); err != nil {
					return err
				}
				worker, err := a.newWorker()
				if err != nil {
					return err
				}

				cronScheduler := cron.New()
				if _, err := cronScheduler.AddFunc(a.cfg.WorkflowCronSchedule, func() {
					a.logger.Info("Running scheduled OA workflow...")
					summary, err := a.workflow.Run(ctx)
					if err != nil {
						a.logger.Error("Cron job failed", zap.String("job", "oa_workflow"), zap.Error(err))
						return
					}
					a.logger.Info("Cron job completed", zap.String("job", "oa_workflow"), zap.Any("summary", summary))
				}); err != nil {
					return fmt.Errorf("workflow cron schedule: %w", err)
				}
				if _, err := cronScheduler.AddFunc(a.cfg.PostprintSyncCronSchedule, func() {
					a.logger.Info("Running scheduled postprint sync...")
					summary, err := a.postprints.Run(ctx)
					if err != nil {
						a.logger.Error("Cron job failed", zap.String("job", "postprint_sync"), zap.Error(err))
						return
					}
					a.logger.Info("Cron job completed", zap.String("job", "postprint_sync"), zap.Any("summary", summary))
				}); err != nil {
					return fmt.Errorf("postprint cron schedule: %w", err)
				}
				cronScheduler.Start()
				defer func() { <-cronScheduler.Stop().Done() }()

				srv := server.New(a.cfg, a.locations, a.workflow, a.postprints, a.logger)

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error { return worker.Run(gctx) })
				g.Go(func() error { return srv.ListenAndServe(gctx) })
				return g.Wait()
			})
		},
	}
}

func (c *cli) workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if a.cfg.JobBackend == "gochannel" {
					return errNeedsBroker
				}
				worker, err := a.newWorker()
				if err != nil {
					return err
				}
				return worker.Run(ctx)
			})
		},
	}
}

func (c *cli) runWorkflowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-workflow",
		Short: "Run the OA workflow once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if a.cfg.JobBackend == "gochannel" {
					return errNeedsBroker
				}
				summary, err := a.workflow.Run(ctx)
				a.logger.Info("OA workflow finished", zap.Any("summary", summary))
				return err
			})
		},
	}
}

func (c *cli) syncPostprintsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-postprints",
		Short: "Reconcile postprint statuses with Activity Insight once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if a.cfg.JobBackend == "gochannel" {
					return errNeedsBroker
				}
				summary, err := a.postprints.Run(ctx)
				a.logger.Info("Postprint sync finished", zap.Any("summary", summary))
				return err
			})
		},
	}
}

func (c *cli) backfillLocationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-locations",
		Short: "Create OA locations from the legacy URL columns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				summary, err := a.locations.Backfill(ctx)
				a.logger.Info("Location backfill finished", zap.Any("summary", summary))
				return err
			})
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return a.store.AutoMigrate(ctx)
			})
		},
	}
}
