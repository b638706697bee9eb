package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/config"
)

var (
	sweepWorker   bool
	pendingWorker bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire lapsed subscriptions and send expiry warnings",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"expiration_sweep",
			sweepWorker,
			func(cfg *config.Config) string { return cfg.Jobs.SweepSchedule },
			func(c *components) func(ctx context.Context) (logrus.Fields, error) {
				sweeper := service.NewSweeper(c.store, c.notifications(), c.locker(), c.cfg.Billing.ExpiryHorizonDays, c.cfg.Billing.NotificationLinkURL)
				return func(ctx context.Context) (logrus.Fields, error) {
					report, err := sweeper.Run(ctx)
					if report == nil {
						return nil, err
					}
					return logrus.Fields{
						"skipped":       report.Skipped,
						"expired":       report.Expired,
						"failed":        report.Failed,
						"notified":      report.Notified,
						"notify_failed": report.NotifyFailed,
					}, err
				}
			},
		)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run payment reconciliation commands",
}

var reconcilePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Query providers for stale pending payments and reconcile them",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"pending_recovery",
			pendingWorker,
			func(cfg *config.Config) string { return cfg.Jobs.PendingRecoverySchedule },
			func(c *components) func(ctx context.Context) (logrus.Fields, error) {
				recovery := service.NewPendingRecovery(c.store, c.reconciler, c.cfg.Billing.PendingGrace, c.cfg.Billing.PendingMaxAge, c.cfg.Billing.PendingBatchSize)
				return func(ctx context.Context) (logrus.Fields, error) {
					report, err := recovery.Run(ctx)
					if report == nil {
						return nil, err
					}
					return logrus.Fields{
						"examined":   report.Examined,
						"recovered":  report.Recovered,
						"still_open": report.StillOpen,
						"failed":     report.Failed,
					}, err
				}
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.AddCommand(reconcilePendingCmd)

	sweepCmd.Flags().BoolVar(&sweepWorker, "worker", false, "Run continuously on the configured cron schedule")
	reconcilePendingCmd.Flags().BoolVar(&pendingWorker, "worker", false, "Run continuously on the configured cron schedule")
}

type jobFunc func(ctx context.Context) (logrus.Fields, error)

func runCommand(
	name string,
	worker bool,
	scheduleResolver func(cfg *config.Config) string,
	build func(c *components) func(ctx context.Context) (logrus.Fields, error),
) {
	app, cleanup := mustBootstrap()
	defer cleanup()

	fn := jobFunc(build(app))
	if worker {
		runWorker(name, scheduleResolver(app.cfg), fn)
		return
	}
	runJob(context.Background(), name, fn)
}

// runWorker runs the job on a cron schedule. SkipIfStillRunning keeps a slow
// run from overlapping the next tick.
func runWorker(name string, schedule string, fn jobFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := newScheduler()
	if _, err := scheduler.AddFunc(schedule, func() { runJob(ctx, name, fn) }); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"job": name, "schedule": schedule}).Fatal("invalid worker schedule")
	}

	logrus.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("Worker started")
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.WithField("job", name).Info("Worker shutdown requested")

	cancel()
	<-scheduler.Stop().Done()
}

// newScheduler evaluates schedules in UTC regardless of the host time zone.
func newScheduler() *cron.Cron {
	return cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		),
	)
}

func runJob(ctx context.Context, name string, fn jobFunc) {
	start := time.Now()
	fields, err := fn(ctx)
	latency := time.Since(start)

	entry := logrus.WithFields(fields).WithField("job", name).WithField("latency", latency.String())
	if err != nil {
		metrics.JobDuration.WithLabelValues(name, "error").Observe(latency.Seconds())
		entry.WithError(err).Error("job_failed")
		return
	}
	metrics.JobDuration.WithLabelValues(name, "ok").Observe(latency.Seconds())
	entry.Info("job_completed")
}
