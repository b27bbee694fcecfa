package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/curaious/bizops/internal/config"
	"github.com/curaious/bizops/internal/scheduler"
	"github.com/curaious/bizops/internal/services"
	"github.com/curaious/bizops/internal/telemetry"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the invoice sync, payment backfill and stale run sweep on a schedule",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		os.Setenv("OTEL_SERVICE_NAME", "bizops-scheduler")
		shutdownTelemetry := telemetry.NewProvider(conf.OTEL_EXPORTER_OTLP_ENDPOINT)
		defer shutdownTelemetry()

		svc := services.NewServices(context.Background(), conf)

		s := scheduler.New(svc.Receivables, svc.SyncRuns, svc.Notifier)
		if err := s.Register(scheduler.Specs{
			Sync:     conf.SYNC_CRON,
			Backfill: conf.BACKFILL_CRON,
			Sweep:    scheduler.SweepSpec,
		}); err != nil {
			log.Fatal(err)
		}
		s.Start()
		slog.Info("Scheduler started")

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		slog.Info("Received interrupt...")

		s.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		svc.Close(ctx)
	},
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}
