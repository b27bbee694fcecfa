package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/curaious/bizops/internal/config"
	"github.com/curaious/bizops/internal/integrations/slack"
	"github.com/curaious/bizops/internal/notify"
)

var notifyWorkerCmd = &cobra.Command{
	Use:   "notify-worker",
	Short: "Deliver queued notifications to Slack",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()
		if conf.REDIS_URL == "" {
			log.Fatal("REDIS_URL is required for the notification worker")
		}

		rdb, err := notify.NewRedisClient(conf.REDIS_URL)
		if err != nil {
			log.Fatal(err)
		}
		defer rdb.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue := notify.NewQueue(rdb, notify.DefaultQueueKey)
		notify.NewWorker(queue, notify.NewDirect(slack.NewClient(conf.SLACK_WEBHOOK_URL))).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(notifyWorkerCmd)
}
