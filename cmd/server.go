package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/curaious/bizops/internal/api"
	"github.com/curaious/bizops/internal/config"
	"github.com/curaious/bizops/internal/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		shutdownTelemetry := telemetry.NewProvider(conf.OTEL_EXPORTER_OTLP_ENDPOINT)
		defer shutdownTelemetry()

		s, err := api.New(context.Background(), conf)
		if err != nil {
			log.Fatal(err)
		}
		s.Start()
	},
}

// Register the "server" command
func init() {
	rootCmd.AddCommand(serverCmd)
}
