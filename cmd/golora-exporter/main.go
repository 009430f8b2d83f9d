package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "golora-exporter",
		Short: "Ingest signed LoRa sensor packets and export the readings",
		Long: "golora-exporter verifies packets relayed from LoRa sensor nodes, decodes them per device type " +
			"and records every field as a Prometheus gauge and/or a TimescaleDB row.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a yaml config file (default ./config/config.yaml)")
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		stop()
		os.Exit(1)
	}
}
