package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/config"
	"github.com/Tyrowin/gochat/internal/logger"
	"github.com/Tyrowin/gochat/internal/metrics"
	"github.com/Tyrowin/gochat/internal/relay"
	"github.com/Tyrowin/gochat/internal/version"
)

var (
	configPath string
	addr       string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of chatrelay",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chatrelay version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "chatrelay",
		Short: "GoChat development relay",
		Long:  `GoChat development relay serves the chat protocol over WebSocket for local testing of the client`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd)
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address, e.g. :8080")
	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command) error {
	cfg, err := config.LoadRelayConfig(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Port = addr
	}

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting GoChat relay",
		zap.String("version", version.Get()),
		zap.String("addr", cfg.Port),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Int64("max_message_size", cfg.MaxMessageSize),
		zap.Int("rate_limit_burst", cfg.RateLimit.Burst),
		zap.Duration("rate_limit_refill_interval", cfg.RateLimit.RefillInterval))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := relay.New(*cfg, log, metrics.New(cfg.Metrics))
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("relay stopped with error", zap.Error(err))
		return err
	}
	log.Info("relay shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
