package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/config"
	"github.com/Tyrowin/gochat/internal/logger"
	"github.com/Tyrowin/gochat/internal/metrics"
	"github.com/Tyrowin/gochat/internal/session"
	"github.com/Tyrowin/gochat/internal/transport"
	"github.com/Tyrowin/gochat/internal/tui"
	"github.com/Tyrowin/gochat/internal/version"
)

var (
	configPath string
	serverURL  string
	origin     string
	username   string
	room       string
	plain      bool
	verbose    bool

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of chatclient",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chatclient version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "chatclient",
		Short: "GoChat terminal client",
		Long:  `GoChat terminal client connects to a chat server over WebSocket and provides rooms, private messages and a network monitor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd)
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	rootCmd.Flags().StringVar(&serverURL, "url", "", "WebSocket endpoint, e.g. ws://localhost:8080/ws")
	rootCmd.Flags().StringVar(&origin, "origin", "", "page origin the endpoint is derived from")
	rootCmd.Flags().StringVarP(&username, "username", "u", "", "display name (generated when empty)")
	rootCmd.Flags().StringVarP(&room, "room", "r", "", "room to start in")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "line-oriented output instead of the full-screen interface")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print network monitor lines in plain mode")
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration and applies flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Server.URL = serverURL
	}
	if flags.Changed("origin") {
		cfg.Server.Origin = origin
	}
	if flags.Changed("username") {
		cfg.Username = username
	}
	if flags.Changed("room") {
		cfg.Room = room
	}
	if plain {
		cfg.UI.Mode = "plain"
	}
	cfg.Sanitize()
	return cfg, nil
}

func run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	m := metrics.New(cfg.Metrics)
	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr, m, log)
	}

	endpoint, err := transport.Endpoint(cfg.Server)
	if err != nil {
		return err
	}
	manager := transport.New(transport.Options{
		Endpoint:         endpoint,
		Origin:           transport.OriginFor(cfg.Server, endpoint),
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		Policy:           transport.PolicyFromConfig(cfg.Reconnect),
		Logger:           log.Named("transport"),
		Metrics:          m,
	})

	ui, err := newRunner(cfg.UI.Mode, log)
	if err != nil {
		return err
	}

	opts := session.OptionsFromConfig(*cfg)
	opts.Logger = log.Named("session")
	opts.Metrics = m
	ctrl := session.NewController(opts, manager, ui)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() { _ = ctrl.Run(ctx) }()
	if err := manager.Start(ctx, ctrl); err != nil {
		return err
	}
	defer manager.Stop()

	log.Info("chatclient started",
		zap.String("version", version.Get()),
		zap.String("endpoint", endpoint),
		zap.String("ui", cfg.UI.Mode))

	if err := ui.Run(ctx, ctrl); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRunner(mode string, log *zap.Logger) (tui.Runner, error) {
	if mode == "plain" {
		return tui.NewPlain(os.Stdin, os.Stdout, verbose), nil
	}
	screen, err := tui.NewScreen(log.Named("tui"))
	if err != nil {
		return nil, err
	}
	return screen, nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics listener stopped", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
