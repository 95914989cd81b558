package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/gochat/internal/config"
	"github.com/Tyrowin/gochat/internal/metrics"
)

// Server wires the hub to HTTP: the websocket endpoint, a health check and
// the metrics endpoint.
type Server struct {
	cfg      config.RelayConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
	hub      *Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// New builds a relay from cfg. Start must be called before serving.
func New(cfg config.RelayConfig, logger *zap.Logger, m *metrics.Metrics) *Server {
	cfg.Sanitize()
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		hub:     NewHub(cfg.DefaultRoom, logger.Named("hub"), m),
		origins: newOriginPolicy(cfg.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// Hub returns the relay hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start launches the hub loop.
func (s *Server) Start() {
	go s.hub.Run()
	s.logger.Info("hub started and ready to manage websocket connections")
}

// Routes returns the HTTP handler of the relay.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc(config.DefaultPath, s.WebSocketHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// WebSocketHandler upgrades GET requests and hands the socket to the hub.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(s.hub, conn, r.RemoteAddr, r.Host, s.cfg)
	if !s.hub.join(client) {
		_ = conn.Close()
	}
}

// HealthHandler reports that the relay is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "GoChat relay is running!")
}

// CreateServer creates an HTTP server with production timeouts.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ListenAndServe runs the relay on cfg.Port until ctx is cancelled, then shuts
// down the HTTP server and the hub within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.Start()
	srv := CreateServer(s.cfg.Port, s.Routes())

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		_ = s.hub.Shutdown(s.cfg.ShutdownTimeout)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	return s.Shutdown(srv)
}

// Shutdown stops srv gracefully and then the hub.
func (s *Server) Shutdown(srv *http.Server) error {
	s.logger.Info("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	httpErr := srv.Shutdown(ctx)
	if httpErr != nil {
		s.logger.Warn("http server shutdown error", zap.Error(httpErr))
	}
	hubErr := s.hub.Shutdown(s.cfg.ShutdownTimeout)
	return errors.Join(httpErr, hubErr)
}
