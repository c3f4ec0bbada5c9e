package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"secure-relay-backend/config"
	"secure-relay-backend/internal/controllers"
	"secure-relay-backend/internal/crypto"
	"secure-relay-backend/internal/keystore"
	"secure-relay-backend/internal/logging"
	"secure-relay-backend/internal/metrics"
	"secure-relay-backend/internal/middleware"
	"secure-relay-backend/internal/services"
)

type Server struct {
	uploadController  *controllers.UploadController
	decryptController *controllers.DecryptController
	keyController     *controllers.KeyController
	streamController  *controllers.StreamController
	statsController   *controllers.StatsController

	loggingMiddleware  *middleware.LoggingMiddleware
	recoveryMiddleware *middleware.RecoveryMiddleware
	corsMiddleware     *middleware.CORSMiddleware

	registry *services.ConnectionRegistry
	limiter  *services.ClientLimiter

	key        *keystore.Key
	promReg    *prometheus.Registry
	httpServer *http.Server
	config     *config.Config
	logger     *slog.Logger
}

// NewServer loads the key and wires every component. A missing or
// wrong-sized key is returned as an error before anything listens.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	key, err := keystore.Load(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	codec, err := crypto.NewCodec(key, crypto.Algorithm(cfg.Cipher))
	if err != nil {
		key.Destroy()
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	registry := services.NewConnectionRegistry(cfg.SendQueueSize, cfg.SlowClientPolicy, logger, m)
	limiter := services.NewClientLimiter(cfg.RateLimit, cfg.RateBurst)

	broadcastService := services.NewBroadcastService(codec, registry, logger, m)
	streamService := services.NewStreamService(registry, logger, m)
	decryptService := services.NewDecryptService(codec, logger, m)

	corsMiddleware := middleware.NewCORSMiddleware(cfg.AllowedOrigins)

	return &Server{
		uploadController:  controllers.NewUploadController(broadcastService, limiter, cfg.MaxBodyBytes, logger),
		decryptController: controllers.NewDecryptController(decryptService, limiter, cfg.MaxBodyBytes, logger),
		keyController:     controllers.NewKeyController(key, logger),
		streamController: controllers.NewStreamController(registry, streamService, controllers.StreamOptions{
			MaxChunkBytes: cfg.MaxChunkBytes,
			WriteTimeout:  cfg.WriteTimeout,
			PingInterval:  cfg.PingInterval,
			CheckOrigin:   corsMiddleware.Allowed,
		}, logger),
		statsController: controllers.NewStatsController(registry, limiter, string(codec.Algorithm())),

		loggingMiddleware:  middleware.NewLoggingMiddleware(logger),
		recoveryMiddleware: middleware.NewRecoveryMiddleware(logger),
		corsMiddleware:     corsMiddleware,

		registry: registry,
		limiter:  limiter,
		key:      key,
		promReg:  promReg,
		config:   cfg,
		logger:   logger,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return s.recoveryMiddleware.Wrap(
			s.loggingMiddleware.Wrap(
				s.corsMiddleware.Wrap(handler),
			),
		)
	}

	if s.config.ExposeKey {
		mux.HandleFunc("/get_key", wrap(s.keyController.Handle))
	}
	mux.HandleFunc("/upload-and-broadcast", wrap(s.uploadController.Handle))
	mux.HandleFunc("/decrypt-file", wrap(s.decryptController.Handle))
	mux.HandleFunc("/ws", wrap(s.streamController.Handle))
	mux.HandleFunc("/api/stats", wrap(s.statsController.Handle))
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", wrap(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	if s.config.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}

	return mux
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.limiter.CleanupOldClients(ctx, 24*time.Hour, 5*time.Minute)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort("", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("server running", "url", "http://localhost:"+s.config.Port)
	s.logger.Info("relay settings",
		"cipher", s.config.Cipher,
		"queue", s.config.SendQueueSize,
		"slow_policy", s.config.SlowClientPolicy,
		"expose_key", s.config.ExposeKey)
	if s.config.ExposeKey {
		s.logger.Warn("GET /get_key is enabled; the shared key is served to anyone who asks")
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initializing server shutdown")
	defer s.key.Destroy()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	port := flag.String("port", "", "Port to run the server on")
	keyPath := flag.String("key", "", "Path to the 32-byte secret key")
	cipherName := flag.String("cipher", "", "AEAD cipher: aes-256-gcm or chacha20-poly1305")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *keyPath != "" {
		cfg.KeyPath = *keyPath
	}
	if *cipherName != "" {
		cfg.Cipher = *cipherName
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)

	server, err := NewServer(cfg, logger)
	if err != nil {
		if errors.Is(err, keystore.ErrKeyMissing) {
			logger.Error("secret key not found; run: go run ./cmd/genkey", "path", cfg.KeyPath)
		} else {
			logger.Error("startup failed", "err", err)
		}
		os.Exit(1)
	}
	logger.Info("loaded secret key", "bytes", keystore.KeySize, "fingerprint", server.key.Fingerprint())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	idle := make(chan struct{})
	go func() {
		defer close(idle)
		<-ctx.Done()
		logger.Info("received shutdown signal, exiting")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down server", "err", err)
		}
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("error starting server", "err", err)
		os.Exit(1)
	}
	<-idle
}
