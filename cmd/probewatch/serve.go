package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/services"
	httphandlers "probewatch/internal/handlers/http"
	"probewatch/internal/infrastructure/atlas"
	"probewatch/internal/infrastructure/middleware"
	"probewatch/internal/infrastructure/monitoring"
	"probewatch/internal/infrastructure/sink"
	"probewatch/pkg/circuitbreaker"
	"probewatch/pkg/config"
	"probewatch/pkg/distributed"
	"probewatch/pkg/logger"
	"probewatch/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	healthCheckInterval = 15 * time.Second
	pollerLockKey       = "probewatch:lock:poller"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Consume the Atlas stream and serve the status API",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLogger, err := logger.NewWithConfig(loggerConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewPrometheusCollector(reg)

	sinks := sink.Build(cfg, metrics, log.Named("sink"))
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warnw("error closing alert sinks", "error", err)
		}
	}()

	engine := services.NewEngine(engineConfig(cfg), services.RealClock{}, sinks.Sink, metrics, log.Named("engine"))
	engine.Start(ctx)

	client := atlas.NewClient(clientConfig(cfg), nil, log.Named("atlas"))
	defer client.Close()

	health := monitoring.NewHealthChecker(log.Named("health"))
	health.AddInventoryCheck(engine.Seeded, healthCheckInterval)
	health.AddCheck("atlas-api", func(context.Context) (bool, error) {
		if client.BreakerState() == circuitbreaker.StateOpen {
			return false, circuitbreaker.ErrOpen
		}
		return true, nil
	}, healthCheckInterval, time.Second)
	if sinks.Redis != nil {
		health.AddPingCheck("redis", sinks.Redis.Ping, healthCheckInterval, 2*time.Second)
	}

	var workers sync.WaitGroup
	runWorker := func(name string, fn func(context.Context) error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrEngineStopped) {
				log.Errorw("worker exited", "worker", name, "error", err)
			}
		}()
	}

	runWorker("inventory", func(ctx context.Context) error {
		return atlas.SeedInventory(ctx, client, engine, cfg.Atlas.InventoryRetryInitial, cfg.Atlas.InventoryRetryMax, log.Named("inventory"))
	})

	if cfg.Stream.Enabled {
		router := atlas.NewFrameRouter(engine, client, log.Named("stream"))
		stream := atlas.NewStreamClient(streamConfig(cfg), router, metrics, log.Named("stream"))
		health.AddStreamCheck(stream.Connected, healthCheckInterval)
		runWorker("stream", stream.Run)
	}

	if cfg.Poller.Enabled {
		poller := atlas.NewPoller(pollerConfig(cfg), client, engine, log.Named("poller"))
		if rc := sinks.RedisClient(); cfg.Poller.LeaderLock && rc != nil {
			lock := distributed.NewLock(rc, pollerLockKey, cfg.Poller.LeaderLockTTL)
			runWorker("poller", func(ctx context.Context) error {
				return distributed.RunExclusive(ctx, lock, cfg.Poller.LeaderLockTTL/2, log.Named("poller"), poller.Run)
			})
		} else {
			runWorker("poller", poller.Run)
		}
	}

	// Alerts raised by other instances reach local feed subscribers through Redis.
	if sinks.Redis != nil && sinks.Hub != nil {
		hub := sinks.Hub
		runWorker("redis-subscriber", func(ctx context.Context) error {
			return sinks.Redis.Subscribe(ctx, func(env sink.Envelope) error {
				data, err := json.Marshal(env.Alert)
				if err != nil {
					return err
				}
				hub.Broadcast(data)
				return nil
			})
		})
	}

	health.StartBackgroundChecks(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      newRouter(cfg, zapLogger, engine, client, health, reg, sinks),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting probewatch server", "address", cfg.Server.Address, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
		stop()
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	log.Info("shutting down probewatch server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	workers.Wait()

	if err := engine.Stop(shutdownCtx); err != nil {
		log.Errorw("engine did not drain before shutdown deadline", "error", err)
	}

	log.Info("probewatch server stopped")
	return runErr
}

func newRouter(
	cfg *config.Config,
	zapLogger *zap.Logger,
	reader *services.Engine,
	client *atlas.Client,
	health *monitoring.HealthChecker,
	gatherer prometheus.Gatherer,
	sinks *sink.Set,
) *gin.Engine {
	log := zapLogger.Sugar()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger.Named("http"))),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
	)

	httphandlers.NewProbeHandler(reader, client, log.Named("api")).SetupRoutes(router)

	if !cfg.Monitoring.PrometheusEnabled {
		gatherer = nil
	}
	var alerts http.HandlerFunc
	if sinks.Hub != nil {
		alerts = sinks.Hub.HandleWebSocket
	}
	httphandlers.NewSystemHandler(health, gatherer, alerts).
		SetupRoutes(router, cfg.Monitoring.MetricsPath, middleware.NewWebSocketRateLimitMiddleware(cfg))

	return router
}
