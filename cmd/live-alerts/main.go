package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mr1hm/go-live-alerts/internal/api"
	"github.com/mr1hm/go-live-alerts/internal/config"
	"github.com/mr1hm/go-live-alerts/internal/dedup"
	"github.com/mr1hm/go-live-alerts/internal/export"
	"github.com/mr1hm/go-live-alerts/internal/ingestion"
	"github.com/mr1hm/go-live-alerts/internal/logging"
	"github.com/mr1hm/go-live-alerts/internal/models"
	"github.com/mr1hm/go-live-alerts/internal/normalize"
	"github.com/mr1hm/go-live-alerts/internal/observability"
	"github.com/mr1hm/go-live-alerts/internal/realtime"
	"github.com/mr1hm/go-live-alerts/internal/relay"
	"github.com/mr1hm/go-live-alerts/internal/repository"
	"github.com/mr1hm/go-live-alerts/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	store, err := openStore(cfg.Store)
	if err != nil {
		logging.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	seen := dedup.NewStore(store, clock, metrics, dedup.Options{
		Key:        cfg.Store.Key,
		MaxAge:     cfg.Ingestion.DedupMaxAge,
		MaxEntries: cfg.Ingestion.DedupMaxEntries,
	})
	normalizer := normalize.NewNormalizer(clock, normalize.Thresholds{
		QuakeMedium: cfg.Severity.QuakeMedium,
		QuakeHigh:   cfg.Severity.QuakeHigh,
		FloodMedium: cfg.Severity.FloodMedium,
		FloodHigh:   cfg.Severity.FloodHigh,
	})
	coord := ingestion.NewCoordinator(normalizer, seen, metrics, cfg.Ingestion.MaxEvents)

	// Fan-out for SSE consumers
	broadcaster := stream.NewBroadcaster()

	var relayer ingestion.Relayer
	var dispatcher *relay.Dispatcher
	if cfg.Relay.Enabled {
		dispatcher = relay.NewDispatcher(relay.NewClient(cfg.Relay.URL, cfg.Relay.Timeout), cfg.Relay.Workers, cfg.Relay.BufferSize, metrics)
		dispatcher.Start(ctx)
		relayer = dispatcher
	}

	var exporter ingestion.Exporter
	var kafkaWriter *export.Writer
	if len(cfg.Export.KafkaBrokers) > 0 {
		kafkaWriter, err = export.NewWriter(cfg.Export.KafkaBrokers, cfg.Export.KafkaTopic)
		if err != nil {
			logging.Fatalf("Failed to initialize kafka export: %v", err)
		}
		exporter = kafkaWriter
	}

	mgr := ingestion.NewManager(coord, broadcaster, relayer, exporter, metrics)

	if cfg.Seismic.Enabled {
		mgr.AddAdapter(ingestion.NewSeismicPoller(cfg.Seismic, clock, metrics, mgr.Emit))
	}
	if cfg.River.Enabled {
		mgr.AddAdapter(ingestion.NewRiverPoller(cfg.River, ingestion.DefaultRiverSites, normalizer, clock, metrics, mgr.Emit))
	}

	var publisher api.Publisher
	var pubClient *redis.Client
	if cfg.Realtime.Enabled {
		sub := realtime.NewSubscriber(realtime.Options{
			Addr:     cfg.Realtime.RedisAddr,
			Channel:  cfg.Realtime.Channel,
			TokenURL: cfg.Realtime.TokenURL,
		}, func(ctx context.Context, msg models.RealtimeMessage) {
			mgr.Emit(ctx, models.SourceRealtime, msg)
		}, metrics)
		defer sub.Close()
		mgr.AddAdapter(sub)

		pubClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Realtime.RedisAddr,
			Password: cfg.Realtime.Token,
		})
		publisher = realtime.NewPublisher(pubClient, cfg.Realtime.Channel)
	}

	mgr.Start(ctx)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))

	handler := api.NewHandler(mgr, broadcaster, publisher, api.TokenConfig{
		Token: cfg.Realtime.Token,
		TTL:   cfg.Realtime.TokenTTL,
	}, clock)
	handler.RegisterRoutes(router, api.RateLimitMiddleware(cfg.Server.RateLimit, 0))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	if dispatcher != nil {
		dispatcher.Stop()
	}
	broadcaster.Close() // ends open SSE streams

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			slog.Error("kafka writer close error", "error", err)
		}
	}
	if pubClient != nil {
		pubClient.Close()
	}

	slog.Info("shutdown complete")
}

func openStore(cfg config.StoreConfig) (repository.KeyValueStore, error) {
	switch cfg.Backend {
	case "memory":
		return repository.NewMemoryStore(), nil
	case "pebble":
		return repository.NewPebbleStore(cfg.Path)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		return repository.NewSQLiteDB(cfg.Path)
	}
}
