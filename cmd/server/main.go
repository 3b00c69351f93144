package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tripplanner/internal/cache"
	"tripplanner/internal/config"
	httphandlers "tripplanner/internal/http"
	"tripplanner/internal/location_list"
	"tripplanner/internal/logger"
	"tripplanner/internal/metrics"
	"tripplanner/internal/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting trip planner server",
		zap.Int("port", cfg.Port),
		zap.String("data_dir", cfg.DataDir),
		zap.String("cache", cfg.CacheType),
	)

	m := metrics.New()

	tripCache, err := cache.NewCache(cfg.CacheType, cfg.TripCacheCapacity, cfg.TripSnapshotPath(),
		trip.TripCodec(), log.Named("trip_cache"), cache.WithMetrics(m.Cache("trips")))
	if err != nil {
		log.Fatal("Failed to initialize trip cache", zap.Error(err))
	}
	locationCache, err := cache.NewCache(cfg.CacheType, cfg.LocationCacheCapacity, cfg.LocationSnapshotPath(),
		trip.LocationCodec(), log.Named("location_cache"), cache.WithMetrics(m.Cache("locations")))
	if err != nil {
		log.Fatal("Failed to initialize location cache", zap.Error(err))
	}

	store := trip.NewMemoryStore()
	model := trip.NewModel(store, tripCache, locationCache, log, trip.WithObserver(m))

	scanner := location_list.New(cfg.LocationsDir, log)
	if err := scanner.Scan(); err != nil {
		log.Warn("Initial location scan failed", zap.Error(err))
	} else if n, err := scanner.Import(context.Background(), model); err != nil {
		log.Warn("Location import failed", zap.Error(err))
	} else {
		log.Info("Imported locations", zap.Int("count", n))
	}

	if _, err := model.Reconcile(context.Background()); err != nil {
		log.Warn("Cache reconciliation failed", zap.Error(err))
	}

	handlers := httphandlers.New(cfg, log, model)

	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.Handle("/metrics", m.Handler())

	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.WarmupWorkers > 0 {
		go func() {
			if err := model.Warmup(ctx, cfg.WarmupWorkers); err != nil {
				log.Warn("Cache warmup aborted", zap.Error(err))
			}
		}()
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	flushCache(log, "trips", tripCache)
	flushCache(log, "locations", locationCache)

	log.Info("Server stopped")
}

// flushCache persists recency refreshed by reads since the last mutation.
func flushCache(log *zap.Logger, name string, c any) {
	f, ok := c.(interface{ Flush() error })
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		log.Error("Failed to flush cache snapshot", zap.String("cache", name), zap.Error(err))
	}
}
