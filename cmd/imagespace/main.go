package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagespace/internal/collection"
	"github.com/kailas-cloud/imagespace/internal/config"
	dbRedis "github.com/kailas-cloud/imagespace/internal/db/redis"
	"github.com/kailas-cloud/imagespace/internal/domain/feature"
	logpkg "github.com/kailas-cloud/imagespace/internal/logger"
	"github.com/kailas-cloud/imagespace/internal/loop"
	"github.com/kailas-cloud/imagespace/internal/metrics"
	"github.com/kailas-cloud/imagespace/internal/repository/featurecache"
	"github.com/kailas-cloud/imagespace/internal/repository/history"
	"github.com/kailas-cloud/imagespace/internal/repository/preference"
	chiTransport "github.com/kailas-cloud/imagespace/internal/transport/chi"
	"github.com/kailas-cloud/imagespace/internal/transport/girder"
	"github.com/kailas-cloud/imagespace/internal/transport/smqtk"
	healthuc "github.com/kailas-cloud/imagespace/internal/usecase/health"
	"github.com/kailas-cloud/imagespace/internal/usecase/orchestrator"
	"github.com/kailas-cloud/imagespace/internal/usecase/resolver"
	"github.com/kailas-cloud/imagespace/internal/usecase/status"
	"github.com/kailas-cloud/imagespace/internal/usecase/view"
	"github.com/kailas-cloud/imagespace/internal/version"
)

// preferenceStore reads and writes the persisted view mode.
type preferenceStore interface {
	orchestrator.Preferences
	view.PreferenceWriter
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting imagespace API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("girder_url", cfg.Girder.BaseURL),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional: it backs preferences and the feature cache.
	var store *dbRedis.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")
	}

	var prefs preferenceStore = preference.NewMemory()
	if store != nil {
		prefs = preference.New(store, logger)
	}

	gc, err := girder.New(girder.Config{
		BaseURL:           cfg.Girder.BaseURL,
		Timeout:           time.Duration(cfg.Girder.TimeoutSec) * time.Second,
		ComputeRatePerSec: cfg.Girder.ComputeRatePerSec,
		ComputeBurst:      cfg.Girder.ComputeBurst,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal("Failed to create girder client", zap.Error(err))
	}

	identity := feature.NewIdentity(cfg.Identity.ImagePrefix, cfg.Identity.IDPrefix)
	lookup := girder.NewLookup(gc, cfg.Search.LookupPath)

	var computer resolver.Computer = girder.NewComputer(gc, cfg.Search.ComputePath)
	if cfg.FeatureCache.Enabled && store != nil {
		computer = featurecache.New(
			computer, store, identity,
			time.Duration(cfg.FeatureCache.TTLSec)*time.Second,
			metrics.FeatureCacheTotal, logger,
		)
		logger.Info("Feature cache enabled", zap.Int("ttl_sec", cfg.FeatureCache.TTLSec))
	}
	res := resolver.New(lookup, computer, identity, logger)

	// Pass nil interface (not typed nil pointer!) if IQR is not configured.
	var (
		iqrClient  *smqtk.Client
		iqrFetcher collection.Fetcher
	)
	if cfg.SMQTK.BaseURL != "" {
		iqrClient, err = smqtk.New(cfg.SMQTK.BaseURL, time.Duration(cfg.Girder.TimeoutSec)*time.Second, logger)
		if err != nil {
			logger.Fatal("Failed to create IQR client", zap.Error(err))
		}
		iqrFetcher = smqtk.NewFetcher(iqrClient, lookup).WithDefaultLimit(cfg.SMQTK.DefaultLimit)
	}

	l := loop.New(logger)
	go l.Run(ctx)

	opts := collection.Options{
		PageSize:           cfg.Search.PageSize,
		SupportsPagination: true,
		Logger:             logger,
	}
	registry, err := orchestrator.NewRegistry(buildModes(l, gc, cfg.Search.Modes, opts)...)
	if err != nil {
		logger.Fatal("Invalid search modes", zap.Error(err))
	}

	hist := history.New(history.DefaultMaxEntries)
	indicator := status.New()
	app := orchestrator.NewAppContext(ctx, l, prefs, hist, indicator, orchestrator.NewNavigator())
	orch := orchestrator.New(orchestrator.Config{
		App:                  app,
		Resolver:             res,
		Modes:                registry,
		Stored:               orchestrator.StoredQueries(l, girder.NewFetcher(gc, cfg.Search.StoredQueryPath), iqrFetcher, opts),
		ManagedStorageMarker: cfg.Identity.ManagedStorageMarker,
		Logger:               logger,
	})

	host := view.NewHost(app, prefs, view.NewLogRenderer(logger), logger)
	go host.Run(ctx)

	// Health service
	backends := map[string]healthuc.BackendChecker{"girder": gc}
	if iqrClient != nil {
		backends["smqtk"] = iqrClient
	}
	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(pinger, backends)

	// Create chi server
	server := chiTransport.NewServer(orch, host, hist, indicator, iqrClient, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiMiddleware.Timeout(time.Duration(cfg.HTTP.WaitTimeoutSec) * time.Second))
	r.Use(chiTransport.SessionTokenMiddleware(cfg.Girder.TokenCookie))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	// Cancels outstanding backend calls and stops the loop.
	cancel()

	logger.Info("Server stopped gracefully")
}

// buildModes creates one fetcher-backed mode per configured strategy, in
// name order so startup logs are stable.
func buildModes(
	l *loop.Loop,
	gc *girder.Client,
	modes map[string]config.ModeConfig,
	opts collection.Options,
) []orchestrator.Mode {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]orchestrator.Mode, 0, len(names))
	for _, name := range names {
		m := modes[name]
		out = append(out, orchestrator.FetcherMode(l, name, m.NiceName, girder.NewFetcher(gc, m.Path), opts))
	}
	return out
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    string(chiTransport.CodeInternalError),
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// The query string is omitted: it can carry image URLs with tokens.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
