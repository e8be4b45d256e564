package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ubuildacademy/takeoff-autocount/internal/config"
	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	dbRedis "github.com/ubuildacademy/takeoff-autocount/internal/db/redis"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
	logpkg "github.com/ubuildacademy/takeoff-autocount/internal/logger"
	"github.com/ubuildacademy/takeoff-autocount/internal/matcher"
	"github.com/ubuildacademy/takeoff-autocount/internal/metrics"
	"github.com/ubuildacademy/takeoff-autocount/internal/raster"
	conditionrepo "github.com/ubuildacademy/takeoff-autocount/internal/repository/condition"
	documentrepo "github.com/ubuildacademy/takeoff-autocount/internal/repository/document"
	measurementrepo "github.com/ubuildacademy/takeoff-autocount/internal/repository/measurement"
	"github.com/ubuildacademy/takeoff-autocount/internal/repository/runlock"
	templaterepo "github.com/ubuildacademy/takeoff-autocount/internal/repository/template"
	chiTransport "github.com/ubuildacademy/takeoff-autocount/internal/transport/chi"
	openaiDescribe "github.com/ubuildacademy/takeoff-autocount/internal/transport/openai"
	healthuc "github.com/ubuildacademy/takeoff-autocount/internal/usecase/health"
	measurementuc "github.com/ubuildacademy/takeoff-autocount/internal/usecase/measurement"
	searchuc "github.com/ubuildacademy/takeoff-autocount/internal/usecase/search"
	templateuc "github.com/ubuildacademy/takeoff-autocount/internal/usecase/template"
	"github.com/ubuildacademy/takeoff-autocount/internal/version"
)

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

	logger.Info("Starting takeoff auto-count API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Both supported drivers speak RESP; one rueidis store serves either.
	var store db.Store
	switch cfg.Database.Driver {
	case "valkey", "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	// Page renderer + match scorer
	rasterSrc := raster.New(raster.Config{
		Bin:      cfg.Renderer.Bin,
		Script:   cfg.Renderer.Script,
		FilesDir: cfg.Renderer.FilesDir,
	})
	scorer := matcher.New()

	// Optional symbol describer; disabled without an API key.
	var describer domain.SymbolDescriber
	if cfg.Describe.APIKey != "" {
		describer = openaiDescribe.NewDescriber(&openaiDescribe.Config{
			APIKey:  cfg.Describe.APIKey,
			BaseURL: cfg.Describe.BaseURL,
			Model:   cfg.Describe.Model,
			Logger:  logger,
		})
		logger.Info("Symbol describer enabled", zap.String("model", cfg.Describe.Model))
	}

	// Create repositories
	condRepo := conditionrepo.New(store)
	docRepo := documentrepo.New(store)
	measRepo := measurementrepo.New(store)
	tplRepo := templaterepo.New(store, time.Duration(cfg.Search.TemplateTTLSec)*time.Second)
	runLock := runlock.New(store, time.Duration(cfg.Search.RunLockTTLSec)*time.Second)

	// Create use case services
	templateSvc := templateuc.New(rasterSrc, tplRepo, docRepo, describer, templateuc.Options{
		RenderScale:        cfg.Search.TemplateRenderScale,
		MinSelectionExtent: cfg.Search.MinSelectionExtent,
	})
	measurementSvc := measurementuc.New(measRepo, condRepo, rasterSrc, measurementuc.Options{
		ThumbnailWidth:   cfg.Search.ThumbnailWidth,
		ThumbnailPadding: cfg.Search.ThumbnailPadding,
		MaxThumbnails:    cfg.Search.MaxThumbnails,
		PageRenderScale:  cfg.Search.PageRenderScale,
	})
	searchSvc := searchuc.New(
		condRepo, docRepo, measRepo, runLock, templateSvc, measurementSvc,
		rasterSrc, scorer,
		searchuc.Options{
			Workers:         cfg.Search.Workers,
			UnitTimeout:     time.Duration(cfg.Search.UnitTimeoutSec) * time.Second,
			PageRenderScale: cfg.Search.PageRenderScale,
		},
	)

	// Health service
	healthSvc := healthuc.New(store, rasterSrc)

	// Create chi server
	server := chiTransport.NewServer(
		searchSvc, templateSvc, measurementSvc, healthSvc, condRepo, docRepo, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// Zero write timeout keeps long-lived progress streams alive.
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
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
						"code":    "internal_error",
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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
