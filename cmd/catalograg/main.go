package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gutlabs/catalograg/internal/config"
	"github.com/gutlabs/catalograg/internal/db"
	dbRedis "github.com/gutlabs/catalograg/internal/db/redis"
	"github.com/gutlabs/catalograg/internal/domain/splitter"
	extractvision "github.com/gutlabs/catalograg/internal/extract/vision"
	logpkg "github.com/gutlabs/catalograg/internal/logger"
	"github.com/gutlabs/catalograg/internal/metrics"
	catalogrepo "github.com/gutlabs/catalograg/internal/repository/catalog"
	chunkrepo "github.com/gutlabs/catalograg/internal/repository/chunk"
	collectionrepo "github.com/gutlabs/catalograg/internal/repository/collection"
	"github.com/gutlabs/catalograg/internal/repository/embcache"
	searchrepo "github.com/gutlabs/catalograg/internal/repository/search"
	chiTransport "github.com/gutlabs/catalograg/internal/transport/chi"
	clipTransport "github.com/gutlabs/catalograg/internal/transport/clip"
	openaiTransport "github.com/gutlabs/catalograg/internal/transport/openai"
	answeruc "github.com/gutlabs/catalograg/internal/usecase/answer"
	cataloguc "github.com/gutlabs/catalograg/internal/usecase/catalog"
	embeddinguc "github.com/gutlabs/catalograg/internal/usecase/embedding"
	healthuc "github.com/gutlabs/catalograg/internal/usecase/health"
	ingestuc "github.com/gutlabs/catalograg/internal/usecase/ingest"
	retrieveuc "github.com/gutlabs/catalograg/internal/usecase/retrieve"
	"github.com/gutlabs/catalograg/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

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

	logger.Info("Starting catalograg API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("vector_addrs", cfg.Vector.Addrs),
	)

	metrics.Register()

	// Relational store.
	sqlDB, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to open postgres", zap.Error(err))
	}
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	defer sqlDB.Close()

	catalogRepo, err := catalogrepo.New(sqlDB)
	if err != nil {
		logger.Fatal("Failed to initialize catalog schema", zap.Error(err))
	}

	// Vector store.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Vector.Addrs,
		Username: cfg.Vector.Username,
		Password: cfg.Vector.Password,
		DB:       cfg.Vector.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Vector.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Vector store not ready", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	// Embedder chain: OpenAI -> cached -> instrumented.
	embedder := buildEmbedder(cfg, store, logger)

	// CLIP sidecar (optional).
	var clipClient *clipTransport.Embedder
	if cfg.CLIP.BaseURL != "" {
		clipClient = clipTransport.New(&clipTransport.Config{
			BaseURL: cfg.CLIP.BaseURL,
			Timeout: time.Duration(cfg.CLIP.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		logger.Info("CLIP sidecar configured", zap.String("base_url", cfg.CLIP.BaseURL))
	}

	// Vision model (optional).
	var visionModel *openaiTransport.Vision
	if cfg.Vision.Model != "" {
		visionModel = openaiTransport.NewVision(&openaiTransport.VisionConfig{
			APIKey:  firstNonEmpty(cfg.Vision.APIKey, cfg.Embedding.APIKey),
			BaseURL: cfg.Vision.BaseURL,
			Model:   cfg.Vision.Model,
			Timeout: time.Duration(cfg.Vision.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		logger.Info("Vision model configured", zap.String("model", cfg.Vision.Model))
	}

	// Answer model.
	completer := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
		APIKey:      firstNonEmpty(cfg.LLM.APIKey, cfg.Embedding.APIKey),
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Logger:      logger,
	})

	// Repositories.
	collRepo := collectionrepo.New(store, cfg.Embedding.Dimensions, cfg.CLIP.Dimensions).
		WithHNSW(collectionrepo.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		})
	chunkRepo := chunkrepo.New(store)
	searchRepo := searchrepo.New(store)

	// Use case services.
	chunking := splitter.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	ingestSvc := ingestuc.New(chunkRepo, collRepo, embedder,
		chunking, logpkg.Component(logger, "ingest"))
	if clipClient != nil {
		ingestSvc = ingestSvc.WithImages(clipClient, visionOrNil(visionModel))
	}

	registry := retrieveuc.NewRegistry(collRepo)
	retrieveSvc := retrieveuc.New(searchRepo, registry, embedder,
		logpkg.Component(logger, "retrieve"))
	if clipClient != nil {
		retrieveSvc = retrieveSvc.WithImageSearch(clipClient)
	}

	answerSvc := answeruc.New(retrieveSvc, completer, logpkg.Component(logger, "answer"))
	catalogSvc := cataloguc.New(catalogRepo, ingestSvc, collRepo, registry,
		logpkg.Component(logger, "catalog"))
	healthSvc := healthuc.New(catalogRepo, store, embedder)

	// HTTP server.
	server := chiTransport.NewServer(ingestSvc, retrieveSvc, answerSvc, catalogSvc, healthSvc, logger).
		WithCollections(collRepo)
	if visionModel != nil {
		server = server.WithVision(extractvision.New(visionModel))
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown.
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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) *embeddinguc.InstrumentedEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	cached := embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	if cfg.Embedding.CacheTTLSec > 0 {
		cached = cached.WithTTL(time.Duration(cfg.Embedding.CacheTTLSec) * time.Second)
	}

	return embeddinguc.NewInstrumentedEmbedder(cached, "openai", cfg.Embedding.Model, logger)
}

// visionOrNil avoids wrapping a typed nil pointer in an interface.
func visionOrNil(v *openaiTransport.Vision) ingestuc.Describer {
	if v == nil {
		return nil
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

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

