// Package main boots the document Q&A backend: environment and configuration
// loading, structured logging, SQLite storage, the in-memory retrieval
// engine, OpenTelemetry tracing, the Gin HTTP server, and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-docqa-backend/docs"
	"github.com/tbourn/go-docqa-backend/internal/config"
	httpapi "github.com/tbourn/go-docqa-backend/internal/http"
	"github.com/tbourn/go-docqa-backend/internal/observability"
	"github.com/tbourn/go-docqa-backend/internal/repo"
	"github.com/tbourn/go-docqa-backend/internal/search"
	"github.com/tbourn/go-docqa-backend/internal/services"
	"github.com/tbourn/go-docqa-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// @title        Go DocQA Backend
// @version      1.0
// @description  Session-scoped document question answering. Upload plain-text documents into a session, then ask questions; answers are retrieved from the uploaded text by lexical passage scoring. Documents live in memory only; sessions, exchanges, and feedback persist in SQLite.
//
// @contact.name  API Support
// @license.name  MIT
//
// @BasePath  /api/v1
func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	gin.SetMode(cfg.GinMode)

	// Tracing first, so the DB plugin and HTTP middleware pick up the provider.
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("attach gorm tracing plugin")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// One in-memory collection per session, all sharing the configured limits.
	reg := services.NewCollectionRegistry(collectionOptions(cfg.Search)...)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, reg, cfg)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		docs.SwaggerInfo.Version = version
		r.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("mode", cfg.GinMode).
			Str("version", version).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

// collectionOptions maps the search settings onto collection construction
// options. Config validation guarantees the values are in range.
func collectionOptions(s config.SearchConfig) []search.Option {
	return []search.Option{
		search.WithChunkSize(s.ChunkSize),
		search.WithChunkOverlap(s.ChunkOverlap),
		search.WithMaxDocuments(s.MaxDocuments),
		search.WithMaxChunksPerDocument(s.MaxChunksPerDoc),
		search.WithMaxTotalChunks(s.MaxTotalChunks),
		search.WithMaxDocumentChars(s.MaxDocumentChars),
		search.WithMaxIndexedTerms(s.MaxIndexedTerms),
		search.WithMinTokenLength(s.MinTokenLength),
		search.WithDefaultThreshold(s.Threshold),
	}
}
