// Command server runs the EcoPrenda marketplace API.
//
// @title                       EcoPrenda API
// @version                     1.0
// @description                 Used-clothing marketplace: exchanges, sales, donations to foundations, campaigns and environmental impact.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @securityDefinitions.apikey  UserHeader
// @in                          header
// @name                        X-User-ID
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/config"
	"github.com/tbourn/ecoprenda-backend/internal/geo"
	httpapi "github.com/tbourn/ecoprenda-backend/internal/http"
	"github.com/tbourn/ecoprenda-backend/internal/media"
	"github.com/tbourn/ecoprenda-backend/internal/observability"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/services"
	"github.com/tbourn/ecoprenda-backend/internal/sysutil"
	"github.com/tbourn/ecoprenda-backend/internal/vision"
)

var version = "dev"

// idempotencyPurgeEvery is how often expired Idempotency-Key records are removed.
const idempotencyPurgeEvery = 10 * time.Minute

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()
	if *showVersion {
		fmt.Printf("ecoprenda-backend %s\n", sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	sysutil.InitLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	if err := repo.Seed(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("seed")
	}
	if sysutil.IsTruthy(os.Getenv("MIGRATE_ONLY")) {
		log.Info().Msg("migrations applied, exiting")
		return
	}

	collab := httpapi.Collaborators{
		Images:     imageStore(ctx, cfg),
		Classifier: vision.NewClarifai(cfg.Classifier, cfg.HTTPClientTimeout),
		Geocoder:   geo.NewGeoapify(cfg.Geocoder, cfg.HTTPClientTimeout),
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, collab, cfg)

	go purgeIdempotency(ctx, db)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Str("version", appVersion).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

// imageStore prefers the S3 bucket when one is configured and keeps the
// local directory as the fallback for failed uploads.
func imageStore(ctx context.Context, cfg config.Config) media.Store {
	local := media.NewLocalStore(cfg.Media.Dir, cfg.Media.BaseURL)
	if cfg.S3.Bucket == "" {
		return local
	}
	s3, err := media.NewS3Store(ctx, cfg.S3)
	if err != nil {
		log.Warn().Err(err).Str("bucket", cfg.S3.Bucket).Msg("s3 unavailable, using local media")
		services.CollaboratorFailed("s3")
		return local
	}
	return &media.FallbackStore{
		Primary:   s3,
		Secondary: local,
		OnFallback: func(ctx context.Context, err error) {
			log.Ctx(ctx).Warn().Err(err).Msg("s3 upload failed, stored locally")
			services.CollaboratorFailed("s3")
		},
	}
}

func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencyPurgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("idempotency purge")
			}
		}
	}
}
