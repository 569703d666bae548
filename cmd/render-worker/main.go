package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/config"
	"github.com/petgroove/petgroove-api/internal/domain/credit"
	"github.com/petgroove/petgroove-api/internal/domain/generation"
	"github.com/petgroove/petgroove-api/internal/domain/user"
	"github.com/petgroove/petgroove-api/internal/pkg/database"
	"github.com/petgroove/petgroove-api/internal/pkg/openai"
	"github.com/petgroove/petgroove-api/internal/pkg/runway"
	"github.com/petgroove/petgroove-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().Msg("Starting render-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	store := newStorage(cfg)
	runwayClient := runway.NewClient(cfg.RunwayBaseURL, cfg.RunwayAPIKey, 0)
	openaiClient := openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, 0)

	userRepo := user.NewRepository(db)
	creditRepo := credit.NewRepository(db)
	generationRepo := generation.NewRepository(db)
	ledger := credit.NewService(creditRepo)

	// The orchestrator handles failure transitions and refunds for the
	// poller; the worker never submits new renders itself.
	generationService := generation.NewService(generationRepo, userRepo, ledger, openaiClient, runwayClient, rdb)

	poller := generation.NewPoller(
		generationService,
		generationRepo,
		runwayClient,
		store,
		rdb,
		cfg.RenderPollInterval,
		cfg.RenderMaxAttempts,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("render poller exited")
	}

	log.Info().Msg("render-worker stopped")
}

func newStorage(cfg *config.Config) storage.Storage {
	if cfg.S3AccessKey != "" {
		s3, err := storage.NewS3Storage(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 storage")
		}
		return s3
	}

	log.Warn().Msg("No S3 credentials, using local media storage")
	local, err := storage.NewLocalStorage("data/media", "http://localhost:"+cfg.Port+"/media")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create local storage")
	}
	return local
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
