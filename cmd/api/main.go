package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/config"
	"github.com/petgroove/petgroove-api/internal/domain/auth"
	"github.com/petgroove/petgroove-api/internal/domain/billing"
	"github.com/petgroove/petgroove-api/internal/domain/credit"
	"github.com/petgroove/petgroove-api/internal/domain/generation"
	"github.com/petgroove/petgroove-api/internal/domain/upload"
	"github.com/petgroove/petgroove-api/internal/domain/user"
	"github.com/petgroove/petgroove-api/internal/middleware"
	"github.com/petgroove/petgroove-api/internal/pkg/database"
	"github.com/petgroove/petgroove-api/internal/pkg/imaging"
	"github.com/petgroove/petgroove-api/internal/pkg/jwt"
	"github.com/petgroove/petgroove-api/internal/pkg/openai"
	pkgresponse "github.com/petgroove/petgroove-api/internal/pkg/response"
	"github.com/petgroove/petgroove-api/internal/pkg/runway"
	"github.com/petgroove/petgroove-api/internal/pkg/storage"
	"github.com/petgroove/petgroove-api/internal/pkg/stripe"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Pet Groove API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	store, serveLocalMedia := newStorage(cfg)

	// ---------- Vendor clients ----------
	openaiClient := openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, 0)
	runwayClient := runway.NewClient(cfg.RunwayBaseURL, cfg.RunwayAPIKey, 0)
	stripeClient := stripe.NewClient("", cfg.StripeSecretKey, 0)

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	creditRepo := credit.NewRepository(db)
	generationRepo := generation.NewRepository(db)

	// ---------- Services ----------
	ledger := credit.NewService(creditRepo)
	authService := auth.NewService(userRepo, jwtService, redis)
	generationService := generation.NewService(generationRepo, userRepo, ledger, openaiClient, runwayClient, redis)
	uploadService := upload.NewService(imaging.NewProcessor(imaging.DefaultConfig()), store)
	billingService := billing.NewService(userRepo, ledger, stripeClient, billing.Config{
		WeeklyPriceID: cfg.StripeWeeklyPriceID,
		AnnualPriceID: cfg.StripeAnnualPriceID,
		FrontendURL:   cfg.FrontendURL,
		WebhookSecret: cfg.StripeWebhookSecret,
	})

	// ---------- Handlers ----------
	authHandler := auth.NewHandler(authService)
	creditHandler := credit.NewHandler(ledger, userRepo)
	streamer := generation.NewStreamer(generationRepo, redis, cfg.AllowedOrigins)
	generationHandler := generation.NewHandler(generationService, streamer)
	uploadHandler := upload.NewHandler(uploadService)
	billingHandler := billing.NewHandler(billingService)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes(authMiddleware))
		r.Mount("/upload", uploadHandler.Routes(authMiddleware))
		r.Mount("/generate", generationHandler.Routes(authMiddleware))
		r.Mount("/subscribe", billingHandler.Routes(authMiddleware))

		r.Route("/account", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Get("/credits", creditHandler.GetBalance)
			r.Get("/transactions", creditHandler.ListTransactions)
			r.Get("/generations", generationHandler.ListMine)
		})
	})

	// Stripe posts here; signature verification replaces auth
	r.Post("/webhooks/stripe", billingHandler.Webhook)

	if serveLocalMedia {
		fs := http.StripPrefix("/media/", http.FileServer(http.Dir("data/media")))
		r.Get("/media/*", func(w http.ResponseWriter, r *http.Request) {
			fs.ServeHTTP(w, r)
		})
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// newStorage picks S3 when credentials are configured, otherwise a
// local directory served from /media for development.
func newStorage(cfg *config.Config) (storage.Storage, bool) {
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
		return s3, false
	}

	log.Warn().Msg("No S3 credentials, using local media storage")
	local, err := storage.NewLocalStorage("data/media", "http://localhost:"+cfg.Port+"/media")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create local storage")
	}
	return local, true
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}
