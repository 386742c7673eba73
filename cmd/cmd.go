package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habit-streak-backend/internal/config"
	"habit-streak-backend/internal/handlers"
	"habit-streak-backend/internal/middleware"
	"habit-streak-backend/internal/ratelimit"
	"habit-streak-backend/internal/repository"
	"habit-streak-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Run starts the bot backend and blocks until SIGINT or SIGTERM
func Run() {
	flags := pflag.NewFlagSet("habit-streak-backend", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "path to the YAML configuration file")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log.Level)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scheduler timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	// Transport
	var pusher services.Pusher
	notifier, err := services.NewPushNotifier(cfg.APNS, store.Users())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create push notifier")
	}
	if notifier != nil {
		pusher = notifier
		log.Info().Bool("production", cfg.APNS.Production).Msg("APNs push enabled")
	}
	wsHub := services.NewWSHub(pusher)

	// Photo storage
	var (
		photoService *services.PhotoService
		photoLinker  services.PhotoLinker
	)
	if cfg.AWS.S3Bucket != "" {
		photoService, err = services.NewPhotoService(ctx, cfg.AWS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create photo service")
		}
		photoLinker = photoService
	}

	publisher := services.NewEventPublisher(cfg.Kafka)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	// Services
	retrier := services.NewRetrier(cfg.Retry)
	locks := services.NewKeyedMutex()
	userService := services.NewUserService(store.Users(), cfg.JWT.Secret)
	habitService := services.NewHabitService(store, retrier, cfg.Storage.Timeout)
	streakService := services.NewStreakService(store, locks, retrier, loc, cfg.Storage.Timeout)
	reviewService := services.NewReviewService(store, streakService, wsHub, photoLinker, publisher, cfg.Admin.IDs)
	scheduler := services.NewScheduler(store, wsHub, publisher, retrier, cfg.Scheduler.Interval, cfg.Storage.Timeout, loc)

	limiter := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Rate)
	bot := handlers.NewBot(habitService, reviewService, limiter, wsHub)

	// Handlers
	userHandler := handlers.NewUserHandler(userService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, bot)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", userHandler.CreateUser)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))
			r.Use(middleware.RateLimit(limiter))
			r.Put("/users/push_token", userHandler.UpdatePushToken)
			if photoService != nil {
				r.Post("/photos/upload", handlers.NewPhotoHandler(photoService).UploadPhoto)
			}
		})
	})
	r.Get("/ws", wsHandler.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go scheduler.Start(ctx)

	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("storage", cfg.Storage.Driver).
			Int("admins", len(cfg.Admin.IDs)).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	scheduler.Wait()
	wsHub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStore connects the configured storage backend
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func()) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return repository.NewMemoryStore(), func() {}
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	if err := repository.Migrate(pingCtx, pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Msg("Database connection established")

	return repository.NewPostgresStore(pool), pool.Close
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
