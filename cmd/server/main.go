package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ayush/sessionauth/internal/auth"
	"github.com/ayush/sessionauth/internal/config"
	"github.com/ayush/sessionauth/internal/logger"
	"github.com/ayush/sessionauth/internal/middleware"
	"github.com/ayush/sessionauth/internal/passhash"
	"github.com/ayush/sessionauth/internal/session"
	"github.com/ayush/sessionauth/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.Environment(cfg.AppEnv), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	ctx := context.Background()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal(ctx, "postgres connect", zap.Error(err))
	}
	defer pgPool.Close()
	if err := store.Migrate(ctx, pgPool); err != nil {
		log.Fatal(ctx, "postgres migrate", zap.Error(err))
	}
	pgStore := store.NewPostgresStore(pgPool)

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal(ctx, "redis connect", zap.Error(err))
	}
	defer rdb.Close()
	sessions := session.NewRedisStore(rdb, session.Options{
		TTL:          cfg.SessionTTL,
		PermanentTTL: cfg.PermanentSessionTTL,
		Secure:       cfg.CookieSecure,
	})

	// ── Password hashing ─────────────────────────────────────
	hashes, err := passhash.New(cfg.PasswordPolicy())
	if err != nil {
		log.Fatal(ctx, "password policy", zap.Error(err))
	}

	// ── MongoDB (optional audit trail) ───────────────────────
	var (
		authOpts []auth.Option
		activity auth.ActivityLog
	)
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal(ctx, "mongo connect", zap.Error(err))
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()

		audit := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
		if err := audit.EnsureIndexes(ctx); err != nil {
			log.Warn(ctx, "mongo indexes", zap.Error(err))
		}
		authOpts = append(authOpts, auth.WithAudit(audit))
		activity = audit
	} else {
		log.Info(ctx, "MONGO_URI not set, login audit trail disabled")
	}

	// ── Handlers ─────────────────────────────────────────────
	authenticator := auth.NewAuthenticator(pgStore, hashes, authOpts...)
	authHandler := auth.NewHandler(authenticator, pgStore, sessions, activity, cfg.LoginPath)

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)

		r.Get(cfg.LoginPath, authHandler.LoginForm)
		r.Post(cfg.LoginPath, authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		// Everything below requires a logged-in session
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireLogin(cfg.LoginPath))
			r.Get("/", authHandler.Home)
			r.Get("/api/me", authHandler.Me)
			r.Get("/api/me/activity", authHandler.Activity)
		})
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info(ctx, "listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(ctx, "server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error(ctx, "shutdown", zap.Error(err))
	}
}
