package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/identra/server/internal/auth"
	"github.com/identra/server/internal/config"
	"github.com/identra/server/internal/db"
	httphandler "github.com/identra/server/internal/http"
	"github.com/identra/server/internal/http/handlers"
	"github.com/identra/server/internal/notify"
	"github.com/identra/server/internal/policy"
	"github.com/identra/server/internal/repo"

	_ "github.com/lib/pq"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	userRepo := repo.NewUserRepo(database)
	sessionRepo := repo.NewSessionRepo(database)
	verificationRepo := repo.NewVerificationRepo(database)

	// Collaborators and engines
	dispatcher := notify.NewLogDispatcher()
	hasher := auth.NewBcryptHasher(0)
	tokens := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, auth.SystemClock)
	otpEngine := auth.NewOTPEngine(verificationRepo, dispatcher, cfg.OTPSalt, auth.SystemClock, cfg.DevMode)
	authService := auth.NewAuthService(database, userRepo, sessionRepo, verificationRepo, hasher, tokens, auth.SystemClock)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	otpHandler := handlers.NewOTPHandler(otpEngine, authService)
	profileHandler := handlers.NewProfileHandler(userRepo, sessionRepo, policy.SelfServeEvaluator{})

	router := httphandler.NewRouter(authHandler, otpHandler, profileHandler, authService, userRepo)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
