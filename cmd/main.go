package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"libraryhub/internal/auth"
	"libraryhub/internal/config"
	"libraryhub/internal/database"
	"libraryhub/internal/handlers"
	"libraryhub/internal/ratelimit"
	"libraryhub/internal/repositories"
	"libraryhub/internal/scheduler"
	"libraryhub/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[WARN] failed to load .env: %v", err)
	}

	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close(db)

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[WARN] redis unreachable, rate limiting will fail open: %v", err)
		}
	} else {
		log.Printf("[INFO] REDIS_URL not set, rate limiting disabled")
	}

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	ebookRepo := repositories.NewEbookRepository(db)
	borrowRepo := repositories.NewBorrowRequestRepository(db)

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	accountService := services.NewAccountService(db, userRepo, tokens, cfg.Auth.BcryptCost, cfg.Database.StoreTimeout)
	catalogService := services.NewCatalogService(db, bookRepo, ebookRepo, borrowRepo, cfg.Database.StoreTimeout)
	borrowService := services.NewBorrowService(db, userRepo, bookRepo, borrowRepo, services.BorrowOptions{
		LoanPeriod:   cfg.Borrow.LoanPeriod(),
		FinePerDay:   cfg.Borrow.FinePerDay,
		StoreTimeout: cfg.Database.StoreTimeout,
	})

	if err := accountService.EnsureAdmin(context.Background(), cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("failed to bootstrap admin account: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := scheduler.NewOverdueSweeper(borrowService, cfg.Scheduler.OverdueSweepSchedule)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("failed to start overdue sweep: %v", err)
	}
	defer sweeper.Stop()

	router := handlers.NewRouter(handlers.Deps{
		DB:       db,
		Redis:    rdb,
		Borrow:   borrowService,
		Catalog:  catalogService,
		Accounts: accountService,
		Limiter:  ratelimit.New(rdb, cfg.Borrow.RateLimit, cfg.Borrow.RateLimitWindow),
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Printf("Starting server on %s (env=%s, db=%s)", cfg.HTTP.Addr, cfg.Env, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] graceful shutdown failed: %v", err)
	}
}
