package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tb-api-sdk/gateway/internal/config"
	"github.com/tb-api-sdk/gateway/internal/ratelimit"
	"github.com/tb-api-sdk/gateway/internal/server"
	"github.com/tb-api-sdk/gateway/internal/storage"
	"github.com/tb-api-sdk/gateway/internal/thingsboard"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var redis *storage.RedisClient
	if cfg.Redis.Addr != "" {
		redis, err = storage.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redis.Close()

		log.Println("Connected to redis successfully")
	}

	var postgres *storage.Postgres
	if cfg.Database.URL != "" {
		postgres, err = storage.NewPostgres(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer postgres.Close()

		if err := postgres.AutoMigrate(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		log.Println("Connected to database successfully")
	}

	tb := thingsboard.NewClient(
		cfg.ThingsBoard.Host,
		cfg.ThingsBoard.Username,
		cfg.ThingsBoard.Password,
		cfg.ThingsBoard.Timeout,
		cfg.ThingsBoard.UploadRPS,
	)

	limiter := ratelimit.NewLimiter(
		cfg.RateLimit.Backend,
		redis,
		cfg.RateLimit.Requests,
		cfg.RateLimit.Window,
		cfg.RateLimit.MaxClients,
	)

	srv := server.New(cfg, redis, postgres, tb, limiter)

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
