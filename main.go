package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medistore/m/internal/api"
	"medistore/m/internal/cart"
	"medistore/m/internal/config"
	"medistore/m/internal/database"
	"medistore/m/internal/migrations"
	"medistore/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	seed.EnsureAdmin(db, cfg, logger)

	var carts cart.Store = cart.NewMemoryStore()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		carts = cart.NewRedisStore(client)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis cart store")
	}

	handler := api.New(db, cfg.Secret, carts, logger)

	logger.Info().Str("port", cfg.HTTPPort).Msg("MediStore server starting")
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
