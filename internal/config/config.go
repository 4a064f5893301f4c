package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds application configuration values.
type Config struct {
	Secret      string
	DatabaseDSN string
	HTTPPort    string
	RedisAddr   string

	AdminName     string
	AdminEmail    string
	AdminPassword string
	AdminPhone    string
	AdminAddress  string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "file:medistore.db?_pragma=foreign_keys(1)"
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	return Config{
		Secret:      secret,
		DatabaseDSN: dsn,
		HTTPPort:    port,
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		AdminName:     os.Getenv("ADMIN_NAME"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminPhone:    os.Getenv("ADMIN_PHONE"),
		AdminAddress:  os.Getenv("ADMIN_ADDRESS"),
	}
}
