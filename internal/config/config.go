// Package config reads server settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	DatabaseURL string
	Dev         bool
}

func Load() Config {
	// Missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	cfg := Config{
		Addr:        ":8080",
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Dev:         os.Getenv("DEV_MODE") == "1",
	}
	if addr := os.Getenv("ADDR"); addr != "" {
		cfg.Addr = addr
	}
	return cfg
}
