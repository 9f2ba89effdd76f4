package config

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads environment variables from .env/.env.local. The first
// file that parses wins; existing process environment is never overwritten.
func LoadEnvFile() {
	for _, path := range []string{".env", ".env.local"} {
		if err := godotenv.Load(path); err == nil {
			slog.Debug("Loaded environment file", "path", path)
			return
		}
	}
}
