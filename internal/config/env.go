package config

import (
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
)

// envFiles are tried in order; the first one present wins.
var envFiles = []string{".env", ".env.local"}

// loadEnvFile loads KEY=VALUE pairs from the first available env file.
// Variables already present in the process environment are never overwritten.
func loadEnvFile() (string, error) {
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return path, err
		}
		return path, nil
	}
	return "", errors.New("no .env file found")
}

// envFallback returns the first non-empty environment variable of keys.
func envFallback(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func logEnvLoad() {
	path, err := loadEnvFile()
	switch {
	case err == nil:
		slog.Debug("Loaded environment variables", logfields.Path(path))
	case path != "":
		slog.Warn("Failed to parse env file", logfields.Path(path), logfields.Error(err))
	}
}
