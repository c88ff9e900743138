package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, loaded from the environment.
type Config struct {
	Port string

	// AuthMode is "jwt" (verify hosted-backend access tokens) or "dev"
	// (X-Debug-Subject shim for local work).
	AuthMode   string
	JWTSecret  string
	JWTIssuer  string
	DevSubject string

	// StorageBackend is "memory" or "postgres".
	StorageBackend string
	DatabaseURL    string

	LogLevel    string
	CORSOrigins []string
}

// Load reads configuration from the environment. A .env file is applied
// first when present; real environment variables win over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getenv("PORT", "8080"),
		AuthMode:       getenv("AUTH_MODE", "jwt"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      getenv("JWT_ISSUER", "memberd"),
		DevSubject:     getenv("DEV_SUBJECT", "dev|local"),
		StorageBackend: getenv("STORAGE_BACKEND", "memory"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.AuthMode == "jwt" && cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required when AUTH_MODE=jwt")
	}
	if cfg.StorageBackend == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
