package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	QuickdrawBaseURL string
	QuickdrawAPIKey  string
	CallbackURL      string

	PollMaxAttempts int
	PollInterval    time.Duration

	DriveFolderName          string
	GoogleClientID           string
	GoogleClientSecret       string
	GoogleRedirectURL        string
	GoogleServiceAccountFile string
	TokenCachePath           string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:                   getEnv("APP_ENV", "development"),
		Port:                     getEnv("PORT", "8080"),
		QuickdrawBaseURL:         getEnv("QUICKDRAW_BASE_URL", "https://api.aiquickdraw.com"),
		QuickdrawAPIKey:          os.Getenv("QUICKDRAW_API_KEY"),
		CallbackURL:              os.Getenv("CALLBACK_URL"),
		PollMaxAttempts:          getEnvInt("POLL_MAX_ATTEMPTS", 60),
		PollInterval:             time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 2)),
		DriveFolderName:          getEnv("DRIVE_FOLDER_NAME", "AI Generated Images"),
		GoogleClientID:           os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:       os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:        getEnv("GOOGLE_REDIRECT_URL", "urn:ietf:wg:oauth:2.0:oob"),
		GoogleServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
		TokenCachePath:           getEnv("TOKEN_CACHE_PATH", ".cache/drive-token.json"),
		HTTPReadTimeout:          time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:         time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:          time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:          getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.QuickdrawAPIKey == "" {
		return nil, fmt.Errorf("QUICKDRAW_API_KEY is required")
	}

	if cfg.PollMaxAttempts <= 0 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
