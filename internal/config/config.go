// Package config loads engine configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"companion_engine/platform/validator"

	"github.com/joho/godotenv"
)

// Config holds every tunable the engine reads at startup.
type Config struct {
	Env      string
	HTTPAddr string

	// APIBaseURL is the companion backend base URL. The realtime channel URL
	// is derived from it unless WSURLOverride is set.
	APIBaseURL    string `validate:"omitempty,url"`
	WSURLOverride string `validate:"omitempty,url"`
	WSPathSuffix  string

	PublishDestination   string
	SubscribeDestination string

	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration

	DirectionsURL    string `validate:"required,url"`
	DirectionsAPIKey string
	PlacesURL        string `validate:"required,url"`
	PlacesAPIKey     string
	TranscribeURL    string `validate:"required,url"`

	// AccessToken is the persisted credential; TestToken is an injected
	// credential used by integration tooling. See credentials.Chain for the
	// priority order.
	AccessToken string
	TestToken   string

	// PublishMinInterval throttles outbound location updates. Zero disables
	// the throttle.
	PublishMinInterval time.Duration

	CORSOrigins []string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8090"),
		APIBaseURL:           getEnv("API_BASE_URL", ""),
		WSURLOverride:        getEnv("WS_URL", ""),
		WSPathSuffix:         getEnv("WS_PATH_SUFFIX", "/ws/location"),
		PublishDestination:   getEnv("WS_PUBLISH_DESTINATION", "/app/location/update"),
		SubscribeDestination: getEnv("WS_SUBSCRIBE_DESTINATION", "/topic/location/updates"),
		HeartbeatInterval:    mustDuration(getEnv("WS_HEARTBEAT_INTERVAL", "10s")),
		ReconnectDelay:       mustDuration(getEnv("WS_RECONNECT_DELAY", "5s")),
		DirectionsURL:        getEnv("DIRECTIONS_URL", ""),
		DirectionsAPIKey:     getEnv("DIRECTIONS_API_KEY", ""),
		PlacesURL:            getEnv("PLACES_URL", ""),
		PlacesAPIKey:         getEnv("PLACES_API_KEY", ""),
		TranscribeURL:        getEnv("TRANSCRIBE_URL", ""),
		AccessToken:          getEnv("ACCESS_TOKEN", ""),
		TestToken:            getEnv("TEST_ACCESS_TOKEN", ""),
		PublishMinInterval:   mustDuration(getEnv("PUBLISH_MIN_INTERVAL", "1s")),
		CORSOrigins:          splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
	}

	if cfg.WSURLOverride == "" && cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("either WS_URL or API_BASE_URL is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("WS_HEARTBEAT_INTERVAL must be a positive duration")
	}
	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("WS_RECONNECT_DELAY must be a positive duration")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
