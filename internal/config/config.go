package config

import (
	"fmt"
	"mappo/internal/planner"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted in MAPPO_PROVIDER.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
	ProviderICloud = "icloud"
)

// Config holds the environment driven settings of the mappo CLI.
type Config struct {
	Provider string
	Platform planner.Platform
	DBPath   string
	Catalog  string
	Location *time.Location
	LogLevel string
	LogFile  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleAccount      string

	ICloudEndpoint     string
	ICloudUsername     string
	ICloudPassword     string
	ICloudCalendarName string
}

// LoadDotEnv loads a .env file if present. A missing file is not an error.
func LoadDotEnv(filenames ...string) {
	_ = godotenv.Load(filenames...)
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Provider:           strings.ToLower(get("MAPPO_PROVIDER", ProviderLocal)),
		DBPath:             get("MAPPO_DB_PATH", "mappo.db"),
		Catalog:            get("MAPPO_CATALOG", ""),
		LogLevel:           get("LOG_LEVEL", "info"),
		LogFile:            get("MAPPO_LOG_FILE", ""),
		GoogleClientID:     getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: getenv("GOOGLE_CLIENT_SECRET"),
		GoogleAccount:      get("GOOGLE_ACCOUNT", ""),
		ICloudEndpoint:     get("ICLOUD_CALDAV_ENDPOINT", ""),
		ICloudUsername:     getenv("ICLOUD_USERNAME"),
		ICloudPassword:     getenv("ICLOUD_APP_SPECIFIC_PASSWORD"),
		ICloudCalendarName: getenv("ICLOUD_CALENDAR_NAME"),
	}

	switch cfg.Provider {
	case ProviderLocal, ProviderGoogle, ProviderICloud:
	default:
		return nil, fmt.Errorf("unknown provider %q (want local, google or icloud)", cfg.Provider)
	}

	platform, err := planner.ParsePlatform(get("MAPPO_PLATFORM", DefaultPlatform(cfg.Provider)))
	if err != nil {
		return nil, err
	}
	cfg.Platform = platform

	tzStr := get("PRIMARY_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzStr)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", tzStr, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// DefaultPlatform is the calendar model a provider behaves like.
func DefaultPlatform(provider string) string {
	if provider == ProviderICloud {
		return string(planner.PlatformIOS)
	}
	return string(planner.PlatformAndroid)
}
