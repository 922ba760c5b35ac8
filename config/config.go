package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string
	InternalToken  string
	AllowedOrigins []string

	HouseUserID       string
	MinWager          int64
	IdleLobbyTimeout  time.Duration
	JobPollInterval   time.Duration
	LobbyCodeAttempts int
	LobbyCodeBackoff  time.Duration

	NotifyServiceURL string

	ProfileSyncURL      string
	ProfileSyncPath     string
	ProfileSyncInterval time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
}

func Default() Config {
	return Config{
		Port:                "5200",
		AllowedOrigins:      []string{"http://localhost:3000"},
		MinWager:            100,
		IdleLobbyTimeout:    10 * time.Minute,
		JobPollInterval:     15 * time.Second,
		LobbyCodeAttempts:   10,
		LobbyCodeBackoff:    50 * time.Millisecond,
		ProfileSyncPath:     "/api/v1/public/profiles",
		ProfileSyncInterval: time.Minute,
	}
}

// Load reads the environment over Default. Malformed values keep the default.
func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.ServiceToken = os.Getenv("GAME_SERVICE_TOKEN")
	cfg.InternalToken = os.Getenv("INTERNAL_SERVICE_TOKEN")
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		var origins []string
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}

	cfg.HouseUserID = os.Getenv("HOUSE_USER_ID")
	if raw := os.Getenv("MIN_WAGER"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil && value > 0 {
			cfg.MinWager = value
		}
	}
	if raw := os.Getenv("IDLE_LOBBY_TIMEOUT"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			cfg.IdleLobbyTimeout = value
		}
	}
	if raw := os.Getenv("JOB_POLL_INTERVAL"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			cfg.JobPollInterval = value
		}
	}
	if raw := os.Getenv("LOBBY_CODE_ATTEMPTS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.LobbyCodeAttempts = value
		}
	}
	if raw := os.Getenv("LOBBY_CODE_BACKOFF"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value >= 0 {
			cfg.LobbyCodeBackoff = value
		}
	}

	cfg.NotifyServiceURL = os.Getenv("NOTIFY_SERVICE_URL")

	cfg.ProfileSyncURL = os.Getenv("SYNC_SERVICE_URL")
	if raw := os.Getenv("SYNC_PROFILES_PATH"); raw != "" {
		cfg.ProfileSyncPath = raw
	}
	if raw := os.Getenv("SYNC_INTERVAL"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			cfg.ProfileSyncInterval = value
		}
	}

	cfg.R2AccountID = os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	cfg.R2AccessKeyID = os.Getenv("R2_ACCESS_KEY_ID")
	cfg.R2AccessKeySecret = os.Getenv("R2_ACCESS_KEY_SECRET")
	cfg.R2Bucket = os.Getenv("R2_BUCKET_NAME")
	return cfg
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.ServiceToken == "" {
		errs = append(errs, errors.New("GAME_SERVICE_TOKEN is required"))
	}
	switch {
	case c.InternalToken == "":
		errs = append(errs, errors.New("INTERNAL_SERVICE_TOKEN is required"))
	case c.InternalToken == c.ServiceToken:
		errs = append(errs, errors.New("INTERNAL_SERVICE_TOKEN must differ from GAME_SERVICE_TOKEN"))
	}
	if c.HouseUserID == "" {
		errs = append(errs, errors.New("HOUSE_USER_ID is required"))
	}
	return errors.Join(errs...)
}

// ArchiveEnabled is true when every R2 setting is present.
func (c Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2Bucket != ""
}
