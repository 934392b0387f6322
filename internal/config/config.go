// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"creator_ingest/internal/fetcher"
)

// DotEnvFiles are loaded, when present, before reading the environment.
// Variables already set in the environment win.
var DotEnvFiles = []string{".env.local", ".env"}

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	HTTPAddr     string
	CronSecret   string

	YouTubeAPIKey      string
	YouTubeAccessToken string
	ApifyToken         string
	ApifyTwitterActor  string
	ApifyThreadsActor  string
	BrightDataAPIKey   string
	BrightDataLinkedIn string

	AnthropicAPIKey  string
	SummaryModel     string
	SummaryLimit     int
	SummaryBatchSize int

	RedisAddr     string
	RedisPassword string

	TelegramBotToken     string
	TelegramReportChatID int64
	AllowedUsers         []int64

	RefreshInterval    time.Duration
	LinkedInInterval   time.Duration
	LinkedInBatchSize  int
	LinkedInBatchDelay time.Duration
}

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	if err := LoadDotEnv(DotEnvFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabasePath: envOr("DATABASE_PATH", "./data/ingest.db"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		CronSecret:   os.Getenv("CRON_SECRET"),

		YouTubeAPIKey:      os.Getenv("YOUTUBE_API_KEY"),
		YouTubeAccessToken: os.Getenv("YOUTUBE_ACCESS_TOKEN"),
		ApifyToken:         os.Getenv("APIFY_API_TOKEN"),
		ApifyTwitterActor:  os.Getenv("APIFY_TWITTER_ACTOR"),
		ApifyThreadsActor:  os.Getenv("APIFY_THREADS_ACTOR"),
		BrightDataAPIKey:   os.Getenv("BRIGHTDATA_API_KEY"),
		BrightDataLinkedIn: os.Getenv("BRIGHTDATA_LINKEDIN_DATASET"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		SummaryModel:    os.Getenv("SUMMARY_MODEL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.RefreshInterval, err = durationEnv("REFRESH_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.LinkedInInterval, err = durationEnv("LINKEDIN_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LinkedInBatchDelay, err = durationEnv("LINKEDIN_BATCH_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.LinkedInBatchSize, err = positiveIntEnv("LINKEDIN_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.SummaryLimit, err = positiveIntEnv("SUMMARY_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.SummaryBatchSize, err = positiveIntEnv("SUMMARY_BATCH_SIZE", 5); err != nil {
		return nil, err
	}

	if raw := os.Getenv("TELEGRAM_REPORT_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_REPORT_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramReportChatID = id
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	return cfg, nil
}

// LoadDotEnv loads the given files in order, skipping missing ones.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Credentials returns the fetcher credentials. Empty values disable the
// matching platform.
func (c *Config) Credentials() fetcher.Credentials {
	return fetcher.Credentials{
		YouTubeAPIKey:      c.YouTubeAPIKey,
		YouTubeAccessToken: c.YouTubeAccessToken,
		ApifyToken:         c.ApifyToken,
		ApifyTwitterActor:  c.ApifyTwitterActor,
		ApifyThreadsActor:  c.ApifyThreadsActor,
		BrightDataAPIKey:   c.BrightDataAPIKey,
		BrightDataLinkedIn: c.BrightDataLinkedIn,
	}
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, raw)
	}
	return d, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}
