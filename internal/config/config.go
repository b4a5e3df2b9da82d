package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	SessionBackendGitHub = "github"
	SessionBackendMongo  = "mongo"
)

type Config struct {
	Env  string
	Port string

	GitHubToken         string
	GitHubWebhookSecret string

	StorageOwner  string
	StorageRepo   string
	StorageBranch string
	PluginRepo    string
	EncryptionKey string

	TelegramBotToken string
	TelegramAppID    int
	TelegramAppHash  string
	TelegramPhone    string
	DMRatePerSecond  float64

	SessionBackend string
	MongoDBURI     string
	DatabaseName   string
	RedisURL       string
}

// Load reads the environment (and .env when present). Missing required keys
// are reported together in one error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	required := []string{
		"GITHUB_TOKEN",
		"GITHUB_WEBHOOK_SECRET",
		"STORAGE_OWNER",
		"STORAGE_REPO",
		"ENCRYPTION_KEY",
		"TELEGRAM_BOT_TOKEN",
	}

	var missing []string
	for _, key := range required {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	cfg := &Config{
		Env:                 getEnv("ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		GitHubToken:         os.Getenv("GITHUB_TOKEN"),
		GitHubWebhookSecret: os.Getenv("GITHUB_WEBHOOK_SECRET"),
		StorageOwner:        os.Getenv("STORAGE_OWNER"),
		StorageRepo:         os.Getenv("STORAGE_REPO"),
		StorageBranch:       getEnv("STORAGE_BRANCH", "__storage__"),
		PluginRepo:          getEnv("PLUGIN_REPO", "telegram-bridge"),
		EncryptionKey:       os.Getenv("ENCRYPTION_KEY"),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAppHash:     os.Getenv("TELEGRAM_APP_HASH"),
		TelegramPhone:       os.Getenv("TELEGRAM_PHONE"),
		SessionBackend:      strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendGitHub)),
		MongoDBURI:          os.Getenv("MONGODB_URI"),
		DatabaseName:        getEnv("DATABASE_NAME", "telegram_bridge"),
		RedisURL:            os.Getenv("REDIS_URL"),
	}

	if v := os.Getenv("TELEGRAM_APP_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_APP_ID: %w", err)
		}
		cfg.TelegramAppID = id
	}

	rate, err := strconv.ParseFloat(getEnv("DM_RATE_PER_SECOND", "20"), 64)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("DM_RATE_PER_SECOND must be a positive number")
	}
	cfg.DMRatePerSecond = rate

	switch cfg.SessionBackend {
	case SessionBackendGitHub:
	case SessionBackendMongo:
		if cfg.MongoDBURI == "" {
			missing = append(missing, "MONGODB_URI")
		}
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// HasMTProto reports whether the workroom protocol client can be started.
func (c *Config) HasMTProto() bool {
	return c.TelegramAppID != 0 && c.TelegramAppHash != ""
}

// Secrets lists values that must never leave the process in comments or logs.
func (c *Config) Secrets() []string {
	return []string{
		c.GitHubToken,
		c.GitHubWebhookSecret,
		c.EncryptionKey,
		c.TelegramBotToken,
		c.TelegramAppHash,
		c.MongoDBURI,
		c.RedisURL,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
