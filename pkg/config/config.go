package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process-level configuration.
// ⭐ SSOT: environment variables are read only here. Scoring and polling policy
// lives in internal/intentconfig (YAML).
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// StoreBackend selects the signal store: memory or postgres
	StoreBackend string

	// RateLimitBackend selects the token bucket implementation: memory or redis
	RateLimitBackend string

	// PolicyPath points at the intent policy YAML. Empty uses the embedded default.
	PolicyPath string

	// ScoreCacheTTL bounds how long a cached ScoreResult is served
	ScoreCacheTTL time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Sources  SourcesConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// SourcesConfig holds credentials and endpoints of the external signal sources.
type SourcesConfig struct {
	GitHub     GitHubConfig
	Reddit     RedditConfig
	NewsAPI    NewsAPIConfig
	Greenhouse GreenhouseConfig
	TechStack  TechStackConfig
}

// GitHubConfig holds GitHub REST API settings
type GitHubConfig struct {
	Token   string
	BaseURL string
}

// RedditConfig holds Reddit public JSON settings
type RedditConfig struct {
	UserAgent string
	BaseURL   string
}

// NewsAPIConfig holds NewsAPI settings
type NewsAPIConfig struct {
	APIKey  string
	BaseURL string
}

// GreenhouseConfig holds Greenhouse job board API settings
type GreenhouseConfig struct {
	BaseURL string
}

// TechStackConfig holds settings for homepage technology detection
type TechStackConfig struct {
	UserAgent string
	// Scheme is used to build the homepage URL from a company domain
	Scheme string
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only caller of os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		StoreBackend:     getEnv("STORE_BACKEND", "memory"),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),
		PolicyPath:       getEnv("INTENT_POLICY_PATH", ""),
		ScoreCacheTTL:    getEnvAsDuration("SCORE_CACHE_TTL", "5m"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Sources: SourcesConfig{
			GitHub: GitHubConfig{
				Token:   getEnv("GITHUB_TOKEN", ""),
				BaseURL: getEnv("GITHUB_BASE_URL", "https://api.github.com"),
			},
			Reddit: RedditConfig{
				UserAgent: getEnv("REDDIT_USER_AGENT", "intent-collector/1.0"),
				BaseURL:   getEnv("REDDIT_BASE_URL", "https://www.reddit.com"),
			},
			NewsAPI: NewsAPIConfig{
				APIKey:  getEnv("NEWSAPI_KEY", ""),
				BaseURL: getEnv("NEWSAPI_BASE_URL", "https://newsapi.org"),
			},
			Greenhouse: GreenhouseConfig{
				BaseURL: getEnv("GREENHOUSE_BASE_URL", "https://boards-api.greenhouse.io"),
			},
			TechStack: TechStackConfig{
				UserAgent: getEnv("TECHSTACK_USER_AGENT", "Mozilla/5.0 (compatible; intent-collector/1.0)"),
				Scheme:    getEnv("TECHSTACK_SCHEME", "https"),
			},
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// UsePostgres reports whether signals and companies are persisted in PostgreSQL.
func (c *Config) UsePostgres() bool {
	return c.StoreBackend == "postgres"
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.StoreBackend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: memory, postgres")
	}

	switch c.RateLimitBackend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("REDIS_ENABLED must be true when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be one of: memory, redis")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
