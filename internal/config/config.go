// Package config loads process configuration from environment variables,
// with a supplementary YAML file for the model-alias table. Shape and helper names mirror information-broker's config
// package: typed nested sub-structs, loaded once at startup by Load().
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every sub-config the process needs.
type Config struct {
	Database  DatabaseConfig
	App       AppConfig
	LLM       LLMConfig
	Discord   DiscordConfig
	Security  SecurityConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
	Rest      RestConfig
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	PoolSize int
}

// AppConfig holds general process configuration.
type AppConfig struct {
	ListenAddr   string
	LogLevel     string
	HTTPTimeout  time.Duration
	MaxWindow    time.Duration
}

// LLMConfig holds LLM-provider configuration.
type LLMConfig struct {
	Provider          string
	APIKey            string
	BaseURL           string
	DefaultModel      string
	Concurrency       int
	MinDispatchSpacing time.Duration
	RequestTimeout    time.Duration
	TotalBudget       time.Duration
	MaxRetries        int
	BackoffBase       time.Duration
	// AliasTablePath points at a YAML file mapping deprecated/alternate
	// model identifiers to the canonical identifier the cost table uses.
	AliasTablePath string
	// CostRatePerKTokens maps a model identifier to USD per 1000 tokens
	// (input+output combined, a simplification of provider-published
	// dual input/output rates adequate for estimation purposes).
	CostRatePerKTokens map[string]float64
}

// DiscordConfig holds chat-platform credentials.
type DiscordConfig struct {
	BotToken string
}

// SecurityConfig holds REST auth and CORS settings.
type SecurityConfig struct {
	JWTSigningSecret   string
	APIKeyTablePath    string
	CORSAllowedOrigins string
	CORSAllowedMethods string
	CORSAllowedHeaders string
}

// CacheConfig holds Cache tier sizing.
type CacheConfig struct {
	InMemoryCapacity int
	InMemoryTTL      time.Duration
	DurableTTL       time.Duration
	RedisAddr        string // empty => use the store-backed durable tier
}

// SchedulerConfig holds Scheduler tick/retry settings.
type SchedulerConfig struct {
	TickInterval        time.Duration
	DefaultMaxFailures  int
	DefaultRetryDelay   time.Duration
	ExecutionTimeout    time.Duration
}

// RestConfig holds RestAdapter rate-limit settings.
type RestConfig struct {
	RequestsPerMinute int
	RequestTimeout    time.Duration
}

// Load reads configuration from the environment, applying the same
// defaults-with-override shape as information-broker's config.Load.
func Load() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "summarybot"),
			PoolSize: getEnvInt("DB_POOL_SIZE", 5),
		},
		App: AppConfig{
			ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			HTTPTimeout: getEnvDuration("REST_TIMEOUT", 60*time.Second),
			MaxWindow:   getEnvDuration("MAX_SUMMARY_WINDOW", 7*24*time.Hour),
		},
		LLM: LLMConfig{
			Provider:           getEnv("LLM_PROVIDER", "openai"),
			APIKey:             getEnv("LLM_API_KEY", ""),
			BaseURL:            getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			DefaultModel:       getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			Concurrency:        getEnvInt("LLM_CONCURRENCY", 4),
			MinDispatchSpacing: getEnvDuration("LLM_MIN_DISPATCH_SPACING", 100*time.Millisecond),
			RequestTimeout:     getEnvDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),
			TotalBudget:        getEnvDuration("LLM_TOTAL_BUDGET", 180*time.Second),
			MaxRetries:         getEnvInt("LLM_MAX_RETRIES", 3),
			BackoffBase:        getEnvDuration("LLM_BACKOFF_BASE", 1*time.Second),
			AliasTablePath:     getEnv("LLM_ALIAS_TABLE_PATH", ""),
			CostRatePerKTokens: map[string]float64{
				"gpt-4o-mini": 0.00015,
				"gpt-4o":      0.0025,
				"unknown-model": 0.001,
			},
		},
		Discord: DiscordConfig{
			BotToken: getEnv("DISCORD_BOT_TOKEN", ""),
		},
		Security: SecurityConfig{
			JWTSigningSecret:   getEnv("JWT_SIGNING_SECRET", ""),
			APIKeyTablePath:    getEnv("API_KEY_TABLE_PATH", ""),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			CORSAllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS"),
			CORSAllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-API-Key"),
		},
		Cache: CacheConfig{
			InMemoryCapacity: getEnvInt("CACHE_IN_MEMORY_CAPACITY", 1000),
			InMemoryTTL:      getEnvDuration("CACHE_IN_MEMORY_TTL", 5*time.Minute),
			DurableTTL:       getEnvDuration("CACHE_DURABLE_TTL", 1*time.Hour),
			RedisAddr:        getEnv("CACHE_REDIS_ADDR", ""),
		},
		Scheduler: SchedulerConfig{
			TickInterval:       getEnvDuration("SCHEDULER_TICK_INTERVAL", 30*time.Second),
			DefaultMaxFailures: getEnvInt("SCHEDULER_DEFAULT_MAX_FAILURES", 3),
			DefaultRetryDelay:  getEnvDuration("SCHEDULER_DEFAULT_RETRY_DELAY", 5*time.Minute),
			ExecutionTimeout:   getEnvDuration("SCHEDULER_EXECUTION_TIMEOUT", 300*time.Second),
		},
		Rest: RestConfig{
			RequestsPerMinute: getEnvInt("REST_RATE_LIMIT_PER_MINUTE", 100),
			RequestTimeout:    getEnvDuration("REST_REQUEST_TIMEOUT", 60*time.Second),
		},
	}

	if cfg.LLM.AliasTablePath != "" {
		aliases, err := loadModelAliasFile(cfg.LLM.AliasTablePath)
		if err != nil {
			// Startup-fatal per the teacher's log.Fatalf-on-bad-config idiom:
			// an unreadable or malformed alias table makes Load panic.
			panic(fmt.Errorf("config: loading model alias table: %w", err))
		}
		for alias, canonical := range aliases {
			if _, known := cfg.LLM.CostRatePerKTokens[canonical]; !known {
				fmt.Fprintf(os.Stderr, "config: alias %q resolves to unknown model %q (no cost rate); will use unknown-model rate\n", alias, canonical)
			}
		}
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

// GetConnectionString builds a lib/pq connection string.
func (c *Config) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name)
}
