package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Providers ProvidersConfig
	Scan      ScanConfig
	Patterns  PatternsConfig
	Cache     CacheConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// RedisConfig holds Redis connection values. Redis is optional; when enabled it
// backs the request quota shared by all replicas.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	// QuotaPerWindow is the number of provider calls allowed per QuotaWindow
	// across replicas. Zero disables the quota.
	QuotaPerWindow int
	QuotaWindow    time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level     string
	Env       string
	SentryDSN string
}

// AuthConfig defines the admin token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// ProviderConfig is the connection configuration of one ticket provider.
type ProviderConfig struct {
	Enabled           bool
	BaseURL           string
	APIBaseURL        string
	Token             string
	Email             string
	CacheTTL          time.Duration
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// ProvidersConfig groups the provider configurations.
type ProvidersConfig struct {
	Jira   ProviderConfig
	GitHub ProviderConfig
	Slack  ProviderConfig
}

// ScanConfig bounds Slack batch scans.
type ScanConfig struct {
	MaxChannels           int
	MaxConcurrentChannels int
	BatchSize             int
	ThreadReplies         int
	MessagesPerChannel    int
}

// PatternsConfig points at an optional YAML overlay for the classification tables.
type PatternsConfig struct {
	File string
}

// CacheConfig controls the background sweep of expired cache entries. Expired
// entries are never served either way; the sweep only bounds memory.
type CacheConfig struct {
	SweepInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-aggregator"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Redis: RedisConfig{
			Enabled:        getEnvAsBool("REDIS_ENABLED", false),
			Addr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			QuotaPerWindow: getEnvAsInt("PROVIDER_QUOTA_PER_WINDOW", 0),
			QuotaWindow:    getEnvAsDuration("PROVIDER_QUOTA_WINDOW", time.Minute),
		},
		Logger: LoggerConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Env:       getEnv("APP_ENV", "development"),
			SentryDSN: os.Getenv("SENTRY_DSN"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Providers: ProvidersConfig{
			Jira:   loadProvider("JIRA", 5*time.Minute, 10),
			GitHub: loadProvider("GITHUB", 5*time.Minute, 10),
			Slack:  loadProvider("SLACK", 10*time.Minute, 1),
		},
		Scan: ScanConfig{
			MaxChannels:           getEnvAsInt("SLACK_SCAN_MAX_CHANNELS", 20),
			MaxConcurrentChannels: getEnvAsInt("SLACK_SCAN_MAX_CONCURRENT_CHANNELS", 3),
			BatchSize:             getEnvAsInt("SLACK_SCAN_BATCH_SIZE", 20),
			ThreadReplies:         getEnvAsInt("SLACK_SCAN_THREAD_REPLIES", 10),
			MessagesPerChannel:    getEnvAsInt("SLACK_SCAN_MESSAGES_PER_CHANNEL", 100),
		},
		Patterns: PatternsConfig{
			File: os.Getenv("PATTERNS_FILE"),
		},
		Cache: CacheConfig{
			SweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", time.Minute),
		},
	}

	return cfg, nil
}

// loadProvider reads PREFIX_* variables. A provider is enabled by default when
// it has a token.
func loadProvider(prefix string, ttl time.Duration, rps float64) ProviderConfig {
	token := os.Getenv(prefix + "_TOKEN")
	return ProviderConfig{
		Enabled:           getEnvAsBool(prefix+"_ENABLED", token != ""),
		BaseURL:           os.Getenv(prefix + "_BASE_URL"),
		APIBaseURL:        os.Getenv(prefix + "_API_BASE_URL"),
		Token:             token,
		Email:             os.Getenv(prefix + "_EMAIL"),
		CacheTTL:          getEnvAsDuration(prefix+"_CACHE_TTL", ttl),
		Timeout:           getEnvAsDuration(prefix+"_TIMEOUT", 15*time.Second),
		RequestsPerSecond: getEnvAsFloat(prefix+"_REQUESTS_PER_SECOND", rps),
		Burst:             getEnvAsInt(prefix+"_BURST", 5),
	}
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued admin tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsDuration accepts Go durations ("90s", "5m") or plain seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
