package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
	Admission AdmissionConfig
	Bus       BusConfig
	Upstream  UpstreamConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	ReadTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig toggles the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool
}

// TracingConfig controls OTLP span export.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// AdmissionConfig governs the time-driven admission jobs and seat capacity.
type AdmissionConfig struct {
	TermPollInterval   time.Duration
	FormExpiryInterval time.Duration
	LockTTL            time.Duration
	ClassCapacity      int
	PollersEnabled     bool
}

// BusConfig describes the Redis Streams topology used for payment events.
type BusConfig struct {
	PaymentSuccessStream string
	PaymentTimeoutStream string
	ClassResultStream    string
	Group                string
	Consumer             string
	BlockTimeout         time.Duration
	ClaimIdle            time.Duration
	Workers              int
	Retries              int
	ConsumersEnabled     bool
}

// UpstreamConfig configures synchronous lookups against sibling services.
type UpstreamConfig struct {
	IdentityBaseURL string
	Timeout         time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	ProfileCacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		MaxAge:         parseDuration(v.GetString("CORS_MAX_AGE"), 10*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("ENABLE_TRACING"),
		Endpoint:    v.GetString("OTLP_ENDPOINT"),
		Insecure:    v.GetBool("OTLP_INSECURE"),
		ServiceName: v.GetString("TRACING_SERVICE_NAME"),
	}

	cfg.Admission = AdmissionConfig{
		TermPollInterval:   parseDuration(v.GetString("TERM_POLL_INTERVAL"), 5*time.Minute),
		FormExpiryInterval: parseDuration(v.GetString("FORM_EXPIRY_INTERVAL"), 10*time.Minute),
		LockTTL:            parseDuration(v.GetString("POLLER_LOCK_TTL"), time.Minute),
		ClassCapacity:      v.GetInt("CLASS_CAPACITY"),
		PollersEnabled:     v.GetBool("ENABLE_POLLERS"),
	}
	if cfg.Admission.ClassCapacity <= 0 {
		cfg.Admission.ClassCapacity = 30
	}

	cfg.Bus = BusConfig{
		PaymentSuccessStream: v.GetString("BUS_PAYMENT_SUCCESS_STREAM"),
		PaymentTimeoutStream: v.GetString("BUS_PAYMENT_TIMEOUT_STREAM"),
		ClassResultStream:    v.GetString("BUS_CLASS_RESULT_STREAM"),
		Group:                v.GetString("BUS_GROUP"),
		Consumer:             v.GetString("BUS_CONSUMER"),
		BlockTimeout:         parseDuration(v.GetString("BUS_BLOCK_TIMEOUT"), 5*time.Second),
		ClaimIdle:            parseDuration(v.GetString("BUS_CLAIM_IDLE"), time.Minute),
		Workers:              v.GetInt("BUS_WORKERS"),
		Retries:              v.GetInt("BUS_RETRIES"),
		ConsumersEnabled:     v.GetBool("ENABLE_BUS_CONSUMERS"),
	}
	cfg.Redis.ReadTimeout = parseDuration(v.GetString("REDIS_READ_TIMEOUT"), cfg.Bus.BlockTimeout+2*time.Second)
	if cfg.Redis.ReadTimeout <= cfg.Bus.BlockTimeout {
		cfg.Redis.ReadTimeout = cfg.Bus.BlockTimeout + 2*time.Second
	}

	cfg.Upstream = UpstreamConfig{
		IdentityBaseURL: v.GetString("IDENTITY_BASE_URL"),
		Timeout:         parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 3*time.Second),
		MaxRetries:      v.GetInt("UPSTREAM_MAX_RETRIES"),
		InitialBackoff:  parseDuration(v.GetString("UPSTREAM_INITIAL_BACKOFF"), 200*time.Millisecond),
		MaxBackoff:      parseDuration(v.GetString("UPSTREAM_MAX_BACKOFF"), 2*time.Second),
		ProfileCacheTTL: parseDuration(v.GetString("PROFILE_CACHE_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_admission")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("CORS_MAX_AGE", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("ENABLE_TRACING", false)
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("OTLP_INSECURE", true)
	v.SetDefault("TRACING_SERVICE_NAME", "sma-admission-api")

	v.SetDefault("TERM_POLL_INTERVAL", "5m")
	v.SetDefault("FORM_EXPIRY_INTERVAL", "10m")
	v.SetDefault("POLLER_LOCK_TTL", "1m")
	v.SetDefault("CLASS_CAPACITY", 30)
	v.SetDefault("ENABLE_POLLERS", true)

	v.SetDefault("BUS_PAYMENT_SUCCESS_STREAM", "payments.success")
	v.SetDefault("BUS_PAYMENT_TIMEOUT_STREAM", "payments.timeout")
	v.SetDefault("BUS_CLASS_RESULT_STREAM", "classes.process_result")
	v.SetDefault("BUS_GROUP", "sma-admission")
	v.SetDefault("BUS_CONSUMER", "")
	v.SetDefault("BUS_BLOCK_TIMEOUT", "5s")
	v.SetDefault("BUS_CLAIM_IDLE", "1m")
	v.SetDefault("BUS_WORKERS", 4)
	v.SetDefault("BUS_RETRIES", 3)
	v.SetDefault("ENABLE_BUS_CONSUMERS", true)

	v.SetDefault("IDENTITY_BASE_URL", "http://localhost:8081")
	v.SetDefault("UPSTREAM_TIMEOUT", "3s")
	v.SetDefault("UPSTREAM_MAX_RETRIES", 3)
	v.SetDefault("UPSTREAM_INITIAL_BACKOFF", "200ms")
	v.SetDefault("UPSTREAM_MAX_BACKOFF", "2s")
	v.SetDefault("PROFILE_CACHE_TTL", "10m")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
