// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/retention-agent/internal/store"
)

// DefaultMaxAutoResumes bounds driver advances per request.
const DefaultMaxAutoResumes = 25

// Config holds all application configuration.
type Config struct {
	Port                string
	FrontendURL         string
	CORSOrigins         []string
	MaxRequestBodyBytes int64
	ToolPolicyPath      string
	MaxAutoResumes      int
	Store               StoreConfig
	Engine              EngineConfig
	Log                 LogConfig
	Telemetry           TelemetryConfig
	RateLimit           RateLimitConfig
	Notify              NotifyConfig
	ConversationLog     ConversationLogConfig
}

// StoreConfig selects the thread store backend.
type StoreConfig struct {
	Driver        string
	DBPath        string
	DatabaseURL   string
	BoltPath      string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
}

// Engine modes.
const (
	EngineModeGRPC = "grpc"
	EngineModeDemo = "demo"
)

// EngineConfig controls the reasoning engine connection. Mode demo runs the
// built-in scripted engine and ignores Addr.
type EngineConfig struct {
	Mode           string
	Addr           string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	RetryAttempts  int
}

// LogConfig controls the process logger.
type LogConfig struct {
	Format string // json | text
	Level  string
}

// TelemetryConfig toggles metrics and tracing.
type TelemetryConfig struct {
	MetricsEnabled bool
	TracingEnabled bool
}

// RateLimitConfig controls per-client token buckets on /chat.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// NotifyConfig controls approval notifications.
type NotifyConfig struct {
	NATSURL string
	Subject string
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8000"),
		FrontendURL:         getEnv("FRONTEND_URL", ""),
		CORSOrigins:         getEnvList("CORS_ORIGINS"),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		ToolPolicyPath:      getEnv("TOOL_POLICY_PATH", ""),
		MaxAutoResumes:      getEnvInt("MAX_AUTO_RESUMES", DefaultMaxAutoResumes),
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("DB_DRIVER", store.DriverSQLite)),
			DBPath:        getEnv("DB_PATH", "./data/threads.db"),
			DatabaseURL:   getEnv("DATABASE_URL", ""),
			BoltPath:      getEnv("BOLT_PATH", "./data/threads.bolt"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisPrefix:   getEnv("REDIS_PREFIX", "retention:thread"),
		},
		Engine: EngineConfig{
			Mode:           strings.ToLower(getEnv("ENGINE_MODE", EngineModeGRPC)),
			Addr:           getEnv("ENGINE_ADDR", ""),
			ConnectTimeout: getEnvDuration("ENGINE_CONNECT_TIMEOUT", 5*time.Second),
			RequestTimeout: getEnvDuration("ENGINE_REQUEST_TIMEOUT", 60*time.Second),
			RetryAttempts:  getEnvInt("ENGINE_RETRY_ATTEMPTS", 3),
		},
		Log: LogConfig{
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
			Level:  getEnv("LOG_LEVEL", "info"),
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
			TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst: getEnvInt("RATE_LIMIT_BURST", 10),
		},
		Notify: NotifyConfig{
			NATSURL: getEnv("NATS_URL", ""),
			Subject: getEnv("NATS_SUBJECT", "retention.approvals"),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.MaxAutoResumes <= 0 {
		return fmt.Errorf("MAX_AUTO_RESUMES must be > 0")
	}
	switch c.Store.Driver {
	case store.DriverSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case store.DriverMemory:
	case store.DriverBolt:
		if c.Store.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH cannot be empty")
		}
	case store.DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case store.DriverRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when DB_DRIVER=redis")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Store.Driver)
	}
	switch c.Engine.Mode {
	case EngineModeGRPC:
		if c.Engine.Addr == "" {
			return fmt.Errorf("ENGINE_ADDR is required unless ENGINE_MODE=demo")
		}
	case EngineModeDemo:
	default:
		return fmt.Errorf("unknown ENGINE_MODE %q", c.Engine.Mode)
	}
	if c.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("ENGINE_REQUEST_TIMEOUT must be > 0")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be >= 0")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns CORS origins: CORS_ORIGINS when set, else FRONTEND_URL.
func (c *Config) AllowedOrigins() []string {
	if len(c.CORSOrigins) > 0 {
		return c.CORSOrigins
	}
	if c.FrontendURL != "" {
		return []string{c.FrontendURL}
	}
	return nil
}

// StoreOptions maps the store section onto store.Open options.
func (c StoreConfig) StoreOptions() store.Options {
	return store.Options{
		Driver:        c.Driver,
		SQLitePath:    c.DBPath,
		BoltPath:      c.BoltPath,
		DatabaseURL:   c.DatabaseURL,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisPrefix:   c.RedisPrefix,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
