package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mohamedkhairy/tick-averager/pkg/indicator"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Redis
	Redis RedisConfig

	// Tick source
	TickSource TickSourceConfig

	// Calculators
	Averages AveragesConfig

	// Services
	Pipeline  PipelineConfig
	Publisher PublisherConfig
	WSGateway WSGatewayConfig
	API       APIConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// TickSourceConfig holds tick source configuration
type TickSourceConfig struct {
	Provider      string // "mock", "redis" or "websocket"
	StreamName    string
	ConsumerGroup string
	ConsumerName  string
	MockInterval  time.Duration
	MockStart     string
	WebSocketURL  string
	MessageFormat string // "generic", "alpaca" or "polygon"
}

// AveragesConfig holds the calculator set
type AveragesConfig struct {
	SMAWindow   int
	EMAWindow   int
	EMAAlpha    string
	TWADuration time.Duration
	ConfigFile  string // optional YAML file; replaces the defaults when set
	Definitions []indicator.Definition
}

// PipelineConfig holds the tick pipeline configuration
type PipelineConfig struct {
	QueueSize      int
	EnqueueTimeout time.Duration
	ControlChannel string // Redis pub/sub channel for remote cancel/resume/reset ("" disables)
}

// PublisherConfig holds average publisher configuration
type PublisherConfig struct {
	Enabled      bool
	StreamName   string
	BatchSize    int
	BatchTimeout time.Duration
	Partitions   int
	MaxRetries   int
	RetryDelay   time.Duration
	LatestPrefix string
	LatestTTL    time.Duration
}

// WSGatewayConfig holds WebSocket gateway configuration
type WSGatewayConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxConnections int
	JWTSecret      string
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimitRPS    int // per client on tick ingestion; 0 disables
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		TickSource: TickSourceConfig{
			Provider:      getEnv("TICK_SOURCE_PROVIDER", "mock"),
			StreamName:    getEnv("TICK_SOURCE_STREAM", "ticks"),
			ConsumerGroup: getEnv("TICK_SOURCE_CONSUMER_GROUP", "tick-averager"),
			ConsumerName:  getEnv("TICK_SOURCE_CONSUMER_NAME", "averager-1"),
			MockInterval:  getEnvAsDuration("TICK_SOURCE_MOCK_INTERVAL", 1*time.Second),
			MockStart:     getEnv("TICK_SOURCE_MOCK_START_PRICE", "100"),
			WebSocketURL:  getEnv("TICK_SOURCE_WS_URL", ""),
			MessageFormat: getEnv("TICK_SOURCE_MESSAGE_FORMAT", "generic"),
		},
		Averages: AveragesConfig{
			SMAWindow:   getEnvAsInt("AVERAGES_SMA_WINDOW", 3),
			EMAWindow:   getEnvAsInt("AVERAGES_EMA_WINDOW", 3),
			EMAAlpha:    getEnv("AVERAGES_EMA_ALPHA", "0.75"),
			TWADuration: getEnvAsDuration("AVERAGES_TWA_DURATION", 5*time.Minute),
			ConfigFile:  getEnv("AVERAGES_CONFIG_FILE", ""),
		},
		Pipeline: PipelineConfig{
			QueueSize:      getEnvAsInt("PIPELINE_QUEUE_SIZE", 1024),
			EnqueueTimeout: getEnvAsDuration("PIPELINE_ENQUEUE_TIMEOUT", 100*time.Millisecond),
			ControlChannel: getEnv("PIPELINE_CONTROL_CHANNEL", ""),
		},
		Publisher: PublisherConfig{
			Enabled:      getEnvAsBool("PUBLISHER_ENABLED", false),
			StreamName:   getEnv("PUBLISHER_STREAM", "averages"),
			BatchSize:    getEnvAsInt("PUBLISHER_BATCH_SIZE", 100),
			BatchTimeout: getEnvAsDuration("PUBLISHER_BATCH_TIMEOUT", 100*time.Millisecond),
			Partitions:   getEnvAsInt("PUBLISHER_PARTITIONS", 0),
			MaxRetries:   getEnvAsInt("PUBLISHER_MAX_RETRIES", 3),
			RetryDelay:   getEnvAsDuration("PUBLISHER_RETRY_DELAY", 100*time.Millisecond),
			LatestPrefix: getEnv("PUBLISHER_LATEST_PREFIX", "average"),
			LatestTTL:    getEnvAsDuration("PUBLISHER_LATEST_TTL", 1*time.Hour),
		},
		WSGateway: WSGatewayConfig{
			ReadTimeout:    getEnvAsDuration("WS_GATEWAY_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("WS_GATEWAY_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:   getEnvAsDuration("WS_GATEWAY_PING_INTERVAL", 30*time.Second),
			MaxConnections: getEnvAsInt("WS_GATEWAY_MAX_CONNECTIONS", 1000),
			JWTSecret:      getEnv("WS_GATEWAY_JWT_SECRET", ""),
		},
		API: APIConfig{
			Port:            getEnvAsInt("API_PORT", 8090),
			ShutdownTimeout: getEnvAsDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsStringSlice("API_CORS_ORIGINS", []string{"*"}),
			RateLimitRPS:    getEnvAsInt("API_RATE_LIMIT_RPS", 0),
		},
	}

	defs, err := cfg.Averages.definitions()
	if err != nil {
		return nil, fmt.Errorf("failed to load calculator definitions: %w", err)
	}
	cfg.Averages.Definitions = defs

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// definitions resolves the calculator set from the YAML file or the env defaults
func (a AveragesConfig) definitions() ([]indicator.Definition, error) {
	if a.ConfigFile != "" {
		return LoadDefinitionsFile(a.ConfigFile)
	}

	alpha, err := decimal.NewFromString(a.EMAAlpha)
	if err != nil {
		return nil, fmt.Errorf("invalid AVERAGES_EMA_ALPHA %q: %w", a.EMAAlpha, err)
	}

	defs := []indicator.Definition{
		{Kind: indicator.KindSMA, Window: a.SMAWindow},
		{Kind: indicator.KindEMA, Window: a.EMAWindow, Alpha: alpha},
		{Kind: indicator.KindTWA, Duration: a.TWADuration},
	}
	for i := range defs {
		defs[i].Name = indicator.DefaultName(defs[i])
	}
	return defs, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.TickSource.Provider {
	case "mock":
		if _, err := decimal.NewFromString(c.TickSource.MockStart); err != nil {
			return fmt.Errorf("invalid TICK_SOURCE_MOCK_START_PRICE %q", c.TickSource.MockStart)
		}
	case "websocket":
		if c.TickSource.WebSocketURL == "" {
			return fmt.Errorf("TICK_SOURCE_WS_URL is required")
		}
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required")
		}
		if c.TickSource.StreamName == "" {
			return fmt.Errorf("TICK_SOURCE_STREAM is required")
		}
		if c.TickSource.ConsumerGroup == "" {
			return fmt.Errorf("TICK_SOURCE_CONSUMER_GROUP is required")
		}
	default:
		return fmt.Errorf("unsupported TICK_SOURCE_PROVIDER %q", c.TickSource.Provider)
	}

	if c.Publisher.Enabled {
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required")
		}
		if c.Publisher.StreamName == "" {
			return fmt.Errorf("PUBLISHER_STREAM is required")
		}
	}

	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("PIPELINE_QUEUE_SIZE must be positive")
	}
	if c.API.Port <= 0 {
		return fmt.Errorf("API_PORT must be positive")
	}

	return ValidateDefinitions(c.Averages.Definitions)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
