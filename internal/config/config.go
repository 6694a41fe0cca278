package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL     PostgreSQLConfig
	Server         ServerConfig
	Logging        LoggingConfig
	LLM            LLMConfig
	OpenAI         OpenAIConfig
	Gemini         GeminiConfig
	Valuation      ValuationConfig
	Recommendation RecommendationConfig
	Redis          RedisConfig
	Tracing        TracingConfig
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, preferred when set
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LLMConfig selects the language model backend and bounds each call.
type LLMConfig struct {
	Provider string // "openai" or "gemini"
	Timeout  time.Duration
}

// OpenAIConfig holds OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey              string
	APIBase             string
	ChatModel           string
	ChatTemperature     float64
	ChatTopP            float64
	ChatMaxTokens       int
	ChatExtraBody       string // JSON string for extra_body (e.g., {"chat_template_kwargs":{"thinking":true}})
	EmbeddingModel      string
	EmbeddingDimensions int
	Timeout             int
	Enabled             bool
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey  string
	Model   string
	Enabled bool
}

// ValuationConfig holds pricing oracle and valuation settings
type ValuationConfig struct {
	ModelPath       string
	CacheSize       int
	DefaultDiscount float64
	RemainingLease  int
	MaxInFlight     int
}

// RecommendationConfig holds recommendation adapter settings
type RecommendationConfig struct {
	ReferenceYear int // 0 means the current calendar year
	CacheTTL      time.Duration
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Enabled  bool
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool
	SampleRatio float64
	ServiceName string
}

// Load reads configuration from .env, an optional config.yaml and the environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("PG_HOST", "localhost")
	v.SetDefault("PG_PORT", 5432)
	v.SetDefault("PG_USER", "postgres")
	v.SetDefault("PG_PASSWORD", "")
	v.SetDefault("PG_DATABASE", "hdb")
	v.SetDefault("PG_SSLMODE", "disable")
	v.SetDefault("PG_MAX_CONNECTIONS", 25)
	v.SetDefault("PG_MAX_IDLE_CONNECTIONS", 5)

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("LLM_TIMEOUT", 60*time.Second)

	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_API_BASE", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_CHAT_TEMPERATURE", 0.2)
	v.SetDefault("OPENAI_CHAT_TOP_P", 0.0)
	v.SetDefault("OPENAI_CHAT_MAX_TOKENS", 1500)
	v.SetDefault("OPENAI_CHAT_EXTRA_BODY", "")
	v.SetDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small")
	v.SetDefault("OPENAI_EMBEDDING_DIMENSIONS", 1536)
	v.SetDefault("OPENAI_TIMEOUT", 90)

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")

	v.SetDefault("MODEL_PATH", "model/xgb_model.json")
	v.SetDefault("ORACLE_CACHE_SIZE", 1024)
	v.SetDefault("VALUATION_DEFAULT_DISCOUNT", 20.0)
	v.SetDefault("VALUATION_REMAINING_LEASE", 99)
	v.SetDefault("VALUATION_MAX_IN_FLIGHT", 4)

	v.SetDefault("REFERENCE_YEAR", 0)
	v.SetDefault("RECOMMENDATION_CACHE_TTL", 10*time.Minute)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SAMPLER_RATIO", 0.1)
	v.SetDefault("OTEL_SERVICE_NAME", "hdb-assistant")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                firstNonEmpty(v.GetString("DATABASE_URL"), v.GetString("POSTGRESQL_URI"), v.GetString("PG_DSN")),
			Host:               v.GetString("PG_HOST"),
			Port:               v.GetInt("PG_PORT"),
			User:               v.GetString("PG_USER"),
			Password:           v.GetString("PG_PASSWORD"),
			Database:           v.GetString("PG_DATABASE"),
			SSLMode:            v.GetString("PG_SSLMODE"),
			MaxConnections:     v.GetInt("PG_MAX_CONNECTIONS"),
			MaxIdleConnections: v.GetInt("PG_MAX_IDLE_CONNECTIONS"),
		},
		Server: ServerConfig{
			Port:           v.GetInt("SERVER_PORT"),
			Host:           v.GetString("SERVER_HOST"),
			GinMode:        v.GetString("GIN_MODE"),
			AllowedOrigins: v.GetString("CORS_ALLOWED_ORIGINS"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(v.GetString("LLM_PROVIDER")),
			Timeout:  v.GetDuration("LLM_TIMEOUT"),
		},
		OpenAI: OpenAIConfig{
			APIKey:              v.GetString("OPENAI_API_KEY"),
			APIBase:             strings.TrimRight(v.GetString("OPENAI_API_BASE"), "/"),
			ChatModel:           v.GetString("OPENAI_CHAT_MODEL"),
			ChatTemperature:     v.GetFloat64("OPENAI_CHAT_TEMPERATURE"),
			ChatTopP:            v.GetFloat64("OPENAI_CHAT_TOP_P"),
			ChatMaxTokens:       v.GetInt("OPENAI_CHAT_MAX_TOKENS"),
			ChatExtraBody:       v.GetString("OPENAI_CHAT_EXTRA_BODY"),
			EmbeddingModel:      v.GetString("OPENAI_EMBEDDING_MODEL"),
			EmbeddingDimensions: v.GetInt("OPENAI_EMBEDDING_DIMENSIONS"),
			Timeout:             v.GetInt("OPENAI_TIMEOUT"),
			Enabled:             v.GetString("OPENAI_API_KEY") != "",
		},
		Gemini: GeminiConfig{
			APIKey:  v.GetString("GEMINI_API_KEY"),
			Model:   v.GetString("GEMINI_MODEL"),
			Enabled: v.GetString("GEMINI_API_KEY") != "",
		},
		Valuation: ValuationConfig{
			ModelPath:       v.GetString("MODEL_PATH"),
			CacheSize:       v.GetInt("ORACLE_CACHE_SIZE"),
			DefaultDiscount: v.GetFloat64("VALUATION_DEFAULT_DISCOUNT"),
			RemainingLease:  v.GetInt("VALUATION_REMAINING_LEASE"),
			MaxInFlight:     v.GetInt("VALUATION_MAX_IN_FLIGHT"),
		},
		Recommendation: RecommendationConfig{
			ReferenceYear: v.GetInt("REFERENCE_YEAR"),
			CacheTTL:      v.GetDuration("RECOMMENDATION_CACHE_TTL"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Enabled:  v.GetString("REDIS_ADDR") != "",
		},
		Tracing: TracingConfig{
			Enabled:     v.GetBool("OTEL_ENABLED"),
			SampleRatio: v.GetFloat64("OTEL_SAMPLER_RATIO"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
		},
	}
}

func validate(cfg *Config) error {
	switch cfg.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or gemini, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if cfg.Valuation.MaxInFlight < 1 {
		return fmt.Errorf("VALUATION_MAX_IN_FLIGHT must be at least 1")
	}
	if cfg.Valuation.DefaultDiscount < 0 || cfg.Valuation.DefaultDiscount > 100 {
		return fmt.Errorf("VALUATION_DEFAULT_DISCOUNT must be between 0 and 100")
	}
	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// ReferenceYear resolves the year recommendation cutoffs are computed from.
func (c *Config) ReferenceYear(now time.Time) int {
	if c.Recommendation.ReferenceYear > 0 {
		return c.Recommendation.ReferenceYear
	}
	return now.Year()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
