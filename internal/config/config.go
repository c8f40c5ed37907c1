package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by DOC_BACKEND and EVENTS_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"

	EventsLog   = "log"
	EventsKafka = "kafka"
	EventsSQS   = "sqs"
	EventsNone  = "none"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DocBackend      string        `mapstructure:"DOC_BACKEND"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema        string        `mapstructure:"DB_SCHEMA"`
	MongoURI        string        `mapstructure:"MONGODB_URI"`
	MongoDatabase   string        `mapstructure:"MONGODB_DATABASE"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL    time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	EventsBackend   string        `mapstructure:"EVENTS_BACKEND"`
	KafkaBrokers    []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic      string        `mapstructure:"KAFKA_TOPIC"`
	SQSQueueURL     string        `mapstructure:"SQS_QUEUE_URL"`
	LoadMaxAttempts int           `mapstructure:"LOAD_MAX_ATTEMPTS"`
	LoadRetryDelay  time.Duration `mapstructure:"LOAD_RETRY_DELAY"`
	HighLoad        int           `mapstructure:"HIGH_LOAD_THRESHOLD"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit       string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DOC_BACKEND", "DATABASE_URL", "DB_MAX_CONNS",
	"DB_MIN_CONNS", "DB_SCHEMA", "MONGODB_URI", "MONGODB_DATABASE",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_TOKEN_TTL", "CORS_ORIGINS",
	"EVENTS_BACKEND", "KAFKA_BROKERS", "KAFKA_TOPIC", "SQS_QUEUE_URL",
	"LOAD_MAX_ATTEMPTS", "LOAD_RETRY_DELAY", "HIGH_LOAD_THRESHOLD",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DOC_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("MONGODB_DATABASE", "rehab")
	v.SetDefault("AUTH_ISSUER", "rehab")
	v.SetDefault("AUTH_TOKEN_TTL", time.Hour)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EVENTS_BACKEND", EventsLog)
	v.SetDefault("KAFKA_TOPIC", "rehab.events")
	v.SetDefault("LOAD_MAX_ATTEMPTS", 3)
	v.SetDefault("LOAD_RETRY_DELAY", time.Second)
	v.SetDefault("HIGH_LOAD_THRESHOLD", 5)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.DocBackend = strings.ToLower(cfg.DocBackend)
	cfg.EventsBackend = strings.ToLower(cfg.EventsBackend)

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the selected backends have what they need. Outside
// development a signing key is mandatory so tokens cannot be forged.
func (c *Config) Validate() error {
	switch c.DocBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DOC_BACKEND is %q", BackendPostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when DOC_BACKEND is %q", BackendMongo)
		}
	case BackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("DOC_BACKEND %q is not allowed in production", BackendMemory)
		}
	default:
		return fmt.Errorf("DOC_BACKEND must be %q, %q or %q, got %q", BackendPostgres, BackendMongo, BackendMemory, c.DocBackend)
	}

	switch c.EventsBackend {
	case EventsLog, EventsNone:
	case EventsKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when EVENTS_BACKEND is %q", EventsKafka)
		}
	case EventsSQS:
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when EVENTS_BACKEND is %q", EventsSQS)
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be one of log, kafka, sqs, none; got %q", c.EventsBackend)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set outside development (ENV=%q)", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters")
	}
	if c.LoadMaxAttempts < 1 {
		return fmt.Errorf("LOAD_MAX_ATTEMPTS must be at least 1, got %d", c.LoadMaxAttempts)
	}
	if c.HighLoad < 1 {
		return fmt.Errorf("HIGH_LOAD_THRESHOLD must be at least 1, got %d", c.HighLoad)
	}
	return nil
}
