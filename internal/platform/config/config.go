package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures process level configuration.
type Server struct {
	Addr          string        `env:"ONBOARDING_ADDR" envDefault:":8080"`
	Environment   string        `env:"ONBOARDING_ENV" envDefault:"development"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"onboarding"`
	JWTAudience   string        `env:"JWT_AUDIENCE" envDefault:"onboarding-api"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	Journey  JourneyConfig
	Upload   UploadConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
}

// JourneyConfig holds onboarding policy switches.
type JourneyConfig struct {
	// AllowResubmission lets a rejected journey start a new draft cycle.
	AllowResubmission bool          `env:"JOURNEY_ALLOW_RESUBMISSION" envDefault:"false"`
	MaxWriteAttempts  uint64        `env:"JOURNEY_MAX_WRITE_ATTEMPTS" envDefault:"4"`
	StreamHeartbeat   time.Duration `env:"JOURNEY_STREAM_HEARTBEAT" envDefault:"25s"`
	DirectorySyncURL  string        `env:"JOURNEY_DIRECTORY_SYNC_URL"`
}

// UploadConfig configures signed document upload locations.
type UploadConfig struct {
	BaseURL    string        `env:"UPLOAD_BASE_URL" envDefault:"http://localhost:8080/v1/uploads"`
	SigningKey string        `env:"UPLOAD_SIGNING_KEY" envDefault:"dev-upload-key-change-in-production"`
	TTL        time.Duration `env:"UPLOAD_URL_TTL" envDefault:"15m"`
}

// PostgresConfig selects the durable journey store. Empty DSN keeps journeys in memory.
type PostgresConfig struct {
	DSN          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig enables cross-instance realtime fan-out. Empty URL uses the in-process hub.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	Channel      string        `env:"REDIS_JOURNEY_CHANNEL" envDefault:"onboarding:journeys"`
}

// KafkaConfig wires decision intake and journey event publishing. No brokers disables both.
type KafkaConfig struct {
	Brokers        []string `env:"KAFKA_BROKERS" envSeparator:","`
	ClientID       string   `env:"KAFKA_CLIENT_ID" envDefault:"onboarding"`
	ConsumerGroup  string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"onboarding-decisions"`
	DecisionsTopic string   `env:"KAFKA_DECISIONS_TOPIC" envDefault:"journey.decisions"`
	EventsTopic    string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"journey.events"`
	AuditTopic     string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"journey.audit"`
}

// TracingConfig exports spans over OTLP/HTTP. Empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"onboarding"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLE_RATIO" envDefault:"1"`
}

// FromEnv builds the Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.IsProduction() && cfg.JWTSigningKey == "dev-secret-key-change-in-production" {
		return Server{}, fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	return cfg, nil
}

func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

func (t TracingConfig) Enabled() bool {
	return t.Endpoint != ""
}
