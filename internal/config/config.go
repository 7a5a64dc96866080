package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	Port        string `env:"PORT,default=8082"`
	ServiceName string `env:"SERVICE_NAME,default=messaging-service"`
	Environment string `env:"ENVIRONMENT,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	StoreDriver  string        `env:"STORE_DRIVER,default=postgres"`
	DatabaseDSN  string        `env:"DB_DSN"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT,default=5s"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER,default=identity-service"`

	AMQPURL         string `env:"AMQP_URL"`
	AMQPExchange    string `env:"AMQP_EXCHANGE,default=logs"`
	AuditRoutingKey string `env:"AUDIT_ROUTING_KEY,default=audit.messaging"`

	MongoURI       string `env:"MONGO_URI"`
	MongoDatabase  string `env:"MONGO_DATABASE,default=messaging"`
	MediaBaseURL   string `env:"MEDIA_BASE_URL,default=/media"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES,default=26214400"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	DebugRoutes  bool   `env:"DEBUG_ROUTES,default=false"`

	TypingRate   float64 `env:"TYPING_RATE,default=2"`
	TypingBurst  int     `env:"TYPING_BURST,default=3"`
	WSSendBuffer int     `env:"WS_SEND_BUFFER,default=64"`

	PageDefaultLimit int `env:"PAGE_DEFAULT_LIMIT,default=20"`
	PageMaxLimit     int `env:"PAGE_MAX_LIMIT,default=100"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL,default=0s"`
}

// Load reads .env when present and decodes the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.PageDefaultLimit <= 0 || c.PageMaxLimit < c.PageDefaultLimit {
		errs = append(errs, errors.New("PAGE_DEFAULT_LIMIT must be positive and not above PAGE_MAX_LIMIT"))
	}
	if c.TypingRate <= 0 || c.TypingBurst <= 0 {
		errs = append(errs, errors.New("TYPING_RATE and TYPING_BURST must be positive"))
	}
	if c.WSSendBuffer <= 0 {
		errs = append(errs, errors.New("WS_SEND_BUFFER must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
