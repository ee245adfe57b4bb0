// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime configuration of the checkout server. Each field
// maps to one environment variable; durations use time.ParseDuration syntax.
type Config struct {
	Env         string `envconfig:"APP_ENV" default:"dev"`
	Port        string `envconfig:"APP_PORT" default:"8080"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"mysql"`

	DBUser    string `envconfig:"DB_USER"`
	DBPass    string `envconfig:"DB_PASS"`
	DBHost    string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort    string `envconfig:"DB_PORT" default:"3306"`
	DBName    string `envconfig:"DB_NAME" default:"ticketing"`
	DBMigrate bool   `envconfig:"DB_MIGRATE" default:"false"`
	// DemoSeed loads a sample session into the memory store.
	DemoSeed bool `envconfig:"DEMO_SEED" default:"false"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	HoldTTL      time.Duration `envconfig:"HOLD_TTL" default:"10m"`
	HoldMaxSeats int           `envconfig:"HOLD_MAX_SEATS" default:"10"`

	PaymentWindow            time.Duration `envconfig:"PAYMENT_WINDOW" default:"15m"`
	ServiceFeeBps            int64         `envconfig:"SERVICE_FEE_BPS" default:"0"`
	ServiceFeePerTicketCents int64         `envconfig:"SERVICE_FEE_PER_TICKET_CENTS" default:"0"`

	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"15s"`
	SweepBatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"200"`

	GatewayTimeout        time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
	GatewayMaxAttempts    int           `envconfig:"GATEWAY_MAX_ATTEMPTS" default:"4"`
	GatewayInitialBackoff time.Duration `envconfig:"GATEWAY_INITIAL_BACKOFF" default:"200ms"`
	GatewayMaxBackoff     time.Duration `envconfig:"GATEWAY_MAX_BACKOFF" default:"2s"`
	DefaultGatewayPix     string        `envconfig:"DEFAULT_GATEWAY_PIX" default:"sandbox"`
	DefaultGatewayCard    string        `envconfig:"DEFAULT_GATEWAY_CARD" default:"sandbox"`
	OmisePublicKey        string        `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey        string        `envconfig:"OMISE_SECRET_KEY"`

	RabbitMQURL    string `envconfig:"RABBITMQ_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"ticketing.events"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"ticketing-core"`
}

// Load reads the environment into a Config and checks the values that the
// struct tags cannot express.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET must not be empty")
	}
	switch c.StoreDriver {
	case "mysql":
		if c.DBUser == "" {
			return fmt.Errorf("config: DB_USER is required when STORE_DRIVER=mysql")
		}
	case "memory":
	default:
		return fmt.Errorf("config: STORE_DRIVER must be mysql or memory, got %q", c.StoreDriver)
	}
	if c.HoldTTL <= 0 || c.PaymentWindow <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("config: HOLD_TTL, PAYMENT_WINDOW and SWEEP_INTERVAL must be positive")
	}
	if c.HoldMaxSeats < 1 || c.SweepBatchSize < 1 || c.GatewayMaxAttempts < 1 {
		return fmt.Errorf("config: HOLD_MAX_SEATS, SWEEP_BATCH_SIZE and GATEWAY_MAX_ATTEMPTS must be at least 1")
	}
	if c.ServiceFeeBps < 0 || c.ServiceFeePerTicketCents < 0 {
		return fmt.Errorf("config: service fees cannot be negative")
	}
	if (c.OmisePublicKey == "") != (c.OmiseSecretKey == "") {
		return fmt.Errorf("config: OMISE_PUBLIC_KEY and OMISE_SECRET_KEY must be set together")
	}
	return nil
}
