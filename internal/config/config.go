package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, read from the environment after an
// optional .env file has been loaded.
type Config struct {
	// DB
	DatabaseURL         string `envconfig:"DATABASE_URL" required:"true"`
	SerializableRetries int    `envconfig:"SERIALIZABLE_RETRIES" default:"3"`
	// HTTP
	ServerPort     string `envconfig:"SERVER_PORT" default:"8080"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Redis (optional): idempotency keys and completion locks
	RedisURL       string        `envconfig:"REDIS_URL"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	LockTTL        time.Duration `envconfig:"LOCK_TTL" default:"10s"`
	// RabbitMQ (optional): domain events
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"booking.events"`
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if c.SerializableRetries < 0 {
		return Config{}, fmt.Errorf("SERIALIZABLE_RETRIES must not be negative")
	}
	return c, nil
}

// Origins splits ALLOWED_ORIGINS into trimmed, non-empty entries.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
