package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers       []string
	OutboxTopic        string
	PaymentEventsTopic string

	CatalogBackend string
	MongoURI       string
	MongoDBName    string

	PaymentProvider string
	StripeSecretKey string
	Currency        string

	JWTSecret string
	LogLevel  string

	RequestTimeout   time.Duration
	ShutdownTimeout  time.Duration
	CatalogTimeout   time.Duration
	PaymentTimeout   time.Duration
	AnonymousCartTTL time.Duration
	AmountTolerance  int64
	SweepInterval    time.Duration
	OutboxInterval   time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, is loaded first and never overrides variables that
// are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "50060"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "storefront"),
		MigrationsPath:     getEnv("MIGRATIONS_PATH", "internal/repository/migrations"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OutboxTopic:        getEnv("OUTBOX_TOPIC", "draft-orders"),
		PaymentEventsTopic: getEnv("PAYMENT_EVENTS_TOPIC", "payment-events"),
		CatalogBackend:     strings.ToLower(getEnv("CATALOG_BACKEND", "postgres")),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:        getEnv("MONGO_DB_NAME", "catalog"),
		PaymentProvider:    strings.ToLower(getEnv("PAYMENT_PROVIDER", "fake")),
		StripeSecretKey:    getEnv("STRIPE_SECRET_KEY", ""),
		Currency:           strings.ToLower(getEnv("CURRENCY", "usd")),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	var err error
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"REQUEST_TIMEOUT", 30 * time.Second, &cfg.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
		{"CATALOG_TIMEOUT", 2 * time.Second, &cfg.CatalogTimeout},
		{"PAYMENT_TIMEOUT", 10 * time.Second, &cfg.PaymentTimeout},
		{"ANONYMOUS_CART_TTL", 7 * 24 * time.Hour, &cfg.AnonymousCartTTL},
		{"SWEEP_INTERVAL", 10 * time.Minute, &cfg.SweepInterval},
		{"OUTBOX_INTERVAL", 2 * time.Second, &cfg.OutboxInterval},
	}
	for _, d := range durations {
		if *d.dest, err = getEnvDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.AmountTolerance, err = getEnvInt64("AMOUNT_TOLERANCE", 1); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CatalogBackend {
	case "postgres", "mongo":
	default:
		return fmt.Errorf("CATALOG_BACKEND must be postgres or mongo, got %q", c.CatalogBackend)
	}
	switch c.PaymentProvider {
	case "fake":
	case "stripe":
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be stripe or fake, got %q", c.PaymentProvider)
	}
	if c.AmountTolerance < 0 {
		return fmt.Errorf("AMOUNT_TOLERANCE must not be negative")
	}
	positive := []struct {
		key string
		val time.Duration
	}{
		{"REQUEST_TIMEOUT", c.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
		{"CATALOG_TIMEOUT", c.CatalogTimeout},
		{"PAYMENT_TIMEOUT", c.PaymentTimeout},
		{"ANONYMOUS_CART_TTL", c.AnonymousCartTTL},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"OUTBOX_INTERVAL", c.OutboxInterval},
	}
	for _, d := range positive {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.val)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
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
