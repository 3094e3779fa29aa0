package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Services ServicesConfig
	Secrets  SecretsConfig
	Logger   LoggerConfig
	Purchase PurchaseConfig
}

// ServerConfig holds HTTP, gRPC health and metrics listener configuration
type ServerConfig struct {
	Host            string
	HTTPPort        int
	GRPCPort        int
	MetricsPort     int
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL           string // takes precedence over the individual fields
	Host          string
	User          string
	Password      string
	Database      string
	SSLMode       string
	Port          int
	MaxConns      int32
	MinConns      int32
	PurgeInterval time.Duration
	SiteCacheTTL  time.Duration
}

// RedisConfig holds the idempotency store configuration
type RedisConfig struct {
	Addr      string
	Password  string
	KeyPrefix string
	DB        int
}

// KafkaConfig holds the analytics event publisher configuration
type KafkaConfig struct {
	Topic      string
	Brokers    []string
	BufferSize int
	Enabled    bool
}

// ServicesConfig holds the base URLs of the HTTP collaborators
type ServicesConfig struct {
	TransactionURL string
	CascadeURL     string
	BinRoutingURL  string
	FraudURL       string
	BlacklistURL   string
	APIKey         string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ReadAttempts   int
}

// SecretsConfig selects the secret backend used for postback signing keys
type SecretsConfig struct {
	Backend            string // local, aws or vault
	LocalPath          string
	AWSRegion          string
	AWSEndpoint        string
	VaultAddress       string
	VaultAuthMethod    string
	VaultToken         string
	VaultRoleID        string
	VaultSecretID      string
	VaultMountPath     string
	PostbackPathFormat string // formatted with the site id
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// PurchaseConfig holds every behavioral toggle of the purchase flow
type PurchaseConfig struct {
	// DisallowedBrandSites maps a card brand to the sites that refuse it
	DisallowedBrandSites  map[string][]string
	FraudPaymentTypes     []string
	ThirdPartyBillers     []string
	IdempotencyTTL        time.Duration
	PostbackWorkers       int
	EventIngestionEnabled bool
	PostbacksEnabled      bool
}

// BrandPolicy returns the disallowed-brand table as a domain policy
func (c PurchaseConfig) BrandPolicy() domain.BrandPolicy {
	return domain.NewBrandPolicy(c.DisallowedBrandSites)
}

// PaymentTypes returns the payment types screened by fraud advice
func (c PurchaseConfig) PaymentTypes() []domain.PaymentType {
	types := make([]domain.PaymentType, 0, len(c.FraudPaymentTypes))
	for _, t := range c.FraudPaymentTypes {
		types = append(types, domain.PaymentType(strings.ToLower(t)))
	}
	return types
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	brands, err := parseBrandSites(getEnv("DISALLOWED_BRAND_SITES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			HTTPPort:        getEnvAsInt("HTTP_PORT", 8080),
			GRPCPort:        getEnvAsInt("GRPC_PORT", 50051),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 10),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:           getEnv("DATABASE_URL", ""),
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", ""),
			Database:      getEnv("DB_NAME", "purchase_service"),
			SSLMode:       getEnv("DB_SSL_MODE", "disable"),
			MaxConns:      int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:      int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			PurgeInterval: getEnvAsDuration("SESSION_PURGE_INTERVAL", 15*time.Minute),
			SiteCacheTTL:  getEnvAsDuration("SITE_CACHE_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Topic:      getEnv("KAFKA_TOPIC", "purchase-events"),
			Brokers:    getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
			BufferSize: getEnvAsInt("KAFKA_BUFFER_SIZE", 1024),
			Enabled:    getEnvAsBool("KAFKA_ENABLED", true),
		},
		Services: ServicesConfig{
			TransactionURL: getEnv("TRANSACTION_SERVICE_URL", ""),
			CascadeURL:     getEnv("CASCADE_SERVICE_URL", ""),
			BinRoutingURL:  getEnv("BIN_ROUTING_SERVICE_URL", ""),
			FraudURL:       getEnv("FRAUD_SERVICE_URL", ""),
			BlacklistURL:   getEnv("BLACKLIST_SERVICE_URL", ""),
			APIKey:         getEnv("SERVICES_API_KEY", ""),
			ReadTimeout:    getEnvAsDuration("SERVICES_READ_TIMEOUT", 5*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVICES_WRITE_TIMEOUT", 30*time.Second),
			ReadAttempts:   getEnvAsInt("SERVICES_READ_ATTEMPTS", 3),
		},
		Secrets: SecretsConfig{
			Backend:            getEnv("SECRETS_BACKEND", "local"),
			LocalPath:          getEnv("SECRETS_LOCAL_PATH", "./secrets"),
			AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
			AWSEndpoint:        getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddress:       getEnv("VAULT_ADDR", "http://localhost:8200"),
			VaultAuthMethod:    getEnv("VAULT_AUTH_METHOD", "token"),
			VaultToken:         getEnv("VAULT_TOKEN", ""),
			VaultRoleID:        getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:      getEnv("VAULT_SECRET_ID", ""),
			VaultMountPath:     getEnv("VAULT_MOUNT_PATH", "secret"),
			PostbackPathFormat: getEnv("POSTBACK_SECRET_PATH", "purchase-service/sites/%s/postback"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("ENVIRONMENT", "development") != "production",
		},
		Purchase: PurchaseConfig{
			DisallowedBrandSites:  brands,
			FraudPaymentTypes:     getEnvAsList("FRAUD_PAYMENT_TYPES", []string{"cc"}),
			ThirdPartyBillers:     getEnvAsList("THIRD_PARTY_BILLERS", nil),
			IdempotencyTTL:        getEnvAsDuration("IDEMPOTENCY_TTL", 2*time.Minute),
			PostbackWorkers:       getEnvAsInt("POSTBACK_WORKERS", 4),
			EventIngestionEnabled: getEnvAsBool("EVENT_INGESTION_ENABLED", true),
			PostbacksEnabled:      getEnvAsBool("POSTBACKS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Password == "" {
		return fmt.Errorf("DATABASE_URL or DB_PASSWORD is required")
	}

	required := []struct{ key, value string }{
		{"TRANSACTION_SERVICE_URL", c.Services.TransactionURL},
		{"CASCADE_SERVICE_URL", c.Services.CascadeURL},
		{"BIN_ROUTING_SERVICE_URL", c.Services.BinRoutingURL},
		{"FRAUD_SERVICE_URL", c.Services.FraudURL},
		{"BLACKLIST_SERVICE_URL", c.Services.BlacklistURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}

	switch c.Secrets.Backend {
	case "local", "aws", "vault":
	default:
		return fmt.Errorf("SECRETS_BACKEND must be local, aws or vault, got %q", c.Secrets.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.Purchase.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}
	return nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// parseBrandSites parses "visa:site-1|site-2;amex:site-3"
func parseBrandSites(raw string) (map[string][]string, error) {
	result := make(map[string][]string)
	if strings.TrimSpace(raw) == "" {
		return result, nil
	}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		brand, sites, ok := strings.Cut(entry, ":")
		brand = strings.TrimSpace(brand)
		if !ok || brand == "" {
			return nil, fmt.Errorf("invalid DISALLOWED_BRAND_SITES entry %q", entry)
		}
		for _, site := range strings.Split(sites, "|") {
			if site = strings.TrimSpace(site); site != "" {
				result[brand] = append(result[brand], site)
			}
		}
	}
	return result, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
