package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/voxagent/billing/internal/types"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Auth       AuthConfig       `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Kafka      KafkaConfig
	Cache      CacheConfig
	Webhook    Webhook
	Billing    BillingConfig
	Payment    PaymentConfig
	Storage    StorageConfig
	Sentry     SentryConfig
	Pyroscope  PyroscopeConfig
	Metrics    MetricsConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
	// AllowedOrigins lists the dashboard origins allowed to call the API; empty allows any
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	Secret   string         `mapstructure:"secret" validate:"required"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	APIKey   APIKeyConfig   `mapstructure:"api_key"`
}

type SupabaseConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	ServiceKey string `mapstructure:"service_key"`
}

type APIKeyConfig struct {
	Header string `mapstructure:"header" validate:"required"`
	// Keys maps the sha256 hash of a key to its details
	Keys map[string]APIKeyDetails `mapstructure:"keys"`
}

type APIKeyDetails struct {
	UserID   string `mapstructure:"user_id" json:"user_id"`
	Name     string `mapstructure:"name" json:"name"`
	IsActive bool   `mapstructure:"is_active" json:"is_active"`
}

type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	UsageTopic    string   `mapstructure:"usage_topic"`
	// RateLimit is the maximum usage messages processed per second
	RateLimit     int64                `mapstructure:"rate_limit"`
	ClientID      string               `mapstructure:"client_id"`
	TLS           bool                 `mapstructure:"tls"`
	UseSASL       bool                 `mapstructure:"use_sasl"`
	SASLMechanism sarama.SASLMechanism `mapstructure:"sasl_mechanism"`
	SASLUser      string               `mapstructure:"sasl_user"`
	SASLPassword  string               `mapstructure:"sasl_password"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// BillingConfig holds the knobs of the credit engine itself
type BillingConfig struct {
	DefaultCurrency string `mapstructure:"default_currency"`
	// DisplayPrecision is the number of decimal places totals are rounded to for display
	DisplayPrecision int32 `mapstructure:"display_precision"`
	// MonitorCooldown is the minimum gap between two unforced monitor sweeps
	MonitorCooldown    time.Duration `mapstructure:"monitor_cooldown"`
	MonitorConcurrency int           `mapstructure:"monitor_concurrency"`
	// LedgerMaxRetries bounds retries of a ledger mutation on serialization failures
	LedgerMaxRetries uint64 `mapstructure:"ledger_max_retries"`
	// AlertPeriod is the dedupe window of balance alerts
	AlertPeriod types.AlertPeriod `mapstructure:"alert_period"`
}

type PaymentConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Stripe  StripeConfig
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the number of payment collaborator calls allowed per second
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type StorageConfig struct {
	S3Enabled bool          `mapstructure:"s3_enabled"`
	Region    string        `mapstructure:"region"`
	Bucket    string        `mapstructure:"bucket"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type PyroscopeConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
	BasicAuthUser   string `mapstructure:"basic_auth_user"`
	BasicAuthPass   string `mapstructure:"basic_auth_password"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func NewConfig() (*Configuration, error) {
	// .env is optional and only used for local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/voxbilling")

	v.SetEnvPrefix("VOXBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("auth.api_key.header", "x-api-key")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("kafka.usage_topic", "usage_events")
	v.SetDefault("kafka.consumer_group", "voxbilling-usage")
	v.SetDefault("kafka.rate_limit", 50)
	v.SetDefault("webhook.topic", "webhooks")
	v.SetDefault("webhook.pubsub", types.MemoryPubSub)
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.initial_interval", time.Second)
	v.SetDefault("webhook.max_interval", 10*time.Second)
	v.SetDefault("webhook.multiplier", 2.0)
	v.SetDefault("webhook.max_elapsed_time", 2*time.Minute)
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("billing.default_currency", "USD")
	v.SetDefault("billing.display_precision", 4)
	v.SetDefault("billing.monitor_cooldown", 5*time.Minute)
	v.SetDefault("billing.monitor_concurrency", 8)
	v.SetDefault("billing.ledger_max_retries", 3)
	v.SetDefault("billing.alert_period", types.AlertPeriodMonth)
	v.SetDefault("payment.timeout", 15*time.Second)
	v.SetDefault("payment.rate_limit", 5)
	v.SetDefault("payment.burst", 5)
	v.SetDefault("storage.timeout", 10*time.Second)
	v.SetDefault("metrics.enabled", true)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Deployment.Mode.Validate(); err != nil {
		return err
	}
	if err := c.Billing.AlertPeriod.Validate(); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Webhook.PubSub == types.KafkaPubSub && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required for the kafka webhook pubsub")
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Billing: BillingConfig{
			DefaultCurrency:    "USD",
			DisplayPrecision:   4,
			MonitorCooldown:    5 * time.Minute,
			MonitorConcurrency: 4,
			LedgerMaxRetries:   3,
			AlertPeriod:        types.AlertPeriodMonth,
		},
		Webhook: Webhook{
			Topic:  "webhooks",
			PubSub: types.MemoryPubSub,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
