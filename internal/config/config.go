package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"studio-checkout/internal/domain"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Log           LogConfig           `mapstructure:"log"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Mail          MailConfig          `mapstructure:"mail"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
	Payments      PaymentsConfig      `mapstructure:"payments"`
	Sweep         SweepConfig         `mapstructure:"sweep"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	Schema       string        `mapstructure:"schema"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode, d.Schema,
	)
}

type GatewayConfig struct {
	// Provider is "razorpay" for the hosted gateway or "mock" for the
	// in-process simulator.
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	KeyID     string        `mapstructure:"key_id"`
	KeySecret string        `mapstructure:"key_secret"`
	Currency  string        `mapstructure:"currency"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MailConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	AdminEmail string `mapstructure:"admin_email"`
}

type NotificationsConfig struct {
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
}

type PricingConfig struct {
	ShippingFee           string            `mapstructure:"shipping_fee"`
	FreeShippingThreshold string            `mapstructure:"free_shipping_threshold"`
	MaxGuests             int               `mapstructure:"max_guests"`
	Experiences           map[string]string `mapstructure:"experiences"`
}

func (p PricingConfig) Shipping() (domain.ShippingPolicy, error) {
	fee, err := decimal.NewFromString(p.ShippingFee)
	if err != nil {
		return domain.ShippingPolicy{}, fmt.Errorf("pricing.shipping_fee: %w", err)
	}
	threshold, err := decimal.NewFromString(p.FreeShippingThreshold)
	if err != nil {
		return domain.ShippingPolicy{}, fmt.Errorf("pricing.free_shipping_threshold: %w", err)
	}
	return domain.ShippingPolicy{FlatFee: fee, FreeShippingThreshold: threshold}, nil
}

func (p PricingConfig) ExperiencePricing() (domain.ExperiencePricing, error) {
	pricing := domain.ExperiencePricing{}
	for name, raw := range p.Experiences {
		kind := domain.ExperienceType(strings.ToLower(name))
		if !kind.Valid() {
			return nil, fmt.Errorf("pricing.experiences: unknown experience %q", name)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("pricing.experiences.%s: %w", name, err)
		}
		pricing[kind] = price
	}
	return pricing, nil
}

type PaymentsConfig struct {
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

type SweepConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "studio")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.query_timeout", 10*time.Second)

	v.SetDefault("gateway.provider", "razorpay")
	v.SetDefault("gateway.base_url", "https://api.razorpay.com")
	v.SetDefault("gateway.currency", "INR")
	v.SetDefault("gateway.timeout", 15*time.Second)

	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "authenticated")

	v.SetDefault("kafka.topic", "studio.payments")

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "Clay Studio <orders@example.com>")

	v.SetDefault("notifications.rate_limit", 5)
	v.SetDefault("notifications.rate_window", time.Hour)
	v.SetDefault("notifications.cooldown", 5*time.Minute)

	v.SetDefault("pricing.shipping_fee", "150")
	v.SetDefault("pricing.free_shipping_threshold", "1000")
	v.SetDefault("pricing.max_guests", 10)
	v.SetDefault("pricing.experiences", map[string]string{
		"couple":   "4000",
		"birthday": "12000",
		"farm":     "3000",
		"studio":   "2500",
	})

	v.SetDefault("payments.pending_ttl", 24*time.Hour)

	v.SetDefault("sweep.interval", 5*time.Minute)
	v.SetDefault("sweep.batch_size", 100)
}

// The database variables keep their historical names so existing .env files
// continue to work.
var envAliases = map[string]string{
	"database.host":     "BLUEPRINT_DB_HOST",
	"database.port":     "BLUEPRINT_DB_PORT",
	"database.username": "BLUEPRINT_DB_USERNAME",
	"database.password": "BLUEPRINT_DB_PASSWORD",
	"database.database": "BLUEPRINT_DB_DATABASE",
	"database.schema":   "BLUEPRINT_DB_SCHEMA",
}

// Load merges defaults, an optional YAML file and the environment
// (STUDIO_GATEWAY_KEY_SECRET overrides gateway.key_secret, and so on).
// An empty path searches ./studio.yaml and /etc/studio/studio.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("studio")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/studio")
	}

	v.SetEnvPrefix("STUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, "STUDIO_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var problems []string
	if c.Gateway.Provider != "razorpay" && c.Gateway.Provider != "mock" {
		problems = append(problems, "gateway.provider must be razorpay or mock")
	}
	if c.Gateway.KeySecret == "" {
		problems = append(problems, "gateway.key_secret is required")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "auth.jwt_secret is required")
	}
	if c.Notifications.RateLimit <= 0 {
		problems = append(problems, "notifications.rate_limit must be positive")
	}
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"notifications.rate_window", c.Notifications.RateWindow},
		{"notifications.cooldown", c.Notifications.Cooldown},
		{"sweep.interval", c.Sweep.Interval},
		{"payments.pending_ttl", c.Payments.PendingTTL},
		{"database.query_timeout", c.Database.QueryTimeout},
		{"gateway.timeout", c.Gateway.Timeout},
	}
	for _, f := range durations {
		if f.d <= 0 {
			problems = append(problems, f.key+" must be positive")
		}
	}
	if c.Sweep.BatchSize <= 0 {
		problems = append(problems, "sweep.batch_size must be positive")
	}
	if _, err := c.Pricing.Shipping(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Pricing.ExperiencePricing(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
