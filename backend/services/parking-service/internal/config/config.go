package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	libconfig "parkingops/backend/libs/config"
)

// Config defines parking-service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	JWT      JWTConfig      `yaml:"jwt"`
	Billing  BillingConfig  `yaml:"billing"`
	Feed     FeedConfig     `yaml:"feed"`
}

// HTTPConfig is the listener configuration.
type HTTPConfig struct {
	Port string `yaml:"port" env:"PARKING_HTTP_PORT"`
}

// DatabaseConfig points at Postgres.
type DatabaseConfig struct {
	DSN         string `yaml:"dsn" env:"PARKING_DB_DSN"`
	ApplySchema bool   `yaml:"applySchema" env:"PARKING_DB_APPLY_SCHEMA"`
}

// RedisConfig covers the schedule cache and the order lock.
type RedisConfig struct {
	Addr        string        `yaml:"addr" env:"PARKING_REDIS_ADDR"`
	Password    string        `yaml:"password" env:"PARKING_REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"PARKING_REDIS_DB"`
	ScheduleTTL time.Duration `yaml:"scheduleTtl" env:"PARKING_SCHEDULE_CACHE_TTL"`
	LockTTL     time.Duration `yaml:"lockTtl" env:"PARKING_ORDER_LOCK_TTL"`
}

// AMQPConfig is the event broker. An empty URL disables publishing.
type AMQPConfig struct {
	URL      string `yaml:"url" env:"PARKING_AMQP_URL"`
	Exchange string `yaml:"exchange" env:"PARKING_AMQP_EXCHANGE"`
}

// JWTConfig verifies operator tokens.
type JWTConfig struct {
	Secret string `yaml:"secret" env:"PARKING_JWT_SECRET"`
}

// BillingConfig controls fee computation.
type BillingConfig struct {
	TimeZone string `yaml:"timeZone" env:"PARKING_BILLING_TIMEZONE"`
}

// FeedConfig tunes the websocket session feed.
type FeedConfig struct {
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"PARKING_FEED_WRITE_TIMEOUT"`
}

// Load configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP:    HTTPConfig{Port: "8085"},
		Redis:   RedisConfig{ScheduleTTL: 10 * time.Minute, LockTTL: 10 * time.Second},
		AMQP:    AMQPConfig{Exchange: "parking.events"},
		Billing: BillingConfig{TimeZone: "UTC"},
		Feed:    FeedConfig{WriteTimeout: 10 * time.Second},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("config: database dsn required"))
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("config: redis addr required"))
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("config: jwt secret required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8085"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// Location returns the time zone schedules are written in.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Billing.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: billing time zone: %w", err)
	}
	return loc, nil
}
