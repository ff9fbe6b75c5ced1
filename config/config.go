package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Log        LogConfig        `yaml:"log"`
	OpenData   OpenDataConfig   `yaml:"open_data"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Importer   ImporterConfig   `yaml:"importer"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Events     EventsConfig     `yaml:"events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	Env             string  `yaml:"env"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// CacheConfig selects the response cache backend for public GET endpoints.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory, redis or none
	TTLSeconds    int           `yaml:"ttl_seconds"`
	TTL           time.Duration `yaml:"-"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// OpenDataConfig tunes the query and aggregation engines.
type OpenDataConfig struct {
	DefaultLimit          int     `yaml:"default_limit"`
	MaxLimit              int     `yaml:"max_limit"`
	TopN                  int     `yaml:"top_n"`
	MaxCompare            int     `yaml:"max_compare"`
	TrendTolerancePercent float64 `yaml:"trend_tolerance_percent"`
	CycleStartMonth       int     `yaml:"cycle_start_month"`
}

// PaymentsConfig controls the payment created when an application is approved.
type PaymentsConfig struct {
	CreateOnApprove bool            `yaml:"create_on_approve"`
	DefaultAmount   string          `yaml:"default_amount"`
	Amount          decimal.Decimal `yaml:"-"`
	DueDay          int             `yaml:"due_day"`
}

// ImporterConfig holds the upstream catalogue sync configuration.
type ImporterConfig struct {
	Enabled         bool              `yaml:"enabled"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	Interval        time.Duration     `yaml:"-"`
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	PageSize        int               `yaml:"page_size"`
	TimeoutSeconds  int               `yaml:"timeout_seconds"`
	RetryCount      int               `yaml:"retry_count"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// EventsConfig points the lifecycle publisher at a RabbitMQ broker.
type EventsConfig struct {
	URL           string `yaml:"url"`
	ApprovedQueue string `yaml:"approved_queue"`
	VacatedQueue  string `yaml:"vacated_queue"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (cfg *Config) ApplyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 300
	}
	cfg.Cache.TTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "dorm-open-data"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	od := &cfg.OpenData
	if od.DefaultLimit <= 0 {
		od.DefaultLimit = 50
	}
	if od.MaxLimit <= 0 {
		od.MaxLimit = 1000
	}
	if od.TopN <= 0 {
		od.TopN = 5
	}
	if od.MaxCompare <= 0 {
		od.MaxCompare = 10
	}
	if od.TrendTolerancePercent <= 0 {
		od.TrendTolerancePercent = 5
	}
	if od.CycleStartMonth < 1 || od.CycleStartMonth > 12 {
		od.CycleStartMonth = int(time.October)
	}

	if cfg.Payments.DefaultAmount == "" {
		cfg.Payments.DefaultAmount = "100.00"
	}
	amount, err := decimal.NewFromString(cfg.Payments.DefaultAmount)
	if err != nil {
		return fmt.Errorf("invalid payments.default_amount %q: %w", cfg.Payments.DefaultAmount, err)
	}
	cfg.Payments.Amount = amount
	if cfg.Payments.DueDay < 1 || cfg.Payments.DueDay > 28 {
		cfg.Payments.DueDay = 15
	}

	if cfg.Importer.IntervalSeconds <= 0 {
		cfg.Importer.IntervalSeconds = 3600
	}
	cfg.Importer.Interval = time.Duration(cfg.Importer.IntervalSeconds) * time.Second
	if cfg.Importer.PageSize <= 0 {
		cfg.Importer.PageSize = 100
	}
	if cfg.Importer.TimeoutSeconds <= 0 {
		cfg.Importer.TimeoutSeconds = 30
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Events.ApprovedQueue == "" {
		cfg.Events.ApprovedQueue = "application.approved"
	}
	if cfg.Events.VacatedQueue == "" {
		cfg.Events.VacatedQueue = "room.vacated"
	}

	if cfg.Metrics.Prefix == "" {
		cfg.Metrics.Prefix = "dorm_open_data"
	}
	return nil
}
