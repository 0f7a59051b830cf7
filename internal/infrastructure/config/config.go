package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Lock      LockConfig      `koanf:"lock"`
	Security  SecurityConfig  `koanf:"security"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Sweeper   SweeperConfig   `koanf:"sweeper"`
}

type ServerConfig struct {
	Address         string        `koanf:"address"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	Burst             int `koanf:"burst"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address      string        `koanf:"address"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// LockConfig controls the per-auction distributed lock. When
// DistributedEnabled is false the service falls back to an in-process
// mutex with the same expiry semantics.
type LockConfig struct {
	DistributedEnabled bool          `koanf:"distributed_enabled"`
	WaitBudget         time.Duration `koanf:"wait_budget"`
	HoldTTL            time.Duration `koanf:"hold_ttl"`
	RetryInterval      time.Duration `koanf:"retry_interval"`
}

type SecurityConfig struct {
	JWTSecret          string        `koanf:"jwt_secret"`
	TokenIssuer        string        `koanf:"token_issuer"`
	TokenAudience      string        `koanf:"token_audience"`
	TokenExpiry        time.Duration `koanf:"token_expiry"`
	RefreshTokenExpiry time.Duration `koanf:"refresh_token_expiry"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
	BatchTimeout  time.Duration `koanf:"batch_timeout"`
}

// SweeperConfig controls the background loop that materializes
// Completed/Expired transitions for auctions past their end time.
type SweeperConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	Batch    int           `koanf:"batch"`
}

// Load loads configuration from defaults, an optional YAML file, and
// AUCTION_-prefixed environment variables, in that precedence order.
func Load(configPath ...string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				Burst:             200,
			},
		},
		Database: DatabaseConfig{
			URL:             "postgres://localhost:5432/auction?sslmode=disable",
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Lock: LockConfig{
			DistributedEnabled: true,
			WaitBudget:         5 * time.Second,
			HoldTTL:            10 * time.Second,
			RetryInterval:      10 * time.Millisecond,
		},
		Security: SecurityConfig{
			JWTSecret:          "",
			TokenIssuer:        "auction-backend",
			TokenAudience:      "auction-clients",
			TokenExpiry:        15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  0.1,
			ExportTimeout: 10 * time.Second,
			BatchTimeout:  5 * time.Second,
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: time.Second,
			Batch:    50,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional.
	cfgPath := "configs/config.yaml"
	if len(configPath) > 0 && configPath[0] != "" {
		cfgPath = configPath[0]
	}
	_ = k.Load(file.Provider(cfgPath), yaml.Parser())

	// Double underscore separates nesting levels so keys that contain
	// single underscores (jwt_secret, hold_ttl) survive the mapping:
	// AUCTION_SECURITY__JWT_SECRET -> security.jwt_secret.
	if err := k.Load(env.Provider("AUCTION_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AUCTION_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Lock.DistributedEnabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when the distributed lock is enabled")
	}
	if c.Lock.HoldTTL <= 0 || c.Lock.WaitBudget <= 0 {
		return fmt.Errorf("lock budgets must be positive")
	}
	return nil
}
