// Package config loads server settings from defaults, an optional TOML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rl1809/stock-guard/internal/core/engine"
	"github.com/rl1809/stock-guard/internal/core/retry"
)

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

const (
	DefaultHTTPAddr  = ":8080"
	DefaultGRPCAddr  = ":50051"
	DefaultMySQLDSN  = "root:root@tcp(localhost:3306)/stockguard?parseTime=true"
	DefaultRedisAddr = "localhost:6379"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server ServerConfig `toml:"server"`
	Engine EngineConfig `toml:"engine"`
	Retry  RetryConfig  `toml:"retry"`
	MySQL  MySQLConfig  `toml:"mysql"`
	Redis  RedisConfig  `toml:"redis"`
}

type ServerConfig struct {
	HTTPAddr        string        `toml:"http-addr"`
	GRPCAddr        string        `toml:"grpc-addr"`
	ShutdownTimeout time.Duration `toml:"shutdown-timeout"`
	// LogVerbosity is the highest logr V level printed.
	LogVerbosity int `toml:"log-verbosity"`
	// TraceStdout exports retry spans to stdout.
	TraceStdout bool `toml:"trace-stdout"`
}

type EngineConfig struct {
	Strategy string `toml:"strategy"`
	// Backend is the store behind non in-process strategies.
	Backend string `toml:"backend"`
	// Hold pauses inside every decrement to widen the race window.
	Hold time.Duration `toml:"hold"`
}

type RetryConfig struct {
	MaxAttempts  int           `toml:"max-attempts"`
	InitialDelay time.Duration `toml:"initial-delay"`
	Multiplier   float64       `toml:"multiplier"`
	MaxDelay     time.Duration `toml:"max-delay"`
	Jitter       bool          `toml:"jitter"`
	JitterMode   string        `toml:"jitter-mode"`
}

type MySQLConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max-open-conns"`
	MaxIdleConns    int           `toml:"max-idle-conns"`
	ConnMaxLifetime time.Duration `toml:"conn-max-lifetime"`
}

type RedisConfig struct {
	Addr     string        `toml:"addr"`
	PoolSize int           `toml:"pool-size"`
	LockTTL  time.Duration `toml:"lock-ttl"`
}

// Default returns a config that runs the per-key mutex engine in memory.
func Default() *Config {
	r := retry.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        DefaultHTTPAddr,
			GRPCAddr:        DefaultGRPCAddr,
			ShutdownTimeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			Strategy: string(engine.StrategyMutexKey),
			Backend:  BackendMemory,
		},
		Retry: RetryConfig{
			MaxAttempts:  r.MaxAttempts,
			InitialDelay: r.InitialDelay,
			Multiplier:   r.Multiplier,
			MaxDelay:     r.MaxDelay,
			Jitter:       r.Jitter,
			JitterMode:   string(r.JitterMode),
		},
		MySQL: MySQLConfig{
			DSN:             DefaultMySQLDSN,
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     DefaultRedisAddr,
			PoolSize: 100,
			LockTTL:  10 * time.Second,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes TOML text over the defaults without touching the environment.
func Parse(data string) (*Config, error) {
	c := Default()
	if _, err := toml.Decode(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides connection settings from MYSQL_DSN, REDIS_ADDR,
// STOCK_STRATEGY and STOCK_BACKEND when set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("MYSQL_DSN"); v != "" {
		c.MySQL.DSN = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("STOCK_STRATEGY"); v != "" {
		c.Engine.Strategy = v
	}
	if v := getenv("STOCK_BACKEND"); v != "" {
		c.Engine.Backend = v
	}
}

func (c *Config) Validate() error {
	if _, err := engine.ParseStrategy(c.Engine.Strategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.Engine.Backend {
	case BackendMemory, BackendMySQL, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Engine.Backend)
	}
	if c.Engine.Hold < 0 {
		return fmt.Errorf("%w: negative hold", ErrInvalid)
	}
	// A lock without expiry would outlive a crashed holder.
	if c.Redis.LockTTL <= 0 {
		return fmt.Errorf("%w: redis lock ttl must be positive", ErrInvalid)
	}
	switch retry.JitterMode(c.Retry.JitterMode) {
	case retry.JitterSpread, retry.JitterFull:
	default:
		return fmt.Errorf("%w: unknown jitter mode %q", ErrInvalid, c.Retry.JitterMode)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c *Config) Strategy() engine.Strategy {
	return engine.Strategy(c.Engine.Strategy)
}

func (c *Config) RetryPolicy() retry.Config {
	return retry.Config{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay,
		Multiplier:   c.Retry.Multiplier,
		MaxDelay:     c.Retry.MaxDelay,
		Jitter:       c.Retry.Jitter,
		JitterMode:   retry.JitterMode(c.Retry.JitterMode),
	}
}
