// Package config loads BaseFair settings from an optional file, a .env file
// and BASEFAIR_* environment variables, in increasing precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/discovery"
)

const EnvPrefix = "BASEFAIR"

// LegacyRPCEnv is the RPC variable name used by the web frontend.
const LegacyRPCEnv = "NEXT_PUBLIC_RPC_URL"

type Config struct {
	RPCURL           string          `mapstructure:"rpc_url"`
	ChainID          uint64          `mapstructure:"chain_id"`
	PrivateKey       string          `mapstructure:"private_key"`
	FlipMatchAddress string          `mapstructure:"flipmatch_address"`
	Cache            CacheConfig     `mapstructure:"cache"`
	Redis            RedisConfig     `mapstructure:"redis"`
	Watch            WatchConfig     `mapstructure:"watch"`
	Discovery        DiscoveryConfig `mapstructure:"discovery"`
	Log              LogConfig       `mapstructure:"log"`
}

type CacheConfig struct {
	// Driver is one of memory, sqlite, postgres or redis.
	Driver string        `mapstructure:"driver"`
	DSN    string        `mapstructure:"dsn"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type WatchConfig struct {
	Listen   string        `mapstructure:"listen"`
	Interval time.Duration `mapstructure:"interval"`
}

type DiscoveryConfig struct {
	EventWindow       uint64  `mapstructure:"event_window"`
	IterationCeiling  uint64  `mapstructure:"iteration_ceiling"`
	BatchSize         int     `mapstructure:"batch_size"`
	MaxEmptyRun       int     `mapstructure:"max_empty_run"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	policy := discovery.DefaultPolicy()
	v.SetDefault("rpc_url", "")
	v.SetDefault("chain_id", chain.BaseMainnetChainID)
	v.SetDefault("private_key", "")
	v.SetDefault("flipmatch_address", "")
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.dsn", "basefair-cache.db")
	v.SetDefault("cache.ttl", time.Duration(0))
	v.SetDefault("redis.url", "")
	v.SetDefault("watch.listen", ":8088")
	v.SetDefault("watch.interval", 4*time.Second)
	v.SetDefault("discovery.event_window", policy.PlayerEventWindow)
	v.SetDefault("discovery.iteration_ceiling", policy.Iteration.Ceiling)
	v.SetDefault("discovery.batch_size", policy.Iteration.BatchSize)
	v.SetDefault("discovery.max_empty_run", policy.Iteration.MaxEmptyRun)
	v.SetDefault("discovery.requests_per_second", policy.RequestsPerSecond)
	v.SetDefault("log.level", "info")
}

// Load reads configuration. path may be empty; a missing .env is ignored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("rpc_url", EnvPrefix+"_RPC_URL", LegacyRPCEnv); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
	if c.Cache.Driver == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("cache driver redis needs redis.url")
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval)
	}
	if _, err := log.LvlFromString(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Networks returns the embedded network table with the configured RPC URL
// and contract address applied.
func (c *Config) Networks() (*chain.Networks, error) {
	nets, err := chain.LoadNetworks(nil)
	if err != nil {
		return nil, err
	}
	nets.Override(c.RPCURL, c.FlipMatchAddress)
	return nets, nil
}

func (c *Config) DiscoveryPolicy() discovery.Policy {
	p := discovery.DefaultPolicy()
	if c.Discovery.EventWindow > 0 {
		p.PlayerEventWindow = c.Discovery.EventWindow
	}
	if c.Discovery.IterationCeiling > 0 {
		p.Iteration.Ceiling = c.Discovery.IterationCeiling
	}
	if c.Discovery.BatchSize > 0 {
		p.Iteration.BatchSize = c.Discovery.BatchSize
	}
	if c.Discovery.MaxEmptyRun > 0 {
		p.Iteration.MaxEmptyRun = c.Discovery.MaxEmptyRun
	}
	p.RequestsPerSecond = c.Discovery.RequestsPerSecond
	return p
}

// OpenStore opens the configured cache backend.
func (c *Config) OpenStore(ctx context.Context) (cache.Store, error) {
	switch c.Cache.Driver {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "sqlite":
		return cache.OpenSQL(ctx, "sqlite3", c.Cache.DSN)
	case "postgres":
		return cache.OpenSQL(ctx, "postgres", c.Cache.DSN)
	case "redis":
		rdb, err := cache.ConnectRedis(ctx, c.Redis.URL)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisStore(rdb, c.Cache.TTL), nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
}

// SetupLogger installs the root terminal logger at the configured level.
func (c *Config) SetupLogger() log.Logger {
	lvl, err := log.LvlFromString(c.Log.Level)
	if err != nil {
		lvl = log.LevelInfo
	}
	l := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false))
	log.SetDefault(l)
	return l
}
