package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, uint64(8453), cfg.ChainID)
	require.Equal(t, "sqlite", cfg.Cache.Driver)
	require.Equal(t, 4*time.Second, cfg.Watch.Interval)

	p := cfg.DiscoveryPolicy()
	require.Equal(t, uint64(1000), p.Iteration.Ceiling)
	require.Equal(t, 50, p.Iteration.BatchSize)
	require.Equal(t, uint64(10000), p.PlayerEventWindow)
}

func TestLegacyRPCVariable(t *testing.T) {
	t.Setenv(LegacyRPCEnv, "https://legacy.example")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "https://legacy.example", cfg.RPCURL)

	t.Setenv("BASEFAIR_RPC_URL", "https://primary.example")
	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "https://primary.example", cfg.RPCURL)
}

func TestConfigFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basefair.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
flipmatch_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
cache:
  driver: memory
watch:
  interval: 10s
discovery:
  batch_size: 20
`), 0o600))
	t.Setenv("BASEFAIR_DISCOVERY_MAX_EMPTY_RUN", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Cache.Driver)
	require.Equal(t, 10*time.Second, cfg.Watch.Interval)
	p := cfg.DiscoveryPolicy()
	require.Equal(t, 20, p.Iteration.BatchSize)
	require.Equal(t, 7, p.Iteration.MaxEmptyRun)

	nets, err := cfg.Networks()
	require.NoError(t, err)
	require.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", nets.Default().FlipMatchAddress().Hex())

	store, err := cfg.OpenStore(context.Background())
	require.NoError(t, err)
	require.IsType(t, &cache.MemoryStore{}, store)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("BASEFAIR_CACHE_DRIVER", "mongo")
	_, err := Load("")
	require.ErrorContains(t, err, "unknown cache driver")

	t.Setenv("BASEFAIR_CACHE_DRIVER", "redis")
	_, err = Load("")
	require.ErrorContains(t, err, "redis.url")

	t.Setenv("BASEFAIR_CACHE_DRIVER", "memory")
	t.Setenv("BASEFAIR_LOG_LEVEL", "loud")
	_, err = Load("")
	require.ErrorContains(t, err, "log.level")
}
