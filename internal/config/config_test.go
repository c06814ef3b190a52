package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-guard/internal/core/engine"
	"github.com/rl1809/stock-guard/internal/core/retry"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, engine.StrategyMutexKey, c.Strategy())
	assert.Equal(t, retry.DefaultConfig(), c.RetryPolicy())
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse(`
[server]
http-addr = ":9090"

[engine]
strategy = "optimistic"
backend = "redis"
hold = "2ms"

[retry]
max-attempts = 5
initial-delay = "10ms"
max-delay = "200ms"
jitter-mode = "full"

[redis]
lock-ttl = "3s"
`)
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.Server.HTTPAddr)
	assert.Equal(t, DefaultGRPCAddr, c.Server.GRPCAddr, "unset keys keep defaults")
	assert.Equal(t, engine.StrategyOptimistic, c.Strategy())
	assert.Equal(t, BackendRedis, c.Engine.Backend)
	assert.Equal(t, 2*time.Millisecond, c.Engine.Hold)
	assert.Equal(t, 3*time.Second, c.Redis.LockTTL)

	r := c.RetryPolicy()
	assert.Equal(t, 5, r.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, r.InitialDelay)
	assert.Equal(t, 200*time.Millisecond, r.MaxDelay)
	assert.Equal(t, retry.DefaultMultiplier, r.Multiplier)
	assert.Equal(t, retry.JitterFull, r.JitterMode)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown strategy", "[engine]\nstrategy = \"spin\""},
		{"unknown backend", "[engine]\nbackend = \"etcd\""},
		{"negative hold", "[engine]\nhold = \"-1s\""},
		{"zero attempts", "[retry]\nmax-attempts = 0"},
		{"unknown jitter", "[retry]\njitter-mode = \"equal\""},
		{"nan multiplier", "[retry]\nmultiplier = nan"},
		{"zero lock ttl", "[redis]\nlock-ttl = \"0s\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MYSQL_DSN":      "user:pw@tcp(db:3306)/stock",
		"REDIS_ADDR":     "cache:6379",
		"STOCK_STRATEGY": "pessimistic",
	}
	c := Default()
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, env["MYSQL_DSN"], c.MySQL.DSN)
	assert.Equal(t, env["REDIS_ADDR"], c.Redis.Addr)
	assert.Equal(t, engine.StrategyPessimistic, c.Strategy())
	assert.Equal(t, BackendMemory, c.Engine.Backend)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nstrategy = \"cas\"\n"), 0o600))
	t.Setenv("STOCK_STRATEGY", "")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, engine.StrategyCAS, c.Strategy())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
