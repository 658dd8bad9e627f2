package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joomcode/redisbulk/bulk"
	"github.com/joomcode/redisbulk/databases"
)

const sample = `
log:
  env: development
  level: debug
server:
  addr: 127.0.0.1:9000
  cors_origins: [https://ui.example.com]
bulk:
  min_wait: 50ms
  max_parallel_nodes: 4
databases:
  - id: local
    addrs: [127.0.0.1:6379]
    db: 2
  - id: cache
    kind: cluster
    addrs: [10.0.0.1:7000, 10.0.0.2:7000]
    io_timeout: 2s
  - id: ha
    kind: sentinel
    addrs: [10.0.1.1:26379]
    master_name: mymaster
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader(WithEnvPrefix("REDISBULK_TEST_DEFAULTS_")).Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Server.Retention)
	assert.Equal(t, bulk.DefaultMinWait, cfg.Bulk.MinWait)
	assert.Equal(t, bulk.DefaultMaxWait, cfg.Bulk.MaxWait)
	assert.Equal(t, bulk.DefaultMaxErrorKinds, cfg.Bulk.MaxErrorKinds)
	assert.Equal(t, "production", cfg.Log.Env)
	assert.Empty(t, cfg.Databases)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "redisbulk.yaml", sample)
	cfg, err := NewLoader(WithConfigFile(path), WithEnvPrefix("REDISBULK_TEST_FILE_")).Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Log.Env)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://ui.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 50*time.Millisecond, cfg.Bulk.MinWait)
	assert.Equal(t, bulk.DefaultMaxWait, cfg.Bulk.MaxWait)
	assert.Equal(t, 4, cfg.Bulk.MaxParallelNodes)

	require.Len(t, cfg.Databases, 3)
	assert.Equal(t, "local", cfg.Databases[0].ID)
	assert.Equal(t, 2, cfg.Databases[0].DB)
	assert.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000"}, cfg.Databases[1].Addrs)
	assert.Equal(t, 2*time.Second, cfg.Databases[1].IOTimeout)
	assert.Equal(t, "mymaster", cfg.Databases[2].MasterName)

	opts := cfg.Bulk.RegistryOpts()
	assert.Equal(t, 4, opts.MaxParallelNodes)
	assert.Equal(t, 50*time.Millisecond, opts.MinWait)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "redisbulk.yaml", sample)
	t.Setenv("REDISBULK_TEST_ENV_SERVER__ADDR", ":7070")
	t.Setenv("REDISBULK_TEST_ENV_BULK__MAX_WAIT", "3s")
	t.Setenv("REDISBULK_TEST_ENV_LOG__LEVEL", "warn")

	cfg, err := NewLoader(WithConfigFile(path), WithEnvPrefix("REDISBULK_TEST_ENV_")).Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Bulk.MaxWait)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.Bulk.MinWait)
}

func TestLoad_DotEnv(t *testing.T) {
	dotenv := writeFile(t, ".env", "REDISBULK_TEST_DOTENV_SERVER__ADDR=:6060\n")
	t.Setenv("REDISBULK_TEST_DOTENV_LOG__LEVEL", "error")
	// godotenv sets variables directly; register cleanup for the one it adds
	t.Cleanup(func() { os.Unsetenv("REDISBULK_TEST_DOTENV_SERVER__ADDR") })

	cfg, err := NewLoader(
		WithEnvPrefix("REDISBULK_TEST_DOTENV_"),
		WithDotEnv(dotenv, filepath.Join(t.TempDir(), "missing.env")),
	).Load()
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := NewLoader(WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))).Load()
	assert.True(t, errorx.IsOfType(err, ErrLoad))

	path := writeFile(t, "bad.yaml", "server: [")
	_, err = NewLoader(WithConfigFile(path)).Load()
	assert.True(t, errorx.IsOfType(err, ErrLoad))

	path = writeFile(t, "invalid.yaml", "databases:\n  - id: x\n    kind: ring\n    addrs: [h:1]\n")
	_, err = NewLoader(WithConfigFile(path), WithEnvPrefix("REDISBULK_TEST_ERRORS_")).Load()
	assert.True(t, errorx.IsOfType(err, ErrInvalid))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Server: Server{Addr: ":1"}, Bulk: Bulk{MinWait: time.Millisecond, MaxWait: time.Second}}
	}
	assert.NoError(t, base().Validate())

	c := base()
	c.Server.Addr = ""
	assert.True(t, errorx.IsOfType(c.Validate(), ErrInvalid))

	c = base()
	c.Bulk.MaxWait = 0
	assert.True(t, errorx.IsOfType(c.Validate(), ErrInvalid))

	c = base()
	c.Log.Level = "chatty"
	assert.True(t, errorx.IsOfType(c.Validate(), ErrInvalid))

	c = base()
	c.Databases = []databases.Config{
		{ID: "a", Addrs: []string{"h:1"}},
		{ID: "a", Addrs: []string{"h:2"}},
	}
	assert.True(t, errorx.IsOfType(c.Validate(), ErrInvalid))
}
