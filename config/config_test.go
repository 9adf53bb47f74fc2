package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qcircuit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.UsesRedis())
	assert.False(t, cfg.ObjectStore.Enabled())
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9000"
store:
  driver: SQLite
  dsn: /var/lib/qcircuit/results.db
worker:
  concurrency: 8
  job_timeout: 90s
  seed: 42
cache:
  enabled: true
  ttl: 10m
objectstore:
  endpoint: minio:9000
  access_key: qc
  secret_key: secret
log:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, DriverMemory, cfg.Queue.Driver)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Worker.JobTimeout)
	assert.EqualValues(t, 42, cfg.Worker.Seed)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.UsesRedis())
	assert.True(t, cfg.ObjectStore.Enabled())
	assert.Equal(t, "minio:9000", cfg.ObjectStore.Source().Endpoint)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "worker:\n  concurrency: 2\n")
	t.Setenv("QCIRCUIT_WORKER_CONCURRENCY", "16")
	t.Setenv("QCIRCUIT_STORE_DRIVER", "redis")
	t.Setenv("QCIRCUIT_QUEUE_DRIVER", "redis")
	t.Setenv("QCIRCUIT_STORE_RETENTION", "24h")
	t.Setenv("QCIRCUIT_REDIS_DB", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Worker.Concurrency)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Store.Retention)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "http: [unterminated"))
		assert.Error(t, err)
	})
	t.Run("bad env", func(t *testing.T) {
		t.Setenv("QCIRCUIT_WORKER_JOB_TIMEOUT", "soon")
		_, err := Load("")
		assert.ErrorContains(t, err, "QCIRCUIT_WORKER_JOB_TIMEOUT")
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown store":      func(c *Config) { c.Store.Driver = "etcd" },
		"sql without dsn":    func(c *Config) { c.Store.Driver = DriverPostgres },
		"unknown queue":      func(c *Config) { c.Queue.Driver = "kafka" },
		"redis without addr": func(c *Config) { c.Queue.Driver = DriverRedis; c.Redis.Addr = "" },
		"no http addr":       func(c *Config) { c.HTTP.Addr = "" },
		"no workers":         func(c *Config) { c.Worker.Concurrency = 0 },
		"negative timeout":   func(c *Config) { c.Worker.JobTimeout = -time.Second },
		"objectstore creds":  func(c *Config) { c.ObjectStore.Endpoint = "minio:9000" },
		"log format":         func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
