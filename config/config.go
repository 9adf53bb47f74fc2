// Package config loads the qcircuit service configuration from a YAML file
// and QCIRCUIT_* environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/perclft/qcircuit/source"
)

// Store and queue drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Store       StoreConfig       `yaml:"store"`
	Queue       QueueConfig       `yaml:"queue"`
	Redis       RedisConfig       `yaml:"redis"`
	Cache       CacheConfig       `yaml:"cache"`
	Worker      WorkerConfig      `yaml:"worker"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore"`
	Source      SourceConfig      `yaml:"source"`
	Log         LogConfig         `yaml:"log"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GRPCConfig holds the address of the gRPC health server. Empty disables it.
type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Retention is the lifetime of job records in Redis. Zero keeps them.
	Retention time.Duration `yaml:"retention"`
}

type QueueConfig struct {
	Driver string `yaml:"driver"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	Seed        int64         `yaml:"seed"`
	MaxQubits   int           `yaml:"max_qubits"`
}

type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// Enabled reports whether s3:// sources can be served.
func (o ObjectStoreConfig) Enabled() bool { return o.Endpoint != "" }

// Source converts o to the resolver's object store settings.
func (o ObjectStoreConfig) Source() source.ObjectStoreConfig {
	return source.ObjectStoreConfig{
		Endpoint:  o.Endpoint,
		AccessKey: o.AccessKey,
		SecretKey: o.SecretKey,
		UseSSL:    o.UseSSL,
		Region:    o.Region,
	}
}

type SourceConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration of a single-process deployment.
func Default() Config {
	return Config{
		HTTP:   HTTPConfig{Addr: ":8080", ShutdownTimeout: 15 * time.Second},
		GRPC:   GRPCConfig{Addr: ":9090"},
		Store:  StoreConfig{Driver: DriverMemory},
		Queue:  QueueConfig{Driver: DriverMemory},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Cache:  CacheConfig{TTL: time.Hour},
		Worker: WorkerConfig{Concurrency: 4, JobTimeout: time.Hour},
		Source: SourceConfig{FetchTimeout: 30 * time.Second},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.HTTP.Addr = envString("HTTP_ADDR", c.HTTP.Addr)
	if c.HTTP.ShutdownTimeout, err = envDuration("HTTP_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout); err != nil {
		return err
	}
	c.GRPC.Addr = envString("GRPC_ADDR", c.GRPC.Addr)

	c.Store.Driver = envString("STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = envString("STORE_DSN", c.Store.DSN)
	if c.Store.Retention, err = envDuration("STORE_RETENTION", c.Store.Retention); err != nil {
		return err
	}
	c.Queue.Driver = envString("QUEUE_DRIVER", c.Queue.Driver)

	c.Redis.Addr = envString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envString("REDIS_PASSWORD", c.Redis.Password)
	if c.Redis.DB, err = envInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}

	if c.Cache.Enabled, err = envBool("CACHE_ENABLED", c.Cache.Enabled); err != nil {
		return err
	}
	if c.Cache.TTL, err = envDuration("CACHE_TTL", c.Cache.TTL); err != nil {
		return err
	}

	if c.Worker.Concurrency, err = envInt("WORKER_CONCURRENCY", c.Worker.Concurrency); err != nil {
		return err
	}
	if c.Worker.JobTimeout, err = envDuration("WORKER_JOB_TIMEOUT", c.Worker.JobTimeout); err != nil {
		return err
	}
	if c.Worker.Seed, err = envInt64("WORKER_SEED", c.Worker.Seed); err != nil {
		return err
	}
	if c.Worker.MaxQubits, err = envInt("WORKER_MAX_QUBITS", c.Worker.MaxQubits); err != nil {
		return err
	}

	c.ObjectStore.Endpoint = envString("OBJECTSTORE_ENDPOINT", c.ObjectStore.Endpoint)
	c.ObjectStore.AccessKey = envString("OBJECTSTORE_ACCESS_KEY", c.ObjectStore.AccessKey)
	c.ObjectStore.SecretKey = envString("OBJECTSTORE_SECRET_KEY", c.ObjectStore.SecretKey)
	if c.ObjectStore.UseSSL, err = envBool("OBJECTSTORE_USE_SSL", c.ObjectStore.UseSSL); err != nil {
		return err
	}
	c.ObjectStore.Region = envString("OBJECTSTORE_REGION", c.ObjectStore.Region)

	if c.Source.FetchTimeout, err = envDuration("SOURCE_FETCH_TIMEOUT", c.Source.FetchTimeout); err != nil {
		return err
	}

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	return nil
}

// Validate checks driver names and the settings each driver needs.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			return errors.Errorf("store.dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Queue.Driver {
	case DriverMemory, DriverRedis:
	default:
		return errors.Errorf("unknown queue driver %q", c.Queue.Driver)
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Worker.Concurrency < 1 {
		return errors.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.JobTimeout < 0 {
		return errors.New("worker.job_timeout must not be negative")
	}
	if c.Worker.MaxQubits < 0 {
		return errors.New("worker.max_qubits must not be negative")
	}
	if c.Cache.Enabled && c.Cache.TTL < 0 {
		return errors.New("cache.ttl must not be negative")
	}
	if c.ObjectStore.Enabled() {
		if err := c.ObjectStore.Source().Validate(); err != nil {
			return errors.Wrap(err, "objectstore")
		}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c Config) UsesRedis() bool {
	return c.Store.Driver == DriverRedis || c.Queue.Driver == DriverRedis || c.Cache.Enabled
}
