package config

import (
	"errors"
	"runtime"
	"strings"
	"time"

	libconfig "nemsql/backend/libs/config"
)

const (
	defaultInputPath     = "New Text Document.txt"
	defaultOutputPrefix  = "meter_readings_"
	defaultQueueCapacity = 1000
	defaultTimeout       = time.Hour
	defaultRegistryTTL   = 7 * 24 * time.Hour
)

// Config defines converter configuration.
type Config struct {
	Input struct {
		Path string `yaml:"path" env:"NEMSQL_INPUT"`
	} `yaml:"input"`
	Output struct {
		Dir    string `yaml:"dir" env:"NEMSQL_OUTPUT_DIR"`
		Prefix string `yaml:"prefix" env:"NEMSQL_OUTPUT_PREFIX"`
	} `yaml:"output"`
	Pipeline struct {
		Workers       int           `yaml:"workers" env:"NEMSQL_WORKERS"`
		QueueCapacity int           `yaml:"queue_capacity" env:"NEMSQL_QUEUE_CAPACITY"`
		Timeout       time.Duration `yaml:"timeout" env:"NEMSQL_TIMEOUT"`
	} `yaml:"pipeline"`
	Database struct {
		DSN          string `yaml:"dsn" env:"NEMSQL_POSTGRES_DSN"`
		Load         bool   `yaml:"load" env:"NEMSQL_LOAD"`
		MaxOpenConns int    `yaml:"max_open_conns" env:"NEMSQL_POSTGRES_MAX_OPEN_CONNS"`
	} `yaml:"database"`
	Redis struct {
		Addr     string        `yaml:"addr" env:"NEMSQL_REDIS_ADDR"`
		Password string        `yaml:"password" env:"NEMSQL_REDIS_PASSWORD"`
		DB       int           `yaml:"db" env:"NEMSQL_REDIS_DB"`
		TTL      time.Duration `yaml:"ttl" env:"NEMSQL_REDIS_TTL"`
	} `yaml:"redis"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{}
	cfg.Input.Path = defaultInputPath
	cfg.Output.Dir = "."
	cfg.Output.Prefix = defaultOutputPrefix
	cfg.Pipeline.QueueCapacity = defaultQueueCapacity
	cfg.Pipeline.Timeout = defaultTimeout
	cfg.Redis.TTL = defaultRegistryTTL
	return cfg
}

// Load builds configuration from defaults, the YAML file at path (CONFIG_FILE when path is
// empty) and the environment. Callers apply their own overrides and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.TrimSpace(path) != "" {
		err = libconfig.Load(path, cfg)
	} else {
		err = libconfig.LoadConfig(cfg)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Input.Path) == "" {
		return errors.New("config: input path required")
	}
	if c.Pipeline.Workers < 0 {
		return errors.New("config: workers must not be negative")
	}
	if c.Pipeline.QueueCapacity < 0 {
		return errors.New("config: queue capacity must not be negative")
	}
	if c.Pipeline.Timeout < 0 {
		return errors.New("config: timeout must not be negative")
	}
	if c.Database.Load && strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database dsn required when load is enabled")
	}
	return nil
}

// WorkerCount returns the configured worker count, or the host parallelism when unset.
func (c *Config) WorkerCount() int {
	if c.Pipeline.Workers > 0 {
		return c.Pipeline.Workers
	}
	return max(runtime.GOMAXPROCS(0), 1)
}

// WaitTimeout returns how long the run waits for the workers to finish.
func (c *Config) WaitTimeout() time.Duration {
	if c.Pipeline.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Pipeline.Timeout
}
