// Package config assembles the master's and worker's runtime
// configuration from an optional YAML/JSON file layered under plain
// environment variables, per the environment contract (PORT,
// MASTER_SERVER_URL, REDIS_URL).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	domainconfig "github.com/taskmesh/dispatch/domain/config"
	"github.com/taskmesh/dispatch/domain/scheduler"
	infraconfig "github.com/taskmesh/dispatch/infrastructure/config"
)

// StoreBackend selects which Registry/ProblemStore persistence variant a
// master run uses.
type StoreBackend string

const (
	// BackendMemory is the in-memory, single-process variant. Default.
	BackendMemory StoreBackend = "memory"

	// BackendRedis is the shared-queue variant over Redis.
	BackendRedis StoreBackend = "redis"
)

// MasterConfig configures a master run.
type MasterConfig struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port" json:"port"`

	// StoreBackend selects memory or redis persistence.
	StoreBackend StoreBackend `yaml:"store_backend" json:"store_backend"`

	// RedisURL is the Redis connection address, required when
	// StoreBackend is redis.
	RedisURL string `yaml:"redis_url" json:"redis_url"`

	// RedisKeyPrefix namespaces the Redis-backed registry's keys.
	RedisKeyPrefix string `yaml:"redis_key_prefix" json:"redis_key_prefix"`

	// Timeouts carries the four scheduler cadence/threshold knobs.
	Timeouts scheduler.Timeouts `yaml:"-" json:"-"`
}

// WorkerConfig configures a worker run.
type WorkerConfig struct {
	// MasterServerURL is the base URL of the master's HTTP surface.
	MasterServerURL string `yaml:"master_server_url" json:"master_server_url"`

	// WorkerID identifies this worker in its log lines; it is not sent
	// to the master. Generated at startup if empty.
	WorkerID string `yaml:"worker_id" json:"worker_id"`

	// HeartbeatInterval is the worker-side heartbeat cadence.
	HeartbeatInterval time.Duration `yaml:"-" json:"-"`

	// RequestTimeout bounds each RPC to the master.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// DefaultMasterConfig returns the reference master configuration.
func DefaultMasterConfig() MasterConfig {
	return MasterConfig{
		Port:           8080,
		StoreBackend:   BackendMemory,
		RedisKeyPrefix: "taskmesh:",
		Timeouts:       scheduler.DefaultTimeouts(),
	}
}

// DefaultWorkerConfig returns the reference worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	timeouts := scheduler.DefaultTimeouts()
	return WorkerConfig{
		MasterServerURL:   "http://localhost:8080",
		HeartbeatInterval: timeouts.HeartbeatInterval,
		RequestTimeout:    10 * time.Second,
	}
}

// LoadMasterConfig builds a MasterConfig starting from the defaults,
// optionally overlaid by a YAML/JSON file at path (skipped if path is
// empty), then overlaid by environment variables, then validated.
func LoadMasterConfig(path string) (MasterConfig, error) {
	cfg := DefaultMasterConfig()

	if path != "" {
		loader := infraconfig.NewLoader()
		if err := loader.LoadFile(path, &cfg); err != nil {
			return MasterConfig{}, err
		}
	}

	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return MasterConfig{}, fmt.Errorf("%w: PORT must be an integer: %v", domainconfig.ErrInvalidFormat, err)
		}
		cfg.Port = port
	}
	if v, ok := os.LookupEnv("STORE_BACKEND"); ok {
		cfg.StoreBackend = StoreBackend(v)
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		cfg.RedisURL = v
	}
	if v, ok := os.LookupEnv("REDIS_KEY_PREFIX"); ok {
		cfg.RedisKeyPrefix = v
	}

	if cfg.Timeouts == (scheduler.Timeouts{}) {
		cfg.Timeouts = scheduler.DefaultTimeouts()
	}

	if err := cfg.Validate(); err != nil {
		return MasterConfig{}, err
	}
	return cfg, nil
}

// LoadWorkerConfig builds a WorkerConfig starting from the defaults,
// optionally overlaid by a YAML/JSON file at path, then overlaid by
// environment variables, then validated.
func LoadWorkerConfig(path string) (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()

	if path != "" {
		loader := infraconfig.NewLoader()
		if err := loader.LoadFile(path, &cfg); err != nil {
			return WorkerConfig{}, err
		}
	}

	if v, ok := os.LookupEnv("MASTER_SERVER_URL"); ok {
		cfg.MasterServerURL = v
	}
	if v, ok := os.LookupEnv("WORKER_ID"); ok {
		cfg.WorkerID = v
	}

	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = scheduler.DefaultTimeouts().HeartbeatInterval
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return WorkerConfig{}, err
	}
	return cfg, nil
}

// Validate checks the MasterConfig for internal consistency.
func (c MasterConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", domainconfig.ErrValidationFailed, c.Port)
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: redis backend requires REDIS_URL", domainconfig.ErrValidationFailed)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", domainconfig.ErrValidationFailed, c.StoreBackend)
	}
	if c.Timeouts.HeartbeatTimeout < 2*c.Timeouts.HeartbeatInterval {
		return fmt.Errorf("%w: heartbeat timeout must be at least 2x the heartbeat interval", domainconfig.ErrValidationFailed)
	}
	return nil
}

// Validate checks the WorkerConfig for internal consistency.
func (c WorkerConfig) Validate() error {
	if c.MasterServerURL == "" {
		return fmt.Errorf("%w: master server URL is required", domainconfig.ErrValidationFailed)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", domainconfig.ErrValidationFailed)
	}
	return nil
}
