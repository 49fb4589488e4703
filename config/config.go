// Package config loads the server configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cyberinferno/go-abci/logger"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config is the full server configuration.
type Config struct {
	Name             string      `toml:"name"`
	ListenAddress    string      `toml:"listen_address"`
	LogLevel         string      `toml:"log_level"`
	LogDir           string      `toml:"log_dir"`
	MaxMessageSize   int         `toml:"max_message_size"`
	ExceptionOnError bool        `toml:"exception_on_error"`
	Concurrency      Concurrency `toml:"concurrency"`
	Cache            Cache       `toml:"cache"`
	KVStore          KVStore     `toml:"kvstore"`
}

// Concurrency bounds in-flight calls per handler category. Zero means
// unbounded.
type Concurrency struct {
	Consensus int `toml:"consensus"`
	Mempool   int `toml:"mempool"`
	Info      int `toml:"info"`
	Snapshot  int `toml:"snapshot"`
}

// Cache configures the query result cache.
type Cache struct {
	Backend      string   `toml:"backend"`
	TTL          Duration `toml:"ttl"`
	RedisAddress string   `toml:"redis_address"`
	RedisDB      int      `toml:"redis_db"`
	KeyPrefix    string   `toml:"key_prefix"`
}

type KVStore struct {
	SnapshotInterval int64 `toml:"snapshot_interval"`
	SnapshotKeep     int   `toml:"snapshot_keep"`
}

// Duration is a time.Duration read from a TOML string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Name:          "abci-kvstore",
		ListenAddress: "tcp://127.0.0.1:26658",
		LogLevel:      "info",
		Cache: Cache{
			Backend:   CacheBackendMemory,
			TTL:       Duration{time.Minute},
			KeyPrefix: "abci-kvstore:query:",
		},
		KVStore: KVStore{
			SnapshotInterval: 10,
			SnapshotKeep:     3,
		},
	}
}

// Load reads the TOML file at path over Default and validates the result.
//
// Parameters:
//   - path: Path of the TOML file; an empty path returns the defaults
//
// Returns:
//   - The configuration, or an error if the file cannot be read, parsed or validated
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ListenAddress) == "" {
		errs = append(errs, errors.New("listen_address is required"))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.MaxMessageSize < 0 {
		errs = append(errs, errors.New("max_message_size must not be negative"))
	}

	for name, n := range map[string]int{
		"consensus": c.Concurrency.Consensus,
		"mempool":   c.Concurrency.Mempool,
		"info":      c.Concurrency.Info,
		"snapshot":  c.Concurrency.Snapshot,
	} {
		if n < 0 {
			errs = append(errs, fmt.Errorf("concurrency.%s must not be negative", name))
		}
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.RedisAddress == "" {
			errs = append(errs, errors.New("cache.redis_address is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of %q, %q", c.Cache.Backend, CacheBackendMemory, CacheBackendRedis))
	}
	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}

	if c.KVStore.SnapshotInterval < 0 {
		errs = append(errs, errors.New("kvstore.snapshot_interval must not be negative"))
	}
	if c.KVStore.SnapshotKeep < 1 {
		errs = append(errs, errors.New("kvstore.snapshot_keep must be at least 1"))
	}

	return errors.Join(errs...)
}
