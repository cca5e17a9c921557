package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Config.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds store initialization parameters.
type Config struct {
	Backend  string `json:"backend,omitempty"`  // file | memory | sqlite | redis
	Path     string `json:"path,omitempty"`     // file root dir, or sqlite db path
	Addr     string `json:"addr,omitempty"`     // redis address
	Password string `json:"password,omitempty"` // redis password
	DB       int    `json:"db,omitempty"`       // redis database number
}

// DefaultConfig returns the default store configuration: a file store under
// ./data/chatkit.
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Path:    "./data/chatkit",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.Password != "" {
		c.Password = source.Password
	}
	if source.DB != 0 {
		c.DB = source.DB
	}
}

// New creates a Store from configuration.
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.Path), nil
	case BackendMemory:
		return NewMemStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.Path)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
