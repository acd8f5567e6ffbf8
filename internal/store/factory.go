package store

import "errormonitor/internal/types"

// NewStore selects a Store implementation based on configuration: a Redis
// DSN picks RedisStore for shared multi-process deployments, an empty DSN
// falls back to MemoryStore for local development and tests.
func NewStore(cfg types.ConfigManager) (Store, error) {
	dsn := cfg.GetRedisDSN()
	if dsn == "" {
		return NewMemoryStore(), nil
	}
	return NewRedisStore(dsn)
}
