// Package store provides the key-value abstraction the monitor service uses
// for everything it does not persist in the request/error warehouse: error
// definitions, occurrence counters, baseline statistics and anomaly state.
// Two implementations exist: MemoryStore for single-process/dev use and
// RedisStore for multi-process deployments, selected by NewStore based on
// whether a Redis DSN is configured.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Get and Rotate when the requested key is absent
// or has expired.
var ErrNotFound = errors.New("store: key not found")

// Message is a pub/sub payload delivered to subscribers of a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription represents an active pub/sub subscription.
type Subscription interface {
	Channel() <-chan *Message
	Close() error
}

// Store is the full key-value surface the monitor service depends on. It
// combines simple KV, hash, list, set, sorted-set and pub/sub primitives so
// that error grouping, occurrence counting and anomaly bookkeeping can share
// a single backing store abstraction regardless of deployment size.
type Store interface {
	// Simple KV
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Del(keys ...string) error
	Exists(key string) (bool, error)
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)
	Expire(key string, ttl time.Duration) error

	// Hash
	HSet(key string, values map[string]any) error
	HGetAll(key string) (map[string]string, error)
	HIncrBy(key, field string, incr int64) (int64, error)

	// List
	LPush(key string, values ...any) error
	LRem(key string, count int64, value any) error
	Rotate(key string) (string, error)
	LLen(key string) (int64, error)

	// Set
	SAdd(key string, members ...any) error
	SPopN(key string, count int64) ([]string, error)
	SMembers(key string) ([]string, error)

	// Sorted set
	ZAdd(key string, member string, score float64) error
	ZIncrBy(key string, member string, incr float64) (float64, error)
	ZScore(key string, member string) (float64, bool, error)
	ZRank(key string, member string) (int64, bool, error)
	ZCard(key string) (int64, error)
	ZRangeByScore(key string, min, max float64) ([]ZMember, error)
	ZRevRangeByScore(key string, min, max float64) ([]ZMember, error)
	ZRemRangeByScore(key string, min, max float64) (int64, error)

	// Pub/Sub
	Publish(channel string, message []byte) error
	Subscribe(channel string) (Subscription, error)

	Close() error
}

// ZMember is one entry of a sorted-set range query.
type ZMember struct {
	Member string
	Score  float64
}
