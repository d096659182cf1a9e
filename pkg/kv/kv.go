// Package kv abstracts the shared external key-value store the proxy uses
// for cross-process metadata caching, content-addressed manifests, and the
// background-download work queue (§3, §4.B, §4.D, §6 of the specification
// this proxy implements). The store is expected to serialize individual
// commands and provide atomic RPopLPush, pipelined multi-get, and the
// standard hash/list/string primitives — a Redis-shaped contract.
package kv

import (
	"context"
	"time"
)

// Store is the shared KV contract the proxy depends on. It is implemented
// by Redis (pkg/kv.NewRedis) and by an in-memory fake for tests
// (pkg/kv.NewMemory).
type Store interface {
	// Get returns the value at key, or ErrNotFound if it does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// SetEX sets key to value with an expiry; a zero ttl stores the key
	// without expiry.
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del deletes one or more keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// MGet fetches multiple keys in one round trip (pipelined). Missing
	// keys are returned as nil entries at the corresponding position.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)

	// HSet sets one field in a hash.
	HSet(ctx context.Context, key, field string, value []byte) error
	// HGetAll returns every field/value pair in a hash.
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// LPush pushes values onto the head of a list.
	LPush(ctx context.Context, key string, values ...[]byte) error
	// RPopLPush atomically pops the tail of src and pushes it to the head
	// of dst, returning the moved value. Returns ErrNotFound if src is
	// empty. This is the primitive the background-download queue relies
	// on for at-least-once job handoff.
	RPopLPush(ctx context.Context, src, dst string) ([]byte, error)
	// LRem removes up to count occurrences of value from a list.
	LRem(ctx context.Context, key string, count int, value []byte) error
	// LLen returns the length of a list.
	LLen(ctx context.Context, key string) (int64, error)

	// SAdd adds members to a set.
	SAdd(ctx context.Context, key string, members ...[]byte) error

	// Ping verifies connectivity, used by the metadata store's HealthCheck
	// and the management HEALTH command.
	Ping(ctx context.Context) error

	// Close releases underlying connections.
	Close() error
}

// ErrNotFound is returned by Get/RPopLPush when the key/list is absent/empty.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "kv: not found" }
