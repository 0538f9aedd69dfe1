// Package cache provides the key/value stores and per-key locks shared by
// API replicas. Redis backs both when configured; otherwise everything is
// held in process.
package cache

import (
	"context"
	"time"
)

// Store keeps opaque values under string keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Locker hands out exclusive, expiring locks on keys. The returned release
// func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
