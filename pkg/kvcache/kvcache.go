// Package kvcache provides an expiring key/value store used for short-lived
// process state such as password-reset verification codes. The interface is
// backend-agnostic so the store can be moved to Redis when the service runs
// as more than one instance.
package kvcache

import (
	"context"
	"time"
)

// Store is an expiring key/value store.
type Store interface {
	// Put stores value under key for ttl. A zero ttl means no expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether a live entry exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any background resources held by the store.
	Close() error
}
