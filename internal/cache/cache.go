// Package cache provides the tool-result cache used by the executor.
// Entries are serialized JSON bodies keyed by a tool/URL/user hash.
package cache

import (
	"context"
	"time"
)

// Store is a TTL key-value store for serialized tool results.
// Get returns ("", false, nil) on a miss; errors are reserved for backend
// failures.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
