// Package cache stores rendered calendar images for a limited time.
package cache

import (
	"context"
	"time"
)

// Cache is a byte cache with per-entry expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}
