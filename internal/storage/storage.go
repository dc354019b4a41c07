// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"fmt"
	"strings"

	"starrail_calendar/internal/model"
)

// Storage loads and saves the full set of subscriptions.
//
// Save replaces everything previously stored. Callers that mutate a single
// record are expected to serialize load-mutate-save themselves.
type Storage interface {
	Load(ctx context.Context) (map[int64]model.Subscription, error)
	Save(ctx context.Context, subs map[int64]model.Subscription) error
	Close() error
}

// Supported drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns the storage backend for driver rooted at path.
func Open(driver, path string) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverJSON:
		return NewJSONFile(path), nil
	case DriverSQLite, "sqlite3":
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
