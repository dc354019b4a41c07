package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"starrail_calendar/internal/model"
	"starrail_calendar/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load returns every stored subscription.
func (s *SQLite) Load(ctx context.Context) (map[int64]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, servers, hour, minute, last_sent_at FROM subscriptions ORDER BY group_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64]model.Subscription)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out[sub.GroupID] = sub
	}
	return out, rows.Err()
}

// Save replaces all rows with subs in a single transaction.
func (s *SQLite) Save(ctx context.Context, subs map[int64]model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("clear subscriptions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO subscriptions (group_id, servers, hour, minute, last_sent_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for id, sub := range subs {
		var lastSent *string
		if sub.LastSentAt != nil {
			v := sub.LastSentAt.UTC().Format(timeLayout)
			lastSent = &v
		}
		if _, err := stmt.ExecContext(ctx, id, strings.Join(sub.Servers, ","), sub.Hour, sub.Minute, lastSent); err != nil {
			return fmt.Errorf("insert subscription %d: %w", id, err)
		}
	}
	return tx.Commit()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (model.Subscription, error) {
	var sub model.Subscription
	var servers string
	var lastSent sql.NullString
	if err := row.Scan(&sub.GroupID, &servers, &sub.Hour, &sub.Minute, &lastSent); err != nil {
		return sub, fmt.Errorf("scan subscription: %w", err)
	}
	if servers != "" {
		sub.Servers = strings.Split(servers, ",")
	}
	if lastSent.Valid {
		t, err := time.Parse(timeLayout, lastSent.String)
		if err != nil {
			return sub, fmt.Errorf("parse last_sent_at of group %d: %w", sub.GroupID, err)
		}
		sub.LastSentAt = &t
	}
	return sub, nil
}
