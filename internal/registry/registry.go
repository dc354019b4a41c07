// Package registry keeps the in-memory view of group subscriptions in lockstep with storage.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"starrail_calendar/internal/model"
	"starrail_calendar/internal/storage"
)

// ErrNotSubscribed is returned when a group has no subscription.
var ErrNotSubscribed = errors.New("group is not subscribed")

// Registry serializes every load-mutate-save cycle behind one mutex.
// A failed save rolls the in-memory change back, so memory and disk never diverge.
type Registry struct {
	mu    sync.Mutex
	store storage.Storage
	subs  map[int64]model.Subscription
}

// Open loads all subscriptions from store.
func Open(ctx context.Context, store storage.Storage) (*Registry, error) {
	subs, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	if subs == nil {
		subs = make(map[int64]model.Subscription)
	}
	return &Registry{store: store, subs: subs}, nil
}

// Get returns a copy of the group's subscription.
func (r *Registry) Get(groupID int64) (model.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[groupID]
	if !ok {
		return model.Subscription{}, false
	}
	return sub.Clone(), true
}

// All returns copies of every subscription ordered by group id.
func (r *Registry) All() []model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// Len returns the number of subscribed groups.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Upsert creates or replaces the group's subscription.
func (r *Registry) Upsert(ctx context.Context, sub model.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("invalid subscription: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(ctx, sub.Clone())
}

// Update applies fn to the group's subscription and persists the result.
func (r *Registry) Update(ctx context.Context, groupID int64, fn func(*model.Subscription) error) (model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.subs[groupID]
	if !ok {
		return model.Subscription{}, ErrNotSubscribed
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.Subscription{}, err
	}
	next.GroupID = groupID
	if err := next.Validate(); err != nil {
		return model.Subscription{}, fmt.Errorf("invalid subscription: %w", err)
	}
	if err := r.putLocked(ctx, next); err != nil {
		return model.Subscription{}, err
	}
	return next.Clone(), nil
}

// Remove deletes the group's subscription. It reports whether one existed.
func (r *Registry) Remove(ctx context.Context, groupID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.subs[groupID]
	if !ok {
		return false, nil
	}
	delete(r.subs, groupID)
	if err := r.store.Save(ctx, r.snapshotLocked()); err != nil {
		r.subs[groupID] = prev
		return false, fmt.Errorf("save subscriptions: %w", err)
	}
	return true, nil
}

// MarkDelivered records a successful scheduled delivery.
// A group that unsubscribed in the meantime is ignored.
func (r *Registry) MarkDelivered(ctx context.Context, groupID int64, at time.Time) error {
	_, err := r.Update(ctx, groupID, func(s *model.Subscription) error {
		t := at
		s.LastSentAt = &t
		return nil
	})
	if errors.Is(err, ErrNotSubscribed) {
		return nil
	}
	return err
}

func (r *Registry) putLocked(ctx context.Context, sub model.Subscription) error {
	prev, existed := r.subs[sub.GroupID]
	r.subs[sub.GroupID] = sub
	if err := r.store.Save(ctx, r.snapshotLocked()); err != nil {
		if existed {
			r.subs[sub.GroupID] = prev
		} else {
			delete(r.subs, sub.GroupID)
		}
		return fmt.Errorf("save subscriptions: %w", err)
	}
	return nil
}

func (r *Registry) snapshotLocked() map[int64]model.Subscription {
	out := make(map[int64]model.Subscription, len(r.subs))
	for id, sub := range r.subs {
		out[id] = sub.Clone()
	}
	return out
}
