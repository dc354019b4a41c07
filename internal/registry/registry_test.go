package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"starrail_calendar/internal/model"
	"starrail_calendar/internal/storage"
)

type flakyStore struct {
	mu    sync.Mutex
	fail  bool
	saved map[int64]model.Subscription
	saves int
}

func (f *flakyStore) Load(context.Context) (map[int64]model.Subscription, error) {
	return map[int64]model.Subscription{}, nil
}

func (f *flakyStore) Save(_ context.Context, subs map[int64]model.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.fail {
		return errors.New("disk full")
	}
	f.saved = subs
	return nil
}

func (f *flakyStore) Close() error { return nil }

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func newFileRegistry(t *testing.T) (*Registry, *storage.JSONFile) {
	t.Helper()
	store := storage.NewJSONFile(filepath.Join(t.TempDir(), "calendar.json"))
	r, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return r, store
}

func TestUpsertGetRemove(t *testing.T) {
	ctx := context.Background()
	r, store := newFileRegistry(t)

	sub := model.NewSubscription(-100, "cn")
	if err := r.Upsert(ctx, sub); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok := r.Get(-100)
	if !ok {
		t.Fatal("expected subscription")
	}
	if diff := cmp.Diff(sub, got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}

	onDisk, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(map[int64]model.Subscription{-100: sub}, onDisk); diff != "" {
		t.Errorf("store mismatch (-want +got):\n%s", diff)
	}

	removed, err := r.Remove(ctx, -100)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected removed = true")
	}
	if _, ok := r.Get(-100); ok {
		t.Error("subscription still present after remove")
	}

	removed, err = r.Remove(ctx, -100)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed {
		t.Error("expected removed = false for missing group")
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	r, _ := newFileRegistry(t)

	err := r.Upsert(context.Background(), model.Subscription{GroupID: 1, Servers: []string{"cn"}, Hour: 24})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestUpdateNotSubscribed(t *testing.T) {
	r, _ := newFileRegistry(t)

	_, err := r.Update(context.Background(), 42, func(s *model.Subscription) error {
		s.Hour = 9
		return nil
	})
	if !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("error = %v, want ErrNotSubscribed", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r, _ := newFileRegistry(t)

	if err := r.Upsert(ctx, model.NewSubscription(1, "cn")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ := r.Get(1)
	got.Servers[0] = "os"

	again, _ := r.Get(1)
	if diff := cmp.Diff([]string{"cn"}, again.Servers); diff != "" {
		t.Errorf("registry mutated through copy (-want +got):\n%s", diff)
	}
}

func TestSaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{}
	r, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := r.Upsert(ctx, model.NewSubscription(1, "cn")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	store.setFail(true)

	if err := r.Upsert(ctx, model.NewSubscription(2, "cn")); err == nil {
		t.Fatal("expected save error on upsert")
	}
	if _, ok := r.Get(2); ok {
		t.Error("failed upsert left a record behind")
	}

	if _, err := r.Update(ctx, 1, func(s *model.Subscription) error { s.Hour = 22; return nil }); err == nil {
		t.Fatal("expected save error on update")
	}
	got, _ := r.Get(1)
	if diff := cmp.Diff(model.DefaultHour, got.Hour); diff != "" {
		t.Errorf("failed update changed hour (-want +got):\n%s", diff)
	}

	if _, err := r.Remove(ctx, 1); err == nil {
		t.Fatal("expected save error on remove")
	}
	if _, ok := r.Get(1); !ok {
		t.Error("failed remove dropped the record")
	}

	// The next command succeeds once storage recovers.
	store.setFail(false)
	if err := r.Upsert(ctx, model.NewSubscription(2, "cn")); err != nil {
		t.Fatalf("upsert after recovery: %v", err)
	}
	if diff := cmp.Diff(2, len(store.saved)); diff != "" {
		t.Errorf("saved count (-want +got):\n%s", diff)
	}
}

func TestConcurrentUpdatesKeepEveryGroup(t *testing.T) {
	ctx := context.Background()
	r, store := newFileRegistry(t)

	const groups = 20
	for id := int64(1); id <= groups; id++ {
		if err := r.Upsert(ctx, model.NewSubscription(id, "cn")); err != nil {
			t.Fatalf("upsert %d: %v", id, err)
		}
	}

	var wg sync.WaitGroup
	for id := int64(1); id <= groups; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := r.Update(ctx, id, func(s *model.Subscription) error {
				s.Hour = int(id % 24)
				s.Minute = int(id)
				return nil
			})
			if err != nil {
				t.Errorf("update %d: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	onDisk, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for id := int64(1); id <= groups; id++ {
		got := onDisk[id]
		want := model.Subscription{GroupID: id, Servers: []string{"cn"}, Hour: int(id % 24), Minute: int(id)}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("group %d mismatch (-want +got):\n%s", id, diff)
		}
	}
}

func TestMarkDelivered(t *testing.T) {
	ctx := context.Background()
	r, _ := newFileRegistry(t)

	if err := r.Upsert(ctx, model.NewSubscription(7, "cn")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	if err := r.MarkDelivered(ctx, 7, at); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	got, _ := r.Get(7)
	if got.LastSentAt == nil || !got.LastSentAt.Equal(at) {
		t.Errorf("LastSentAt = %v, want %v", got.LastSentAt, at)
	}

	if err := r.MarkDelivered(ctx, 8, at); err != nil {
		t.Errorf("mark delivered for unknown group: %v", err)
	}
}

func TestOpenReloadsStore(t *testing.T) {
	ctx := context.Background()
	r, store := newFileRegistry(t)

	if err := r.Upsert(ctx, model.NewSubscription(3, "cn")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	reopened, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if diff := cmp.Diff(r.All(), reopened.All()); diff != "" {
		t.Errorf("reopened registry mismatch (-want +got):\n%s", diff)
	}
}
