package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"starrail_calendar/internal/model"
)

func newTestFile(t *testing.T) *JSONFile {
	t.Helper()
	return NewJSONFile(filepath.Join(t.TempDir(), "nested", "calendar.json"))
}

func TestJSONFileMissingIsEmpty(t *testing.T) {
	s := newTestFile(t)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(map[int64]model.Subscription{}, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestFile(t)

	sent := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	want := map[int64]model.Subscription{
		-100123: {GroupID: -100123, Servers: []string{"cn"}, Hour: 8, Minute: 0},
		456:     {GroupID: 456, Servers: []string{"cn"}, Hour: 23, Minute: 59, LastSentAt: &sent},
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(s.Path() + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestJSONFileLegacyLayout(t *testing.T) {
	ctx := context.Background()
	s := newTestFile(t)

	legacy := `{
  "123456": {"server_list": ["cn"], "hour": 8, "minute": 0},
  "654321": {"server_list": ["cn"], "hour": 19, "minute": 5}
}`
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(s.Path(), []byte(legacy), 0o600); err != nil {
		t.Fatalf("write legacy: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[int64]model.Subscription{
		123456: {GroupID: 123456, Servers: []string{"cn"}, Hour: 8, Minute: 0},
		654321: {GroupID: 654321, Servers: []string{"cn"}, Hour: 19, Minute: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}

	// Saving rewrites the document in the versioned layout.
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	again, err := decodeDocument(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(want, again); diff != "" {
		t.Errorf("migrated document mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONFileDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "not json", data: "{"},
		{name: "bad group id", data: `{"version": 1, "groups": {"abc": {"server_list": ["cn"]}}}`},
		{name: "future version", data: `{"version": 99, "groups": {}}`, wantErr: ErrUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeDocument([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
