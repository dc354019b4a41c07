package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"starrail_calendar/internal/model"
)

// SchemaVersion is the on-disk version written by JSONFile.
const SchemaVersion = 1

// ErrUnsupportedVersion is returned when the document was written by a newer release.
var ErrUnsupportedVersion = errors.New("unsupported data file version")

type document struct {
	Version int                    `json:"version"`
	Groups  map[string]groupRecord `json:"groups"`
}

type groupRecord struct {
	ServerList []string   `json:"server_list"`
	Hour       int        `json:"hour"`
	Minute     int        `json:"minute"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
}

// JSONFile implements Storage as a single JSON document.
//
// Writes go to a sibling temp file which is synced and renamed over the
// target, so a crash leaves either the old or the new document.
type JSONFile struct {
	mu   sync.Mutex
	path string
}

// NewJSONFile returns a store backed by the file at path. The file is created on first save.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the document location.
func (s *JSONFile) Path() string { return s.path }

// Load reads all subscriptions. A missing file yields an empty map.
func (s *JSONFile) Load(_ context.Context) (map[int64]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[int64]model.Subscription{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	return decodeDocument(data)
}

// Save atomically replaces the document with subs.
func (s *JSONFile) Save(_ context.Context, subs map[int64]model.Subscription) error {
	doc := document{Version: SchemaVersion, Groups: make(map[string]groupRecord, len(subs))}
	for id, sub := range subs {
		doc.Groups[strconv.FormatInt(id, 10)] = groupRecord{
			ServerList: sub.Servers,
			Hour:       sub.Hour,
			Minute:     sub.Minute,
			LastSentAt: sub.LastSentAt,
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, data)
}

// Close is a no-op; the file is only open during Load and Save.
func (s *JSONFile) Close() error { return nil }

func decodeDocument(data []byte) (map[int64]model.Subscription, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode data file: %w", err)
	}

	var groups map[string]groupRecord
	if _, ok := probe["version"]; ok {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode data file: %w", err)
		}
		if doc.Version > SchemaVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
		}
		groups = doc.Groups
	} else {
		// Unversioned layout: group ids are the top-level keys.
		if err := json.Unmarshal(data, &groups); err != nil {
			return nil, fmt.Errorf("decode legacy data file: %w", err)
		}
	}

	out := make(map[int64]model.Subscription, len(groups))
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid group id %q: %w", k, err)
		}
		rec := groups[k]
		out[id] = model.Subscription{
			GroupID:    id,
			Servers:    rec.ServerList,
			Hour:       rec.Hour,
			Minute:     rec.Minute,
			LastSentAt: rec.LastSentAt,
		}
	}
	return out, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}
