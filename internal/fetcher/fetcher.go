// Package fetcher downloads announcement feeds and turns their items into calendar events.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"starrail_calendar/internal/model"
)

const maxSummaryRunes = 300

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses announcement feeds.
type Fetcher struct {
	client HTTPClient
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads the feed at url and returns its items as events, newest first.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]model.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "StarRailCalendarBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	events := make([]model.Event, 0, len(feed.Items))
	for _, item := range feed.Items {
		events = append(events, ToEvent(item))
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Published.After(events[j].Published)
	})
	return events, nil
}

// ToEvent converts a feed item. Items without a date keep the zero time.
func ToEvent(item *gofeed.Item) model.Event {
	ev := model.Event{
		Title:   item.Title,
		Summary: item.Description,
		Link:    item.Link,
		GUID:    ItemGUID(item),
	}
	switch {
	case item.PublishedParsed != nil:
		ev.Published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		ev.Published = *item.UpdatedParsed
	}
	if r := []rune(ev.Summary); len(r) > maxSummaryRunes {
		ev.Summary = string(r[:maxSummaryRunes]) + "..."
	}
	return ev
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// Since keeps events published at or after cutoff. Undated events are kept.
func Since(events []model.Event, cutoff time.Time) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Published.IsZero() || !ev.Published.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}
