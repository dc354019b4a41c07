// Package calendar produces the daily event calendar image for a server region.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"starrail_calendar/internal/cache"
	"starrail_calendar/internal/fetcher"
	"starrail_calendar/internal/filter"
	"starrail_calendar/internal/metrics"
	"starrail_calendar/internal/model"
)

// ErrUnknownRegion is returned when no announcement feed is configured for a region.
var ErrUnknownRegion = errors.New("unknown region")

// Viewport is the size of the rendered image in pixels.
type Viewport struct {
	Width  int
	Height int
}

// FeedSource loads announcements for one feed URL.
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]model.Event, error)
}

// Screenshotter turns an HTML page into a PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context, html string, vp Viewport) ([]byte, error)
}

// Options configures a Service.
type Options struct {
	Feeds    map[string]string
	Lookback time.Duration
	Filters  *filter.Set
	CacheTTL time.Duration
	Location *time.Location
	// Timeout bounds a shared render, independent of any single caller.
	Timeout  time.Duration
}

const defaultRenderTimeout = 2 * time.Minute

// Service renders calendar images with caching and request coalescing.
type Service struct {
	feeds FeedSource
	shots Screenshotter
	cache cache.Cache
	opts  Options
	log   *slog.Logger
	group singleflight.Group
	now   func() time.Time
}

// NewService creates a calendar Service. A nil cache disables caching.
func NewService(feeds FeedSource, shots Screenshotter, c cache.Cache, opts Options, log *slog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRenderTimeout
	}
	return &Service{
		feeds: feeds,
		shots: shots,
		cache: c,
		opts:  opts,
		log:   log,
		now:   time.Now,
	}
}

// CacheKey returns the cache key for a region's calendar on the given day.
func CacheKey(region string, day time.Time, vp Viewport) string {
	return fmt.Sprintf("calendar:%s:%s:%dx%d", region, day.Format("2006-01-02"), vp.Width, vp.Height)
}

// Render returns the PNG calendar for region.
func (s *Service) Render(ctx context.Context, region string, vp Viewport) ([]byte, error) {
	url, ok := s.opts.Feeds[region]
	if !ok {
		metrics.Renders.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("render %q: %w", region, ErrUnknownRegion)
	}

	now := s.now().In(s.opts.Location)
	key := CacheKey(region, now, vp)

	if s.cache != nil {
		img, hit, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("calendar cache get failed", "key", key, "error", err)
		}
		if hit {
			metrics.Renders.WithLabelValues("cached").Inc()
			return img, nil
		}
	}

	// The shared render must outlive whichever caller started it.
	ch := s.group.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
		defer cancel()

		img, err := s.render(rctx, url, region, now, vp)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(rctx, key, img, s.opts.CacheTTL); err != nil {
				s.log.Warn("calendar cache set failed", "key", key, "error", err)
			}
		}
		return img, nil
	})

	select {
	case <-ctx.Done():
		metrics.Renders.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("render %q: %w", region, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			metrics.Renders.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		metrics.Renders.WithLabelValues("ok").Inc()
		return res.Val.([]byte), nil
	}
}

func (s *Service) render(ctx context.Context, url, region string, now time.Time, vp Viewport) ([]byte, error) {
	events, err := s.feeds.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	events = s.Select(events, now)

	page, err := BuildPage(region, now, events)
	if err != nil {
		return nil, fmt.Errorf("build page: %w", err)
	}

	img, err := s.shots.Screenshot(ctx, page, vp)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	s.log.Debug("calendar rendered", "region", region, "events", len(events), "bytes", len(img))
	return img, nil
}

// Select keeps events inside the lookback window that pass the filters.
func (s *Service) Select(events []model.Event, now time.Time) []model.Event {
	if s.opts.Lookback > 0 {
		events = fetcher.Since(events, now.Add(-s.opts.Lookback))
	}
	return s.opts.Filters.Apply(events)
}
