package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"starrail_calendar/internal/bot"
	"starrail_calendar/internal/cache"
	"starrail_calendar/internal/calendar"
	"starrail_calendar/internal/config"
	"starrail_calendar/internal/fetcher"
	"starrail_calendar/internal/filter"
	"starrail_calendar/internal/metrics"
	"starrail_calendar/internal/ops"
	"starrail_calendar/internal/registry"
	"starrail_calendar/internal/scheduler"
	"starrail_calendar/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DataPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(cfg.StorageDriver, cfg.DataPath)
	if err != nil {
		log.Error("open storage", "driver", cfg.StorageDriver, "path", cfg.DataPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	reg, err := registry.Open(ctx, store)
	if err != nil {
		log.Error("load subscriptions", "path", cfg.DataPath, "error", err)
		os.Exit(1)
	}
	metrics.Subscriptions.Set(float64(reg.Len()))

	renderer, closeCache, err := newCalendar(ctx, cfg, log)
	if err != nil {
		log.Error("create calendar service", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	sched := scheduler.New(reg, scheduler.Config{
		Location:     cfg.Location,
		MisfireGrace: cfg.MisfireGrace,
		SendTimeout:  cfg.SendTimeout,
	}, log)

	b, err := bot.New(cfg, reg, sched, renderer, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched.Start(ctx, b)
	if err := sched.Reconcile(reg.All()); err != nil {
		log.Error("reconcile jobs", "error", err)
	}

	if cfg.OpsAddr != "" {
		srv := ops.New(cfg.OpsAddr, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error("ops server", "error", err)
			}
		}()
	}

	log.Info("starting bot", "subscriptions", reg.Len(), "storage", cfg.StorageDriver, "tz", cfg.Location.String())
	notify(log, daemon.SdNotifyReady)

	b.Run(ctx)

	notify(log, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.SendTimeout+5*time.Second)
	defer stopCancel()
	sched.Stop(stopCtx)

	log.Info("bot stopped")
}

func newCalendar(ctx context.Context, cfg *config.Config, log *slog.Logger) (*calendar.Service, func(), error) {
	filters, err := filter.Compile(cfg.Filters)
	if err != nil {
		return nil, nil, err
	}

	var c cache.Cache = cache.NewMemory()
	closeCache := func() {}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		c = rc
		closeCache = func() { _ = rc.Close() }
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	svc := calendar.NewService(
		fetcher.New(httpClient),
		calendar.NewScreenshotClient(httpClient, cfg.RendererURL, cfg.RendererToken),
		c,
		calendar.Options{
			Feeds:    cfg.Feeds,
			Lookback: cfg.Lookback,
			Filters:  filters,
			CacheTTL: cfg.CacheTTL,
			Timeout:  cfg.SendTimeout,
			Location: cfg.Location,
		},
		log,
	)
	return svc, closeCache, nil
}

func notify(log *slog.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Warn("systemd notify", "state", state, "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
