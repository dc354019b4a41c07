// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"starrail_calendar/internal/filter"
	"starrail_calendar/internal/model"
	"starrail_calendar/internal/storage"
)

// environment is the raw variable layout read by cleanenv.
type environment struct {
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN"`
	StorageDriver    string        `env:"STORAGE_DRIVER" env-default:"json"`
	DataPath         string        `env:"DATA_PATH"`
	LogLevel         string        `env:"LOG_LEVEL" env-default:"info"`
	AllowedUsers     string        `env:"ALLOWED_USERS"`
	Timezone         string        `env:"TIMEZONE"`
	MisfireGrace     time.Duration `env:"MISFIRE_GRACE" env-default:"10m"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT" env-default:"60s"`
	SendRate         float64       `env:"SEND_RATE" env-default:"1"`
	DefaultRegion    string        `env:"DEFAULT_REGION" env-default:"cn"`
	CommandAliases   []string      `env:"COMMAND_ALIASES" env-default:"星穹日历,星琼日历,星铁日历,崩铁日历"`
	CalendarFeeds    string        `env:"CALENDAR_FEEDS"`
	CalendarLookback time.Duration `env:"CALENDAR_LOOKBACK" env-default:"336h"`
	CalendarFilters  string        `env:"CALENDAR_FILTERS"`
	RendererURL      string        `env:"RENDERER_URL" env-default:"http://localhost:3000/screenshot"`
	RendererToken    string        `env:"RENDERER_TOKEN"`
	ViewportWidth    int           `env:"VIEWPORT_WIDTH" env-default:"1000"`
	ViewportHeight   int           `env:"VIEWPORT_HEIGHT" env-default:"1200"`
	CacheTTL         time.Duration `env:"CACHE_TTL" env-default:"30m"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" env-default:"0"`
	OpsAddr          string        `env:"OPS_ADDR"`
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	StorageDriver    string
	DataPath         string
	LogLevel         string
	AllowedUsers     []int64
	Location         *time.Location
	MisfireGrace     time.Duration
	SendTimeout      time.Duration
	SendRate         float64
	DefaultRegion    string
	CommandAliases   []string
	Feeds            map[string]string
	Lookback         time.Duration
	Filters          []model.Filter
	RendererURL      string
	RendererToken    string
	ViewportWidth    int
	ViewportHeight   int
	CacheTTL         time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	OpsAddr          string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var env environment
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if env.TelegramBotToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	driver := strings.ToLower(strings.TrimSpace(env.StorageDriver))
	dataPath := env.DataPath
	switch driver {
	case "", storage.DriverJSON:
		driver = storage.DriverJSON
		if dataPath == "" {
			dataPath = "./data/data.json"
		}
	case storage.DriverSQLite, "sqlite3":
		driver = storage.DriverSQLite
		if dataPath == "" {
			dataPath = "./data/bot.db"
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", env.StorageDriver)
	}

	allowedUsers, err := parseUserIDs(env.AllowedUsers)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if env.Timezone != "" {
		loc, err = time.LoadLocation(env.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", env.Timezone, err)
		}
	}

	feeds, err := ParseFeeds(env.CalendarFeeds)
	if err != nil {
		return nil, err
	}
	region := strings.ToLower(strings.TrimSpace(env.DefaultRegion))
	if _, ok := feeds[region]; !ok {
		return nil, fmt.Errorf("CALENDAR_FEEDS has no feed for DEFAULT_REGION %q", region)
	}

	filters, err := filter.ParseRules(env.CalendarFilters)
	if err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_FILTERS: %w", err)
	}
	if _, err := filter.Compile(filters); err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_FILTERS: %w", err)
	}

	if env.ViewportWidth <= 0 || env.ViewportHeight <= 0 {
		return nil, fmt.Errorf("viewport must be positive, got %dx%d", env.ViewportWidth, env.ViewportHeight)
	}
	if env.MisfireGrace < 0 || env.SendTimeout < 0 || env.CacheTTL < 0 {
		return nil, errors.New("durations must not be negative")
	}

	var aliases []string
	for _, a := range env.CommandAliases {
		if a = strings.TrimSpace(a); a != "" {
			aliases = append(aliases, a)
		}
	}

	return &Config{
		TelegramBotToken: env.TelegramBotToken,
		StorageDriver:    driver,
		DataPath:         dataPath,
		LogLevel:         env.LogLevel,
		AllowedUsers:     allowedUsers,
		Location:         loc,
		MisfireGrace:     env.MisfireGrace,
		SendTimeout:      env.SendTimeout,
		SendRate:         env.SendRate,
		DefaultRegion:    region,
		CommandAliases:   aliases,
		Feeds:            feeds,
		Lookback:         env.CalendarLookback,
		Filters:          filters,
		RendererURL:      env.RendererURL,
		RendererToken:    env.RendererToken,
		ViewportWidth:    env.ViewportWidth,
		ViewportHeight:   env.ViewportHeight,
		CacheTTL:         env.CacheTTL,
		RedisAddr:        env.RedisAddr,
		RedisPassword:    env.RedisPassword,
		RedisDB:          env.RedisDB,
		OpsAddr:          env.OpsAddr,
	}, nil
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}

// ParseFeeds parses comma-separated "region=url" pairs. Regions are lower-cased.
func ParseFeeds(raw string) (map[string]string, error) {
	feeds := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		region, url, ok := strings.Cut(pair, "=")
		region = strings.ToLower(strings.TrimSpace(region))
		url = strings.TrimSpace(url)
		if !ok || region == "" || url == "" {
			return nil, fmt.Errorf("invalid CALENDAR_FEEDS entry %q: want region=url", pair)
		}
		feeds[region] = url
	}
	return feeds, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
