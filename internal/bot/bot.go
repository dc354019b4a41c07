package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"starrail_calendar/internal/calendar"
	"starrail_calendar/internal/config"
	"starrail_calendar/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Subscriptions is the registry the command handlers mutate.
type Subscriptions interface {
	Get(groupID int64) (model.Subscription, bool)
	Upsert(ctx context.Context, sub model.Subscription) error
	Update(ctx context.Context, groupID int64, fn func(*model.Subscription) error) (model.Subscription, error)
	Remove(ctx context.Context, groupID int64) (bool, error)
	Len() int
}

// Jobs is the scheduler view the command handlers keep in sync.
type Jobs interface {
	Ensure(groupID int64, sub model.Subscription) error
	Remove(groupID int64) bool
	Next(groupID int64) (time.Time, bool)
}

// Renderer produces calendar images.
type Renderer interface {
	Render(ctx context.Context, region string, vp calendar.Viewport) ([]byte, error)
}

// Bot is the Telegram bot that answers calendar commands and delivers scheduled calendars.
type Bot struct {
	api      telegramAPI
	name     string
	subs     Subscriptions
	jobs     Jobs
	renderer Renderer
	cfg      *config.Config
	log      *slog.Logger
	limiter  *rate.Limiter
	handlers sync.WaitGroup

	// chatLocks serialises registry and job changes per chat.
	chatLocks sync.Map // int64 -> *sync.Mutex
}

// New creates a Bot connected to the Telegram Bot API.
func New(cfg *config.Config, subs Subscriptions, jobs Jobs, renderer Renderer, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized", "bot", api.Self.UserName)
	return newBot(api, api.Self.UserName, cfg, subs, jobs, renderer, log), nil
}

func newBot(api telegramAPI, name string, cfg *config.Config, subs Subscriptions, jobs Jobs, renderer Renderer, log *slog.Logger) *Bot {
	limit := rate.Inf
	if cfg.SendRate > 0 && !math.IsInf(cfg.SendRate, 1) {
		limit = rate.Limit(cfg.SendRate)
	}
	return &Bot{
		api:      api,
		name:     name,
		subs:     subs,
		jobs:     jobs,
		renderer: renderer,
		cfg:      cfg,
		log:      log,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// lockChat acquires the per-chat command lock and returns its release func.
func (b *Bot) lockChat(chatID int64) func() {
	v, _ := b.chatLocks.LoadOrStore(chatID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and in-flight commands have finished.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil {
				msg = update.ChannelPost
			}
			if msg == nil || msg.Chat == nil {
				continue
			}
			b.handlers.Add(1)
			go func() {
				defer b.handlers.Done()
				b.handleMessage(ctx, msg)
			}()
		}
	}
}

// DeliverCalendar renders and sends the calendar of every region in sub to its group.
func (b *Bot) DeliverCalendar(ctx context.Context, sub model.Subscription) error {
	var errs []error
	for _, region := range sub.Servers {
		img, err := b.renderer.Render(ctx, region, b.viewport())
		if err != nil {
			errs = append(errs, fmt.Errorf("render %s: %w", region, err))
			continue
		}
		if err := b.sendPhoto(ctx, sub.GroupID, img); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *Bot) sendPhoto(ctx context.Context, chatID int64, img []byte) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "calendar.png", Bytes: img})
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.SendMessage(ctx, chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) viewport() calendar.Viewport {
	return calendar.Viewport{Width: b.cfg.ViewportWidth, Height: b.cfg.ViewportHeight}
}

func (b *Bot) location() *time.Location {
	if b.cfg.Location == nil {
		return time.Local
	}
	return b.cfg.Location
}
