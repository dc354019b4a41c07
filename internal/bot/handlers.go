package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"starrail_calendar/internal/metrics"
	"starrail_calendar/internal/model"
	"starrail_calendar/internal/registry"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	kind, args := ParseTrigger(msg.Text, b.name, b.cfg.CommandAliases)
	if kind == TriggerNone {
		return
	}
	chatID := msg.Chat.ID

	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	if !b.cfg.IsUserAllowed(userID) {
		b.reply(ctx, chatID, msgAccessDenied)
		return
	}

	if kind == TriggerHelp {
		b.reply(ctx, chatID, FormatUsage(b.cfg.CommandAliases))
		return
	}

	intent, err := ParseIntent(args)
	metrics.Commands.WithLabelValues(intent.Kind.String()).Inc()
	b.log.Debug("command", "intent", intent.Kind.String(), "args", args, "chat_id", chatID, "chat_type", msg.Chat.Type)

	switch intent.Kind {
	case IntentQuery:
		b.handleQuery(ctx, chatID)
		return
	case IntentUnknown:
		b.reply(ctx, chatID, FormatUsage(b.cfg.CommandAliases))
		return
	}

	if msg.Chat.IsPrivate() {
		b.reply(ctx, chatID, msgPrivateOnlyQuery)
		return
	}

	switch intent.Kind {
	case IntentSubscribe:
		if msg.Chat.IsChannel() {
			b.reply(ctx, chatID, msgChannelNoPush)
			return
		}
		b.handleSubscribe(ctx, chatID)
	case IntentUnsubscribe:
		b.handleUnsubscribe(ctx, chatID)
	case IntentSetTime:
		if err != nil {
			b.reply(ctx, chatID, msgInvalidTime)
			return
		}
		b.handleSetTime(ctx, chatID, intent.Hour, intent.Minute)
	case IntentStatus:
		b.handleStatus(ctx, chatID)
	}
}

func (b *Bot) handleQuery(ctx context.Context, chatID int64) {
	img, err := b.renderer.Render(ctx, b.cfg.DefaultRegion, b.viewport())
	if err != nil {
		b.log.Error("render calendar", "chat_id", chatID, "region", b.cfg.DefaultRegion, "error", err)
		b.reply(ctx, chatID, msgRenderFailed)
		return
	}
	if err := b.sendPhoto(ctx, chatID, img); err != nil {
		b.log.Error("send calendar", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64) {
	defer b.lockChat(chatID)()

	prev, had := b.subs.Get(chatID)
	sub := model.NewSubscription(chatID, b.cfg.DefaultRegion)
	if err := b.subs.Upsert(ctx, sub); err != nil {
		b.log.Error("save subscription", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, msgStoreFailed)
		return
	}
	if err := b.jobs.Ensure(chatID, sub); err != nil {
		b.log.Error("schedule subscription", "chat_id", chatID, "error", err)
		if err := b.restoreSubscription(ctx, chatID, prev, had); err != nil {
			b.log.Error("undo subscription", "chat_id", chatID, "error", err)
		}
		b.reply(ctx, chatID, msgStoreFailed)
		return
	}
	metrics.Subscriptions.Set(float64(b.subs.Len()))
	b.log.Info("subscribed", "chat_id", chatID, "time", sub.Clock())
	b.reply(ctx, chatID, FormatSubscribed(sub))
}

// restoreSubscription puts back the record that existed before a failed subscribe.
func (b *Bot) restoreSubscription(ctx context.Context, chatID int64, prev model.Subscription, had bool) error {
	if !had {
		_, err := b.subs.Remove(ctx, chatID)
		return err
	}
	if err := b.subs.Upsert(ctx, prev); err != nil {
		return err
	}
	return b.jobs.Ensure(chatID, prev)
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64) {
	defer b.lockChat(chatID)()

	removed, err := b.subs.Remove(ctx, chatID)
	if err != nil {
		b.log.Error("remove subscription", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, msgStoreFailed)
		return
	}
	b.jobs.Remove(chatID)
	if !removed {
		b.reply(ctx, chatID, msgNotSubscribed)
		return
	}
	metrics.Subscriptions.Set(float64(b.subs.Len()))
	b.log.Info("unsubscribed", "chat_id", chatID)
	b.reply(ctx, chatID, FormatUnsubscribed())
}

func (b *Bot) handleSetTime(ctx context.Context, chatID int64, hour, minute int) {
	defer b.lockChat(chatID)()

	sub, err := b.subs.Update(ctx, chatID, func(s *model.Subscription) error {
		s.Hour = hour
		s.Minute = minute
		return nil
	})
	switch {
	case errors.Is(err, registry.ErrNotSubscribed):
		b.reply(ctx, chatID, msgNotSubscribed)
		return
	case err != nil:
		b.log.Error("update subscription", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, msgStoreFailed)
		return
	}
	if err := b.jobs.Ensure(chatID, sub); err != nil {
		b.log.Error("reschedule subscription", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, msgStoreFailed)
		return
	}
	b.log.Info("delivery time changed", "chat_id", chatID, "time", sub.Clock())
	b.reply(ctx, chatID, FormatTimeSet(sub))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	sub, ok := b.subs.Get(chatID)
	if !ok {
		b.reply(ctx, chatID, msgNotSubscribed)
		return
	}
	next, hasNext := b.jobs.Next(chatID)
	b.reply(ctx, chatID, FormatStatus(sub, next, hasNext, b.location()))
}
