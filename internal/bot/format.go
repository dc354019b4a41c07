package bot

import (
	"fmt"
	"strings"
	"time"

	"starrail_calendar/internal/model"
)

const timeLayout = "2006-01-02 15:04 MST"

// Reply texts.
const (
	msgPrivateOnlyQuery = "Subscriptions can only be managed in group chats. Send /srcl to view today's calendar."
	msgChannelNoPush    = "Daily delivery is not supported in channels yet."
	msgNotSubscribed    = "This chat has no calendar subscription."
	msgInvalidTime      = "Please give a valid time in HH:mm format, 24-hour clock, for example: /srcl time 08:30"
	msgStoreFailed      = "Could not save the subscription, please try again later."
	msgRenderFailed     = "Could not generate the calendar right now, please try again later."
	msgAccessDenied     = "Access denied."
)

// FormatUsage returns the help text listing the calendar commands and aliases.
func FormatUsage(aliases []string) string {
	var b strings.Builder
	b.WriteString(`Honkai: Star Rail event calendar

/srcl — show today's calendar
/srcl on — enable daily delivery in this group (08:00 by default)
/srcl off — disable daily delivery
/srcl time HH:mm — set the delivery time (24-hour clock)
/srcl status — show the subscription settings`)
	if len(aliases) > 0 {
		fmt.Fprintf(&b, "\n\nAliases: /calendar, %s", strings.Join(aliases, ", "))
	}
	return b.String()
}

// FormatSubscribed confirms a new subscription.
func FormatSubscribed(sub model.Subscription) string {
	return fmt.Sprintf("Daily calendar delivery enabled, every day at %s.", sub.Clock())
}

// FormatUnsubscribed confirms a removed subscription.
func FormatUnsubscribed() string {
	return "Daily calendar delivery disabled."
}

// FormatTimeSet confirms a changed delivery time.
func FormatTimeSet(sub model.Subscription) string {
	return fmt.Sprintf("Delivery time set to %s.", sub.Clock())
}

// FormatStatus describes a subscription and its next run in loc.
func FormatStatus(sub model.Subscription, next time.Time, hasNext bool, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subscribed to the %s server calendar, daily at %s.", strings.Join(sub.Servers, ", "), sub.Clock())
	if hasNext {
		fmt.Fprintf(&b, "\nNext delivery: %s", next.In(loc).Format(timeLayout))
	}
	if sub.LastSentAt != nil {
		fmt.Fprintf(&b, "\nLast delivered: %s", sub.LastSentAt.In(loc).Format(timeLayout))
	}
	return b.String()
}
