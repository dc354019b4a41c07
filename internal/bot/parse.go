package bot

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidTime is returned when a time argument is not a valid 24-hour HH:mm.
var ErrInvalidTime = errors.New("invalid time, want HH:mm")

// Bot commands that address the calendar.
const (
	cmdCalendar = "srcl"
	cmdAlias    = "calendar"
	cmdStart    = "start"
	cmdHelp     = "help"
)

// TriggerKind tells what a message asked for.
type TriggerKind int

// Trigger kinds.
const (
	TriggerNone TriggerKind = iota
	TriggerCalendar
	TriggerHelp
)

// ParseTrigger detects whether text addresses the bot and returns the argument text.
// Bot commands may carry an "@botname" suffix; commands aimed at another bot are ignored.
// Aliases match as a plain-text prefix and need no separating space.
func ParseTrigger(text, botName string, aliases []string) (TriggerKind, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TriggerNone, ""
	}

	if strings.HasPrefix(text, "/") {
		head, rest := text[1:], ""
		if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
			head, rest = head[:i], head[i:]
		}
		cmd, at, _ := strings.Cut(head, "@")
		if at != "" && botName != "" && !strings.EqualFold(at, botName) {
			return TriggerNone, ""
		}
		switch strings.ToLower(cmd) {
		case cmdCalendar, cmdAlias:
			return TriggerCalendar, strings.TrimSpace(rest)
		case cmdStart, cmdHelp:
			return TriggerHelp, ""
		}
	}

	plain := strings.TrimPrefix(text, "/")
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(plain, alias); ok {
			return TriggerCalendar, strings.TrimSpace(rest)
		}
	}
	return TriggerNone, ""
}

// IntentKind enumerates calendar sub-commands.
type IntentKind int

// Intent kinds.
const (
	IntentUnknown IntentKind = iota
	IntentQuery
	IntentSubscribe
	IntentUnsubscribe
	IntentSetTime
	IntentStatus
)

func (k IntentKind) String() string {
	switch k {
	case IntentQuery:
		return "query"
	case IntentSubscribe:
		return "on"
	case IntentUnsubscribe:
		return "off"
	case IntentSetTime:
		return "time"
	case IntentStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Intent is a parsed calendar sub-command. Hour and Minute are set for IntentSetTime.
type Intent struct {
	Kind   IntentKind
	Hour   int
	Minute int
}

// ParseIntent parses the argument text following a calendar trigger.
// An empty argument is a query. A time command with a bad argument returns ErrInvalidTime.
func ParseIntent(args string) (Intent, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return Intent{Kind: IntentQuery}, nil
	}

	switch strings.ToLower(fields[0]) {
	case "on":
		return Intent{Kind: IntentSubscribe}, nil
	case "off":
		return Intent{Kind: IntentUnsubscribe}, nil
	case "status":
		return Intent{Kind: IntentStatus}, nil
	case "time":
		if len(fields) < 2 {
			return Intent{Kind: IntentSetTime}, ErrInvalidTime
		}
		h, m, err := ParseClock(fields[1])
		if err != nil {
			return Intent{Kind: IntentSetTime}, err
		}
		return Intent{Kind: IntentSetTime, Hour: h, Minute: m}, nil
	}
	return Intent{Kind: IntentUnknown}, nil
}

var clockRe = regexp.MustCompile(`^(\d{1,2})[:：](\d{2})$`)

// ParseClock parses a 24-hour "HH:mm" time. A full-width colon is accepted.
func ParseClock(s string) (hour, minute int, err error) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, ErrInvalidTime
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, ErrInvalidTime
	}
	return hour, minute, nil
}
