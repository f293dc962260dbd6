package pipeline

import (
	"regexp"
	"strings"

	"github.com/xaenox/telegram-agent/internal/models"
)

// Predicate decides whether a context passes a filter. Predicates should be
// pure; a predicate with side effects must be documented at its definition.
type Predicate func(models.MessageContext) bool

// Filter is a named predicate over a message context. Message filters and
// chat filters share the same contract; the constructor used is
// documentation of intent, nothing more.
type Filter struct {
	Name string
	test Predicate
}

func (f Filter) Matches(ctx models.MessageContext) bool {
	return f.test(ctx)
}

// NewMessageFilter builds a filter over message-level fields.
func NewMessageFilter(name string, test Predicate) Filter {
	return Filter{Name: name, test: test}
}

// NewChatFilter builds a filter over chat-level fields.
func NewChatFilter(name string, test Predicate) Filter {
	return Filter{Name: name, test: test}
}

// And combines filters into one that passes when all of them pass, evaluated
// in order with short-circuiting.
func And(name string, filters ...Filter) Filter {
	return Filter{Name: name, test: func(ctx models.MessageContext) bool {
		for _, f := range filters {
			if !f.Matches(ctx) {
				return false
			}
		}
		return true
	}}
}

// Or combines filters into one that passes when any of them passes.
func Or(name string, filters ...Filter) Filter {
	return Filter{Name: name, test: func(ctx models.MessageContext) bool {
		for _, f := range filters {
			if f.Matches(ctx) {
				return true
			}
		}
		return false
	}}
}

func ChatTypeIs(chatType models.ChatType) Filter {
	return NewChatFilter("chat_type_is_"+string(chatType), func(ctx models.MessageContext) bool {
		return ctx.ChatType == chatType
	})
}

func InChat(chatID int64) Filter {
	return NewChatFilter("in_chat", func(ctx models.MessageContext) bool {
		return ctx.ChatID == chatID
	})
}

func InThread(threadID int) Filter {
	return NewMessageFilter("in_thread", func(ctx models.MessageContext) bool {
		return ctx.ThreadID == threadID
	})
}

func FromUser(userID int64) Filter {
	return NewMessageFilter("from_user", func(ctx models.MessageContext) bool {
		return ctx.UserID == userID
	})
}

// TextContains matches case-insensitively.
func TextContains(substr string) Filter {
	needle := strings.ToLower(substr)
	return NewMessageFilter("text_contains_"+needle, func(ctx models.MessageContext) bool {
		return strings.Contains(strings.ToLower(ctx.Text), needle)
	})
}

func TextMatches(pattern *regexp.Regexp) Filter {
	return NewMessageFilter("text_matches_"+pattern.String(), func(ctx models.MessageContext) bool {
		return ctx.Text != "" && pattern.MatchString(ctx.Text)
	})
}

func HasText() Filter {
	return NewMessageFilter("has_text", func(ctx models.MessageContext) bool {
		return strings.TrimSpace(ctx.Text) != ""
	})
}
