package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/xaenox/telegram-agent/internal/models"
)

// ErrUnsupported marks platform operations a bot-token session cannot
// perform. Listing chat history, creating chats and adding members belong to
// user-mode (MTProto) sessions; implementations backed by such a gateway can
// support the full interface.
var ErrUnsupported = errors.New("operation requires a user-mode telegram session")

// RateLimitError is the platform backpressure signal. The caller must wait
// RetryAfter before retrying the failed call.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by telegram, retry after %s", e.RetryAfter)
}

// SendOptions carries the optional parameters of SendMessage.
type SendOptions struct {
	ThreadID int
	ReplyTo  int
}

// Client is the messaging platform capability. All operations may block on
// network I/O and honor context cancellation.
type Client interface {
	// FetchHistory lists the current text-bearing messages of a scope,
	// following pagination to exhaustion.
	FetchHistory(ctx context.Context, scope models.Scope) ([]*tgmodels.Message, error)

	// SendMessage sends text to a chat and returns the new message id.
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int, error)

	ForwardMessage(ctx context.Context, fromChatID, toChatID int64, msgID int) error

	// CreateGroup creates a new supergroup and returns its chat id.
	CreateGroup(ctx context.Context, title string) (int64, error)

	// CreateTopic creates a forum topic in a supergroup and returns its
	// thread id.
	CreateTopic(ctx context.Context, chatID int64, title string) (int, error)

	AddMember(ctx context.Context, chatID int64, userRef string) error

	SetChatPermissions(ctx context.Context, chatID int64, perms tgmodels.ChatPermissions) error
}
