package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/models"
)

const defaultCallTimeout = 10 * time.Second

// APIClient implements Client over the Telegram Bot API. FetchHistory,
// CreateGroup and AddMember return ErrUnsupported: the Bot API does not
// expose them to bot-token sessions.
type APIClient struct {
	api     *bot.Bot
	timeout time.Duration
	logger  *zap.Logger
}

func NewAPIClient(api *bot.Bot, timeout time.Duration, logger *zap.Logger) *APIClient {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &APIClient{
		api:     api,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *APIClient) FetchHistory(ctx context.Context, scope models.Scope) ([]*tgmodels.Message, error) {
	return nil, fmt.Errorf("fetch history for chat %d: %w", scope.ChatID, ErrUnsupported)
}

func (c *APIClient) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int, error) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if opts != nil {
		params.MessageThreadID = opts.ThreadID
		if opts.ReplyTo != 0 {
			params.ReplyParameters = &tgmodels.ReplyParameters{MessageID: opts.ReplyTo}
		}
	}

	var msgID int
	err := c.call(ctx, "sendMessage", func(ctx context.Context) error {
		msg, err := c.api.SendMessage(ctx, params)
		if err != nil {
			return err
		}
		msgID = msg.ID
		return nil
	})
	return msgID, err
}

func (c *APIClient) ForwardMessage(ctx context.Context, fromChatID, toChatID int64, msgID int) error {
	return c.call(ctx, "forwardMessage", func(ctx context.Context) error {
		_, err := c.api.ForwardMessage(ctx, &bot.ForwardMessageParams{
			ChatID:     toChatID,
			FromChatID: fromChatID,
			MessageID:  msgID,
		})
		return err
	})
}

func (c *APIClient) CreateGroup(ctx context.Context, title string) (int64, error) {
	return 0, fmt.Errorf("create group %q: %w", title, ErrUnsupported)
}

func (c *APIClient) CreateTopic(ctx context.Context, chatID int64, title string) (int, error) {
	var threadID int
	err := c.call(ctx, "createForumTopic", func(ctx context.Context) error {
		topic, err := c.api.CreateForumTopic(ctx, &bot.CreateForumTopicParams{
			ChatID: chatID,
			Name:   title,
		})
		if err != nil {
			return err
		}
		threadID = topic.MessageThreadID
		return nil
	})
	return threadID, err
}

func (c *APIClient) AddMember(ctx context.Context, chatID int64, userRef string) error {
	return fmt.Errorf("add member %q to chat %d: %w", userRef, chatID, ErrUnsupported)
}

func (c *APIClient) SetChatPermissions(ctx context.Context, chatID int64, perms tgmodels.ChatPermissions) error {
	return c.call(ctx, "setChatPermissions", func(ctx context.Context) error {
		_, err := c.api.SetChatPermissions(ctx, &bot.SetChatPermissionsParams{
			ChatID:      chatID,
			Permissions: perms,
		})
		return err
	})
}

// call bounds a platform call with the client timeout and honors a single
// rate-limit wait before retrying it.
func (c *APIClient) call(ctx context.Context, method string, fn func(context.Context) error) error {
	err := c.invoke(ctx, fn)
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		return err
	}

	c.logger.Warn("Rate limited by telegram, waiting before retry",
		zap.String("method", method),
		zap.Duration("retry_after", rateErr.RetryAfter))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(rateErr.RetryAfter):
	}
	return c.invoke(ctx, fn)
}

func (c *APIClient) invoke(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &RateLimitError{RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second}
	}
	return err
}
