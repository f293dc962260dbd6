package telegram

import (
	"context"
	"fmt"

	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/pipeline"
)

// defaultGroupPermissions lets members post and open discussions in a
// freshly created supergroup.
var defaultGroupPermissions = tgmodels.ChatPermissions{
	CanSendMessages:       true,
	CanSendPhotos:         true,
	CanSendDocuments:      true,
	CanSendOtherMessages:  true,
	CanAddWebPagePreviews: true,
	CanInviteUsers:        true,
}

// Executor performs pipeline actions through the platform Client.
type Executor struct {
	client Client
	logger *zap.Logger
}

func NewExecutor(client Client, logger *zap.Logger) *Executor {
	return &Executor{client: client, logger: logger}
}

func (e *Executor) SendMessage(ctx context.Context, action pipeline.SendMessage) error {
	_, err := e.client.SendMessage(ctx, action.ChatID, action.Text, &SendOptions{
		ThreadID: action.ThreadID,
		ReplyTo:  action.ReplyTo,
	})
	if err != nil {
		return fmt.Errorf("send message to chat %d: %w", action.ChatID, err)
	}
	return nil
}

func (e *Executor) ForwardMessage(ctx context.Context, action pipeline.ForwardMessage) error {
	if err := e.client.ForwardMessage(ctx, action.FromChatID, action.ToChatID, action.MsgID); err != nil {
		return fmt.Errorf("forward message %d from chat %d to chat %d: %w",
			action.MsgID, action.FromChatID, action.ToChatID, err)
	}
	return nil
}

// CreateSupergroup creates the group, optionally adds the bot, opens the
// named initial topic with a welcome message, and announces the new group as
// a reply in the originating scope. The announcement is best effort: the
// group exists either way.
func (e *Executor) CreateSupergroup(ctx context.Context, action pipeline.CreateSupergroup) error {
	chatID, err := e.client.CreateGroup(ctx, action.Title)
	if err != nil {
		return fmt.Errorf("create supergroup %q: %w", action.Title, err)
	}

	if err := e.client.SetChatPermissions(ctx, chatID, defaultGroupPermissions); err != nil {
		e.logger.Warn("Failed to set permissions on new supergroup",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}

	if action.BotToAdd != "" {
		if err := e.client.AddMember(ctx, chatID, action.BotToAdd); err != nil {
			return fmt.Errorf("add bot %q to chat %d: %w", action.BotToAdd, chatID, err)
		}
	}

	threadID, err := e.client.CreateTopic(ctx, chatID, action.TopicName)
	if err != nil {
		return fmt.Errorf("create initial topic in chat %d: %w", chatID, err)
	}

	if _, err := e.client.SendMessage(ctx, chatID, "Welcome to the new supergroup!", &SendOptions{ThreadID: threadID}); err != nil {
		e.logger.Warn("Failed to send welcome message to new supergroup",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}

	if action.OriginChatID != 0 {
		announcement := fmt.Sprintf("A new supergroup %q has been created!", action.Title)
		_, err := e.client.SendMessage(ctx, action.OriginChatID, announcement, &SendOptions{
			ThreadID: action.OriginThreadID,
			ReplyTo:  action.OriginMsgID,
		})
		if err != nil {
			e.logger.Warn("Failed to announce new supergroup",
				zap.Int64("origin_chat_id", action.OriginChatID),
				zap.Error(err))
		}
	}
	return nil
}

func (e *Executor) CreateForumTopic(ctx context.Context, action pipeline.CreateForumTopic) error {
	if _, err := e.client.CreateTopic(ctx, action.TargetChatID, action.Title); err != nil {
		return fmt.Errorf("create topic %q in chat %d: %w", action.Title, action.TargetChatID, err)
	}
	return nil
}

func (e *Executor) Invoke(ctx context.Context, action pipeline.InvokeFunction) error {
	result, err := action.Callback(ctx, action.Text, action.ChatID)
	if err != nil {
		return fmt.Errorf("callback %q: %w", action.Name, err)
	}
	if result == "" {
		return nil
	}
	_, err = e.client.SendMessage(ctx, action.ChatID, result, &SendOptions{
		ThreadID: action.ThreadID,
		ReplyTo:  action.ReplyTo,
	})
	if err != nil {
		return fmt.Errorf("reply with %q result to chat %d: %w", action.Name, action.ChatID, err)
	}
	return nil
}
