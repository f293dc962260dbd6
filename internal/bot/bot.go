package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/models"
	"github.com/xaenox/telegram-agent/internal/pipeline"
	"github.com/xaenox/telegram-agent/internal/reconcile"
	"github.com/xaenox/telegram-agent/internal/storage"
	"github.com/xaenox/telegram-agent/internal/telegram"
)

const historyReplyLimit = 10

// Bot ties the update loop to the single-message path: extract, persist,
// evaluate rules. It is constructed with its engines injected; it owns no
// rule or reconciliation logic of its own.
type Bot struct {
	api       *tgbot.Bot
	client    telegram.Client
	store     storage.Storage
	rules     *pipeline.Engine
	recon     *reconcile.Engine
	extractor telegram.Extractor
	logger    *zap.Logger
}

func New(
	api *tgbot.Bot,
	client telegram.Client,
	store storage.Storage,
	rules *pipeline.Engine,
	recon *reconcile.Engine,
	extractor telegram.Extractor,
	logger *zap.Logger,
) *Bot {
	b := &Bot{
		api:       api,
		client:    client,
		store:     store,
		rules:     rules,
		recon:     recon,
		extractor: extractor,
		logger:    logger,
	}

	api.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return update.Message != nil
	}, b.handleUpdate)

	return b
}

// Start runs the long-polling loop until the context is canceled.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Starting bot", zap.String("pipeline", b.rules.Describe()))
	b.api.Start(ctx)
}

func (b *Bot) handleUpdate(ctx context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
	// One goroutine per message: a slow action dispatch in one conversation
	// must not stall the others.
	go b.handleMessage(ctx, update.Message)
}

func (b *Bot) handleMessage(ctx context.Context, raw *tgmodels.Message) {
	logger := b.logger.With(zap.String("event_id", uuid.New().String()))

	msgCtx := b.extractor.Extract(raw)
	if msgCtx.ChatID == 0 {
		logger.Debug("Message without chat, skipping", zap.Int("msg_id", msgCtx.MsgID))
		return
	}

	if cmd, args, ok := parseCommand(raw.Text); ok {
		b.handleCommand(ctx, logger, cmd, args, msgCtx)
		return
	}

	b.persistContext(ctx, logger, msgCtx)

	if strings.TrimSpace(msgCtx.Text) == "" {
		logger.Debug("Blank message, skipping pipeline",
			zap.Int64("chat_id", msgCtx.ChatID),
			zap.Int("msg_id", msgCtx.MsgID))
		return
	}

	b.rules.Evaluate(ctx, msgCtx)
}

// persistContext upserts the user, the chat and the message. The upserts are
// independent; a failure in one is logged and the rest still happen, and an
// interrupted sequence is repaired by the next reconciliation run.
func (b *Bot) persistContext(ctx context.Context, logger *zap.Logger, msgCtx models.MessageContext) {
	if msgCtx.User != nil {
		if _, err := b.store.UpsertUser(ctx, msgCtx.User); err != nil {
			logger.Error("Failed to upsert user",
				zap.Int64("user_id", msgCtx.User.ID),
				zap.Error(err))
		}
	}
	if msgCtx.Chat != nil {
		if _, err := b.store.UpsertChat(ctx, msgCtx.Chat); err != nil {
			logger.Error("Failed to upsert chat",
				zap.Int64("chat_id", msgCtx.Chat.ID),
				zap.Error(err))
		}
	}
	if _, err := b.store.UpsertMessage(ctx, msgCtx.Message()); err != nil {
		logger.Error("Failed to upsert message",
			zap.Int64("chat_id", msgCtx.ChatID),
			zap.Int("msg_id", msgCtx.MsgID),
			zap.Error(err))
	}
}

func (b *Bot) handleCommand(ctx context.Context, logger *zap.Logger, cmd, args string, msgCtx models.MessageContext) {
	switch cmd {
	case "start":
		b.handleStart(ctx, msgCtx)
	case "help":
		b.handleHelp(ctx, msgCtx)
	case "history":
		b.handleHistory(ctx, logger, msgCtx)
	case "search":
		b.handleSearch(ctx, logger, args, msgCtx)
	case "refresh":
		b.handleRefresh(ctx, logger, msgCtx)
	default:
		b.reply(msgCtx, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msgCtx models.MessageContext) {
	welcome := `Hi! I keep a synchronized record of this conversation and act on it.

Send me messages as usual; use /help to see all available commands.`
	b.reply(msgCtx, welcome)
}

func (b *Bot) handleHelp(ctx context.Context, msgCtx models.MessageContext) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/history - Show recent messages in this conversation
/search <pattern> - Search this conversation's history
/refresh - Re-synchronize this conversation's history`
	b.reply(msgCtx, help)
}

func (b *Bot) handleHistory(ctx context.Context, logger *zap.Logger, msgCtx models.MessageContext) {
	messages, err := b.store.History(ctx, msgCtx.Scope(), false)
	if err != nil {
		logger.Error("Failed to get history",
			zap.Int64("chat_id", msgCtx.ChatID),
			zap.Error(err))
		b.reply(msgCtx, "Sorry, I couldn't retrieve the history. Please try again later.")
		return
	}
	if len(messages) > historyReplyLimit {
		messages = messages[len(messages)-historyReplyLimit:]
	}
	b.reply(msgCtx, formatMessages("Recent messages:", messages))
}

func (b *Bot) handleSearch(ctx context.Context, logger *zap.Logger, pattern string, msgCtx models.MessageContext) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		b.reply(msgCtx, "Usage: /search <pattern>")
		return
	}

	matches, err := b.store.Search(ctx, msgCtx.Scope(), pattern, false)
	if err != nil {
		logger.Error("Search failed",
			zap.Int64("chat_id", msgCtx.ChatID),
			zap.String("pattern", pattern),
			zap.Error(err))
		b.reply(msgCtx, "Sorry, that search didn't work. Check the pattern and try again.")
		return
	}
	b.reply(msgCtx, formatMessages(fmt.Sprintf("Matches for %q:", pattern), matches))
}

func (b *Bot) handleRefresh(ctx context.Context, logger *zap.Logger, msgCtx models.MessageContext) {
	stats, err := b.recon.Sync(ctx, msgCtx.Scope())
	if err != nil {
		logger.Error("Reconciliation failed",
			zap.Int64("chat_id", msgCtx.ChatID),
			zap.Int("thread_id", msgCtx.ThreadID),
			zap.Error(err))
		if errors.Is(err, telegram.ErrUnsupported) {
			b.reply(msgCtx, "History refresh needs a user-mode session, which this bot doesn't have.")
		} else {
			b.reply(msgCtx, "Sorry, the refresh failed. Please try again later.")
		}
		return
	}
	b.reply(msgCtx, "Refreshed: "+stats.String())
}

func (b *Bot) reply(msgCtx models.MessageContext, text string) {
	// Replies are detached from the handler's lifetime.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := b.client.SendMessage(ctx, msgCtx.ChatID, text, &telegram.SendOptions{
		ThreadID: msgCtx.ThreadID,
	})
	if err != nil {
		b.logger.Error("Failed to send reply",
			zap.Int64("chat_id", msgCtx.ChatID),
			zap.Error(err))
	}
}

func formatMessages(header string, messages []*models.Message) string {
	if len(messages) == 0 {
		return "Nothing found."
	}
	var sb strings.Builder
	sb.WriteString(header)
	for _, msg := range messages {
		fmt.Fprintf(&sb, "\n[%s] %d: %s",
			msg.Date.Format("2006-01-02 15:04"), msg.UserID, msg.Text)
	}
	return sb.String()
}

// parseCommand splits "/cmd@bot args" into its command and argument parts.
func parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.TrimPrefix(parts[0], "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", "", false
	}
	if len(parts) > 1 {
		args = parts[1]
	}
	return cmd, args, true
}
