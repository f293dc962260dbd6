package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/models"
	"github.com/xaenox/telegram-agent/internal/storage"
)

const systemPrompt = `You are a project assistant embedded in a group chat.
Use the conversation so far to respond to the user's latest message.
Be extremely concise: respond with 3-5 bullet points focused on the
structural consequences of what the user proposes. Do not explain how to do
things and do not cover routine concerns like documentation or testing.`

const fallbackReply = "I couldn't reach the language model just now. Please try again in a moment."

// OpenAIResponder builds chat replies from a scope's recent history. Its
// Reply method has the pipeline callback shape, so it plugs straight into an
// InvokeFunction action.
type OpenAIResponder struct {
	client       *openai.Client
	model        string
	maxTokens    int
	temperature  float64
	historyLimit int
	store        storage.Storage
	logger       *zap.Logger
}

func NewOpenAIResponder(apiKey, model string, maxTokens int, temperature float64, historyLimit int, store storage.Storage, logger *zap.Logger) *OpenAIResponder {
	return &OpenAIResponder{
		client:       openai.NewClient(apiKey),
		model:        model,
		maxTokens:    maxTokens,
		temperature:  temperature,
		historyLimit: historyLimit,
		store:        store,
		logger:       logger,
	}
}

// Reply answers the given message using the chat's stored history as
// conversational context.
func (r *OpenAIResponder) Reply(ctx context.Context, text string, chatID int64) (string, error) {
	history, err := r.recentHistory(ctx, chatID)
	if err != nil {
		// History is contextual sugar; reply without it rather than fail.
		r.logger.Warn("Failed to load history for reply",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}

	userPrompt := text
	if history != "" {
		userPrompt = fmt.Sprintf("Conversation so far:\n%s\n\nLatest message:\n%s", history, text)
	}

	resp, err := r.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: r.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
			MaxTokens:   r.maxTokens,
			Temperature: float32(r.temperature),
		},
	)
	if err != nil {
		// Reply with the fallback rather than dropping the conversation.
		r.logger.Error("Failed to get completion", zap.Error(err))
		return fallbackReply, nil
	}
	if len(resp.Choices) == 0 {
		r.logger.Error("Completion returned no choices")
		return fallbackReply, nil
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (r *OpenAIResponder) recentHistory(ctx context.Context, chatID int64) (string, error) {
	messages, err := r.store.History(ctx, models.Scope{ChatID: chatID}, false)
	if err != nil {
		return "", err
	}
	if len(messages) > r.historyLimit && r.historyLimit > 0 {
		messages = messages[len(messages)-r.historyLimit:]
	}

	var b strings.Builder
	for _, msg := range messages {
		if msg.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "%d: %s\n", msg.UserID, msg.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
