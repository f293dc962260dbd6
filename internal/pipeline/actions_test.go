package pipeline

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/telegram-agent/internal/models"
)

func TestSendMessageResolve(t *testing.T) {
	t.Parallel()

	msgCtx := models.MessageContext{
		MsgID:    5,
		UserID:   7,
		ChatID:   100,
		ThreadID: 33,
		Text:     "payload",
	}

	t.Run("placeholders bind to the triggering scope", func(t *testing.T) {
		t.Parallel()

		resolved := SendMessage{}.resolve(msgCtx)
		assert.Equal(t, int64(100), resolved.ChatID)
		assert.Equal(t, 33, resolved.ThreadID)
		assert.Equal(t, "Message from 7: payload", resolved.Text)
	})

	t.Run("explicit target keeps its own thread", func(t *testing.T) {
		t.Parallel()

		resolved := SendMessage{ChatID: 999, Text: "fixed"}.resolve(msgCtx)
		assert.Equal(t, int64(999), resolved.ChatID)
		assert.Zero(t, resolved.ThreadID)
		assert.Equal(t, "fixed", resolved.Text)
	})

	t.Run("template is never mutated", func(t *testing.T) {
		t.Parallel()

		template := SendMessage{}
		_ = template.resolve(msgCtx)
		assert.Equal(t, SendMessage{}, template)
	})
}

func TestForwardMessageResolve(t *testing.T) {
	t.Parallel()

	msgCtx := models.MessageContext{MsgID: 5, ChatID: 100}

	resolved := ForwardMessage{ToChatID: 999}.resolve(msgCtx)
	assert.Equal(t, int64(100), resolved.FromChatID)
	assert.Equal(t, int64(999), resolved.ToChatID)
	assert.Equal(t, 5, resolved.MsgID)
}

func TestCreateSupergroupResolve(t *testing.T) {
	t.Parallel()

	msgCtx := models.MessageContext{
		MsgID:    5,
		ChatID:   100,
		ThreadID: 33,
		Text:     "Build a birdhouse",
	}

	resolved := CreateSupergroup{BotToAdd: "helper_bot"}.resolve(msgCtx)
	assert.Equal(t, "Build a birdhouse", resolved.Title)
	assert.Equal(t, "Build a birdhouse", resolved.TopicName)
	assert.Equal(t, "helper_bot", resolved.BotToAdd)
	assert.Equal(t, int64(100), resolved.OriginChatID)
	assert.Equal(t, 33, resolved.OriginThreadID)
	assert.Equal(t, 5, resolved.OriginMsgID)

	fallback := CreateSupergroup{}.resolve(models.MessageContext{ChatID: 100})
	assert.Equal(t, "New Supergroup", fallback.Title)
	assert.Equal(t, "New Supergroup", fallback.TopicName)
}

func TestCreateForumTopicResolve(t *testing.T) {
	t.Parallel()

	resolved := CreateForumTopic{}.resolve(models.MessageContext{ChatID: 100, Text: "Roadmap"})
	assert.Equal(t, int64(100), resolved.TargetChatID)
	assert.Equal(t, "Roadmap", resolved.Title)

	fixed := CreateForumTopic{TargetChatID: 999, Title: "Fixed"}.resolve(models.MessageContext{ChatID: 100, Text: "ignored"})
	assert.Equal(t, int64(999), fixed.TargetChatID)
	assert.Equal(t, "Fixed", fixed.Title)
}

func TestInvokeFunctionResolve(t *testing.T) {
	t.Parallel()

	called := false
	action := InvokeFunction{
		Name: "assistant",
		Callback: func(ctx context.Context, text string, chatID int64) (string, error) {
			called = true
			return "reply", nil
		},
	}

	resolved := action.resolve(models.MessageContext{MsgID: 5, ChatID: 100, ThreadID: 33, Text: "question"})
	assert.Equal(t, "question", resolved.Text)
	assert.Equal(t, int64(100), resolved.ChatID)
	assert.Equal(t, 33, resolved.ThreadID)
	assert.Equal(t, 5, resolved.ReplyTo)
	require.NotNil(t, resolved.Callback)

	_, err := resolved.Callback(context.Background(), resolved.Text, resolved.ChatID)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestFilters(t *testing.T) {
	t.Parallel()

	msgCtx := models.MessageContext{
		UserID:   7,
		ChatID:   100,
		ChatType: models.ChatTypeSupergroup,
		ThreadID: 33,
		Text:     "URGENT: deploy broke",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"chat type match", ChatTypeIs(models.ChatTypeSupergroup), true},
		{"chat type mismatch", ChatTypeIs(models.ChatTypePrivate), false},
		{"in chat", InChat(100), true},
		{"wrong chat", InChat(101), false},
		{"in thread", InThread(33), true},
		{"wrong thread", InThread(34), false},
		{"from user", FromUser(7), true},
		{"contains is case insensitive", TextContains("urgent"), true},
		{"contains miss", TextContains("calm"), false},
		{"regexp match", TextMatches(regexp.MustCompile(`^URGENT:`)), true},
		{"has text", HasText(), true},
		{"and passes when all pass", And("both", InChat(100), HasText()), true},
		{"and fails on any miss", And("both", InChat(100), TextContains("calm")), false},
		{"or passes on any hit", Or("either", InChat(101), HasText()), true},
		{"or fails when all miss", Or("either", InChat(101), TextContains("calm")), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.filter.Matches(msgCtx))
		})
	}

	t.Run("has text rejects whitespace", func(t *testing.T) {
		t.Parallel()
		assert.False(t, HasText().Matches(models.MessageContext{Text: "   "}))
	})
}
