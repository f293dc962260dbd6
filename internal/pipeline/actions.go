package pipeline

import (
	"context"
	"fmt"

	"github.com/xaenox/telegram-agent/internal/models"
)

type ActionKind string

const (
	KindSendMessage      ActionKind = "send_message"
	KindForwardMessage   ActionKind = "forward_message"
	KindCreateSupergroup ActionKind = "create_supergroup"
	KindCreateForumTopic ActionKind = "create_forum_topic"
	KindInvokeFunction   ActionKind = "invoke_function"
)

// Executor is the capability that performs platform side effects for
// resolved actions. Failures must be returned, never swallowed; the engine
// owns the error policy.
type Executor interface {
	SendMessage(ctx context.Context, action SendMessage) error
	ForwardMessage(ctx context.Context, action ForwardMessage) error
	CreateSupergroup(ctx context.Context, action CreateSupergroup) error
	CreateForumTopic(ctx context.Context, action CreateForumTopic) error
	Invoke(ctx context.Context, action InvokeFunction) error
}

// Action is one configured pipeline side effect. Actions are immutable
// templates: Execute resolves a fresh copy against the triggering context on
// every invocation, so a single configured action is safely reused across
// concurrent contexts.
type Action interface {
	Kind() ActionKind
	Execute(ctx context.Context, exec Executor, msgCtx models.MessageContext) error
}

// SendMessage sends text to a chat. A zero ChatID is a placeholder for the
// triggering chat (and thread); an empty Text is a placeholder for a summary
// of the triggering message.
type SendMessage struct {
	ChatID   int64
	Text     string
	ThreadID int
	ReplyTo  int
}

func (a SendMessage) Kind() ActionKind { return KindSendMessage }

func (a SendMessage) resolve(msgCtx models.MessageContext) SendMessage {
	if a.ChatID == 0 {
		a.ChatID = msgCtx.ChatID
		if a.ThreadID == 0 {
			a.ThreadID = msgCtx.ThreadID
		}
	}
	if a.Text == "" {
		a.Text = fmt.Sprintf("Message from %d: %s", msgCtx.UserID, msgCtx.Text)
	}
	return a
}

func (a SendMessage) Execute(ctx context.Context, exec Executor, msgCtx models.MessageContext) error {
	return exec.SendMessage(ctx, a.resolve(msgCtx))
}

// ForwardMessage forwards a message between chats. Zero FromChatID and MsgID
// are placeholders for the triggering message.
type ForwardMessage struct {
	FromChatID int64
	ToChatID   int64
	MsgID      int
}

func (a ForwardMessage) Kind() ActionKind { return KindForwardMessage }

func (a ForwardMessage) resolve(msgCtx models.MessageContext) ForwardMessage {
	if a.FromChatID == 0 {
		a.FromChatID = msgCtx.ChatID
	}
	if a.MsgID == 0 {
		a.MsgID = msgCtx.MsgID
	}
	return a
}

func (a ForwardMessage) Execute(ctx context.Context, exec Executor, msgCtx models.MessageContext) error {
	return exec.ForwardMessage(ctx, a.resolve(msgCtx))
}

// CreateSupergroup creates a supergroup with a named initial topic, optionally
// adds the bot, and announces the new group back to the originating scope.
// An empty Title is a placeholder for the triggering message text.
type CreateSupergroup struct {
	Title     string
	TopicName string
	BotToAdd  string

	// Origin of the triggering message, bound at dispatch; the announcement
	// reply goes there.
	OriginChatID   int64
	OriginThreadID int
	OriginMsgID    int
}

func (a CreateSupergroup) Kind() ActionKind { return KindCreateSupergroup }

func (a CreateSupergroup) resolve(msgCtx models.MessageContext) CreateSupergroup {
	if a.Title == "" {
		a.Title = msgCtx.Text
	}
	if a.Title == "" {
		a.Title = "New Supergroup"
	}
	if a.TopicName == "" {
		a.TopicName = a.Title
	}
	a.OriginChatID = msgCtx.ChatID
	a.OriginThreadID = msgCtx.ThreadID
	a.OriginMsgID = msgCtx.MsgID
	return a
}

func (a CreateSupergroup) Execute(ctx context.Context, exec Executor, msgCtx models.MessageContext) error {
	return exec.CreateSupergroup(ctx, a.resolve(msgCtx))
}

// CreateForumTopic creates a topic in a supergroup. A zero TargetChatID is a
// placeholder for the triggering chat; an empty Title for the triggering
// message text.
type CreateForumTopic struct {
	TargetChatID int64
	Title        string
}

func (a CreateForumTopic) Kind() ActionKind { return KindCreateForumTopic }

func (a CreateForumTopic) resolve(msgCtx models.MessageContext) CreateForumTopic {
	if a.TargetChatID == 0 {
		a.TargetChatID = msgCtx.ChatID
	}
	if a.Title == "" {
		a.Title = msgCtx.Text
	}
	if a.Title == "" {
		a.Title = "New Topic"
	}
	return a
}

func (a CreateForumTopic) Execute(ctx context.Context, exec Executor, msgCtx models.MessageContext) error {
	return exec.CreateForumTopic(ctx, a.resolve(msgCtx))
}

// Callback computes a reply from the triggering message text and chat id.
type Callback func(ctx context.Context, text string, chatID int64) (string, error)

// InvokeFunction runs a callback against the triggering message and replies
// with its string result in the originating scope.
type InvokeFunction struct {
	Name     string
	Callback Callback

	// Bound from the triggering context at dispatch.
	Text     string
	ChatID   int64
	ThreadID int
	ReplyTo  int
}

func (a InvokeFunction) Kind() ActionKind { return KindInvokeFunction }

func (a InvokeFunction) resolve(msgCtx models.MessageContext) InvokeFunction {
	a.Text = msgCtx.Text
	a.ChatID = msgCtx.ChatID
	a.ThreadID = msgCtx.ThreadID
	a.ReplyTo = msgCtx.MsgID
	return a
}

func (a InvokeFunction) Execute(ctx context.Context, exec Executor, msgCtx models.MessageContext) error {
	return exec.Invoke(ctx, a.resolve(msgCtx))
}
