package telegram

import (
	"time"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/xaenox/telegram-agent/internal/models"
)

// Extractor turns raw platform messages into MessageContext values. It is a
// pure, deterministic translation; messages without a chat still yield a
// context, with the chat fields zeroed, and callers decide whether such a
// context is processable.
type Extractor struct {
	// PreferReplyTopic selects which thread signal wins when both are
	// present: the forum-topic-creation event found in the reply chain, or
	// the message's own thread tag. The reply chain wins by default.
	PreferReplyTopic bool
}

func NewExtractor() Extractor {
	return Extractor{PreferReplyTopic: true}
}

// Extract is the default-policy extraction.
func Extract(msg *tgmodels.Message) models.MessageContext {
	return NewExtractor().Extract(msg)
}

func (e Extractor) Extract(msg *tgmodels.Message) models.MessageContext {
	ctx := models.MessageContext{
		MsgID: msg.ID,
		Date:  time.Unix(int64(msg.Date), 0).UTC(),
		Text:  messageText(msg),
	}

	if msg.From != nil {
		ctx.UserID = msg.From.ID
		ctx.User = &models.User{
			ID:        msg.From.ID,
			Username:  msg.From.Username,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
		}
	}

	if msg.Chat.ID != 0 {
		ctx.ChatID = msg.Chat.ID
		ctx.ChatType = normalizeChatType(msg.Chat.Type)
		ctx.ChatTitle = msg.Chat.Title
		ctx.Chat = &models.Chat{
			ID:        msg.Chat.ID,
			Type:      ctx.ChatType,
			Title:     msg.Chat.Title,
			Username:  msg.Chat.Username,
			FirstName: msg.Chat.FirstName,
			LastName:  msg.Chat.LastName,
		}
	}

	ctx.ThreadID, ctx.ThreadName = e.resolveThread(msg)
	return ctx
}

// resolveThread determines which topic the message belongs to. Two signals
// exist: a forum-topic-creation event on the replied-to message, and the
// message's intrinsic thread tag. Which one wins is policy; a message with
// neither belongs to the chat's default scope.
func (e Extractor) resolveThread(msg *tgmodels.Message) (int, string) {
	replyID, replyName, replyOK := replyTopic(msg)
	tagID, tagName, tagOK := taggedTopic(msg)

	if e.PreferReplyTopic {
		if replyOK {
			return replyID, replyName
		}
		if tagOK {
			return tagID, tagName
		}
	} else {
		if tagOK {
			return tagID, tagName
		}
		if replyOK {
			return replyID, replyName
		}
	}
	return 0, ""
}

func replyTopic(msg *tgmodels.Message) (int, string, bool) {
	reply := msg.ReplyToMessage
	if reply == nil || reply.ForumTopicCreated == nil {
		return 0, "", false
	}
	threadID := reply.MessageThreadID
	if threadID == 0 {
		// The topic's service message opens the thread, so its own id is the
		// thread id.
		threadID = reply.ID
	}
	return threadID, reply.ForumTopicCreated.Name, true
}

func taggedTopic(msg *tgmodels.Message) (int, string, bool) {
	if msg.MessageThreadID == 0 {
		return 0, "", false
	}
	name := ""
	if msg.ForumTopicCreated != nil {
		name = msg.ForumTopicCreated.Name
	}
	return msg.MessageThreadID, name, true
}

func messageText(msg *tgmodels.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func normalizeChatType(raw tgmodels.ChatType) models.ChatType {
	switch raw {
	case tgmodels.ChatTypePrivate:
		return models.ChatTypePrivate
	case tgmodels.ChatTypeGroup:
		return models.ChatTypeGroup
	case tgmodels.ChatTypeSupergroup:
		return models.ChatTypeSupergroup
	case tgmodels.ChatTypeChannel:
		return models.ChatTypeChannel
	}
	return models.ChatType(raw)
}
