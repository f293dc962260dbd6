package models

import "time"

type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

// User represents a Telegram user. Empty string fields are treated as unset
// during upserts. Users are never deleted, only referenced.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Chat represents a Telegram chat. FirstName/LastName are only set for
// private chats.
type Chat struct {
	ID        int64    `json:"id"`
	Type      ChatType `json:"type"`
	Title     string   `json:"title,omitempty"`
	Username  string   `json:"username,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
}

// Message is the persisted form of a chat message. Identity is the
// (ChatID, MsgID) pair, assigned by the platform and immutable. ChatTitle and
// ThreadName are denormalized snapshots and may drift from the Chat record.
// A message removed upstream is kept with Deleted set rather than dropped.
type Message struct {
	ChatID     int64     `json:"chat_id"`
	MsgID      int       `json:"msg_id"`
	UserID     int64     `json:"user_id,omitempty"`
	ChatType   ChatType  `json:"chat_type,omitempty"`
	ChatTitle  string    `json:"chat_title,omitempty"`
	ThreadID   int       `json:"thread_id,omitempty"`
	ThreadName string    `json:"thread_name,omitempty"`
	Date       time.Time `json:"date"`
	Text       string    `json:"text,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// FieldsEqual reports whether the compared field set of two messages is
// identical. This is the field set upserts and reconciliation diffs use to
// decide whether a write is needed; identity fields are not part of it.
func (m *Message) FieldsEqual(other *Message) bool {
	return m.UserID == other.UserID &&
		m.ChatType == other.ChatType &&
		m.ChatTitle == other.ChatTitle &&
		m.ThreadID == other.ThreadID &&
		m.ThreadName == other.ThreadName &&
		m.Date.Equal(other.Date) &&
		m.Text == other.Text &&
		m.Deleted == other.Deleted
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// Scope identifies the conversation a history query or reconciliation run
// applies to. ThreadID zero means the whole chat rather than a single topic.
type Scope struct {
	ChatID   int64
	ThreadID int
}

func (s Scope) IsValid() bool {
	return s.ChatID != 0
}

// Contains reports whether a message belongs to the scope.
func (s Scope) Contains(m *Message) bool {
	if m.ChatID != s.ChatID {
		return false
	}
	return s.ThreadID == 0 || m.ThreadID == s.ThreadID
}

// MessageContext is the fully resolved, transient view of a message handed to
// the rule pipeline. The same logical message yields a field-for-field equal
// context whether it was built from a raw platform message or from a stored
// row.
type MessageContext struct {
	MsgID      int
	UserID     int64
	ChatID     int64
	ChatType   ChatType
	ChatTitle  string
	ThreadID   int
	ThreadName string
	Date       time.Time
	Text       string
	User       *User
	Chat       *Chat
}

// Scope returns the conversation scope the context belongs to.
func (c MessageContext) Scope() Scope {
	return Scope{ChatID: c.ChatID, ThreadID: c.ThreadID}
}

// Message converts the context into its persistable form.
func (c MessageContext) Message() *Message {
	return &Message{
		ChatID:     c.ChatID,
		MsgID:      c.MsgID,
		UserID:     c.UserID,
		ChatType:   c.ChatType,
		ChatTitle:  c.ChatTitle,
		ThreadID:   c.ThreadID,
		ThreadName: c.ThreadName,
		Date:       c.Date,
		Text:       c.Text,
	}
}

// ContextFromMessage rebuilds a MessageContext from a stored message and its
// resolved user and chat records. Either record may be nil.
func ContextFromMessage(m *Message, user *User, chat *Chat) MessageContext {
	return MessageContext{
		MsgID:      m.MsgID,
		UserID:     m.UserID,
		ChatID:     m.ChatID,
		ChatType:   m.ChatType,
		ChatTitle:  m.ChatTitle,
		ThreadID:   m.ThreadID,
		ThreadName: m.ThreadName,
		Date:       m.Date,
		Text:       m.Text,
		User:       user,
		Chat:       chat,
	}
}
