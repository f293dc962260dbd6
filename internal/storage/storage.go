package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaenox/telegram-agent/internal/models"
)

var (
	// ErrInvalidScope marks a malformed scope (missing chat id). The call
	// fails and must not be retried.
	ErrInvalidScope = errors.New("invalid conversation scope")

	// ErrUnavailable wraps persistence-engine failures. Retry policy belongs
	// to the caller, not the store.
	ErrUnavailable = errors.New("storage unavailable")
)

// UpsertResult reports what an upsert did to the stored record.
type UpsertResult int

const (
	ResultUnchanged UpsertResult = iota
	ResultInserted
	ResultUpdated
)

func (r UpsertResult) String() string {
	switch r {
	case ResultInserted:
		return "inserted"
	case ResultUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Storage is the conversation store: keyed upserts over users, chats and
// messages plus scoped, date-ordered history reads. Implementations must be
// safe for concurrent use.
type Storage interface {
	// UpsertUser merges the set (non-empty) fields of the given user into the
	// stored record, inserting it if absent. Equal fields produce no write.
	UpsertUser(ctx context.Context, user *models.User) (UpsertResult, error)

	// UpsertChat has the same merge semantics as UpsertUser.
	UpsertChat(ctx context.Context, chat *models.Chat) (UpsertResult, error)

	// UpsertMessage is keyed on (ChatID, MsgID): inserts when absent,
	// otherwise writes only if the compared field set differs. Never
	// duplicates a row for the same identity pair.
	UpsertMessage(ctx context.Context, msg *models.Message) (UpsertResult, error)

	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetChat(ctx context.Context, id int64) (*models.Chat, error)

	// History returns the scope's messages ordered by ascending date,
	// deduplicated by message id. Tombstoned messages are excluded unless
	// includeDeleted is set.
	History(ctx context.Context, scope models.Scope, includeDeleted bool) ([]*models.Message, error)

	// Search returns the scope's messages whose text matches the regex
	// pattern, first match per distinct message id, in chronological order.
	Search(ctx context.Context, scope models.Scope, pattern string, includeDeleted bool) ([]*models.Message, error)

	Close() error
}

// ConfigurationMessages finds `[label] ...` configuration lines in a scope's
// history.
func ConfigurationMessages(ctx context.Context, s Storage, scope models.Scope, label string) ([]*models.Message, error) {
	pattern := fmt.Sprintf(`^\[%s\](.*)`, label)
	return s.Search(ctx, scope, pattern, false)
}
