// Package reconcile synchronizes locally stored conversation history with
// the platform's current view of a scope. The remote side offers no change
// notifications, only a full listing, so each run is a diff: new messages are
// inserted, changed messages updated, and messages missing from the remote
// listing tombstoned in place.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xaenox/telegram-agent/internal/models"
	"github.com/xaenox/telegram-agent/internal/storage"
	"github.com/xaenox/telegram-agent/internal/telegram"
)

// ErrRemoteFetch marks a failed remote history listing. The whole pass for
// the scope is aborted; no tombstoning happens on a partial view.
var ErrRemoteFetch = errors.New("remote history fetch failed")

// Policy configures behavior the source system left ambiguous.
type Policy struct {
	// KeepTombstones makes a tombstone permanent: a deleted message that
	// reappears in a remote listing stays deleted. The default clears the
	// flag on reappearance.
	KeepTombstones bool

	// FetchTimeout bounds the remote listing; an unbounded history fetch is
	// the main blocking risk of a run. Zero means no bound beyond the
	// caller's context.
	FetchTimeout time.Duration
}

// Stats summarizes what one run changed.
type Stats struct {
	Inserted   int
	Updated    int
	Tombstoned int
	Unchanged  int
}

func (s Stats) Writes() int {
	return s.Inserted + s.Updated + s.Tombstoned
}

func (s Stats) String() string {
	return fmt.Sprintf("inserted=%d updated=%d tombstoned=%d unchanged=%d",
		s.Inserted, s.Updated, s.Tombstoned, s.Unchanged)
}

// HistoryFetcher is the one platform capability reconciliation needs.
// telegram.Client satisfies it.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, scope models.Scope) ([]*tgmodels.Message, error)
}

// Engine drives scope reconciliation. Concurrent Sync calls for the same
// scope collapse into a single run; callers share its result.
type Engine struct {
	store     storage.Storage
	fetcher   HistoryFetcher
	extractor telegram.Extractor
	policy    Policy
	logger    *zap.Logger
	group     singleflight.Group
}

func NewEngine(store storage.Storage, fetcher HistoryFetcher, extractor telegram.Extractor, policy Policy, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		policy:    policy,
		logger:    logger,
	}
}

// Sync brings the store's view of the scope into agreement with the remote
// history. Running it twice with an unchanged remote produces zero writes on
// the second run.
func (e *Engine) Sync(ctx context.Context, scope models.Scope) (Stats, error) {
	if !scope.IsValid() {
		return Stats{}, storage.ErrInvalidScope
	}

	key := fmt.Sprintf("%d:%d", scope.ChatID, scope.ThreadID)
	v, err, shared := e.group.Do(key, func() (any, error) {
		return e.sync(ctx, scope)
	})
	if shared {
		e.logger.Debug("Joined in-flight reconciliation",
			zap.Int64("chat_id", scope.ChatID),
			zap.Int("thread_id", scope.ThreadID))
	}
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

func (e *Engine) sync(ctx context.Context, scope models.Scope) (Stats, error) {
	var stats Stats

	// Tombstones are included so a message deleted upstream is not treated
	// as brand new, and so it is not re-tombstoned on every run.
	existing, err := e.store.History(ctx, scope, true)
	if err != nil {
		return stats, fmt.Errorf("reading stored history: %w", err)
	}
	existingByID := make(map[int]*models.Message, len(existing))
	for _, msg := range existing {
		existingByID[msg.MsgID] = msg
	}

	remote, err := e.fetchRemote(ctx, scope)
	if err != nil {
		// Abort before any diffing: a partial remote view must not produce
		// tombstones.
		return stats, fmt.Errorf("%w: %v", ErrRemoteFetch, err)
	}

	seen := make(map[int]struct{}, len(remote))
	for _, raw := range remote {
		msgCtx := e.extractor.Extract(raw)
		if msgCtx.ChatID == 0 || msgCtx.Text == "" {
			continue
		}
		msg := msgCtx.Message()
		seen[msg.MsgID] = struct{}{}

		if prev, ok := existingByID[msg.MsgID]; ok && prev.Deleted && e.policy.KeepTombstones {
			msg.Deleted = true
		}

		e.upsertReferences(ctx, msgCtx)

		result, err := e.store.UpsertMessage(ctx, msg)
		if err != nil {
			// Per-message isolation: skip this one, keep reconciling.
			e.logger.Error("Failed to persist reconciled message",
				zap.Int64("chat_id", msg.ChatID),
				zap.Int("msg_id", msg.MsgID),
				zap.Error(err))
			continue
		}
		switch result {
		case storage.ResultInserted:
			stats.Inserted++
		case storage.ResultUpdated:
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}

	for msgID, prev := range existingByID {
		if _, ok := seen[msgID]; ok || prev.Deleted {
			continue
		}
		tombstone := prev.Clone()
		tombstone.Deleted = true
		if _, err := e.store.UpsertMessage(ctx, tombstone); err != nil {
			e.logger.Error("Failed to tombstone message",
				zap.Int64("chat_id", prev.ChatID),
				zap.Int("msg_id", prev.MsgID),
				zap.Error(err))
			continue
		}
		stats.Tombstoned++
	}

	e.logger.Info("Reconciliation finished",
		zap.Int64("chat_id", scope.ChatID),
		zap.Int("thread_id", scope.ThreadID),
		zap.String("stats", stats.String()))
	return stats, nil
}

func (e *Engine) fetchRemote(ctx context.Context, scope models.Scope) ([]*tgmodels.Message, error) {
	if e.policy.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.FetchTimeout)
		defer cancel()
	}
	return e.fetcher.FetchHistory(ctx, scope)
}

// upsertReferences keeps the user and chat records in step with what the
// remote listing shows. Failures here are logged only; the message itself is
// what reconciliation is about.
func (e *Engine) upsertReferences(ctx context.Context, msgCtx models.MessageContext) {
	if msgCtx.User != nil {
		if _, err := e.store.UpsertUser(ctx, msgCtx.User); err != nil {
			e.logger.Warn("Failed to upsert user during reconciliation",
				zap.Int64("user_id", msgCtx.User.ID),
				zap.Error(err))
		}
	}
	if msgCtx.Chat != nil {
		if _, err := e.store.UpsertChat(ctx, msgCtx.Chat); err != nil {
			e.logger.Warn("Failed to upsert chat during reconciliation",
				zap.Int64("chat_id", msgCtx.Chat.ID),
				zap.Error(err))
		}
	}
}
