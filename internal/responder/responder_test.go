package responder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/models"
	"github.com/xaenox/telegram-agent/internal/storage"
)

func TestRecentHistory(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStorage()
	ctx := context.Background()
	base := time.Date(2024, 11, 2, 10, 0, 0, 0, time.UTC)

	for i, text := range []string{"plan the release", "", "cut the branch", "tag it"} {
		_, err := store.UpsertMessage(ctx, &models.Message{
			ChatID: 100,
			MsgID:  i + 1,
			UserID: int64(7 + i),
			Date:   base.Add(time.Duration(i) * time.Minute),
			Text:   text,
		})
		require.NoError(t, err)
	}

	r := NewOpenAIResponder("", "gpt-4o-mini", 300, 0.7, 2, store, zap.NewNop())

	// The limit keeps only the newest messages; blank rows are dropped.
	history, err := r.recentHistory(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "9: cut the branch\n10: tag it", history)

	unbounded := NewOpenAIResponder("", "gpt-4o-mini", 300, 0.7, 0, store, zap.NewNop())
	history, err = unbounded.recentHistory(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "7: plan the release\n9: cut the branch\n10: tag it", history)
}
