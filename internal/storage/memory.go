package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/xaenox/telegram-agent/internal/models"
)

type msgKey struct {
	chatID int64
	msgID  int
}

// MemoryStorage is a mutex-guarded in-memory Storage, used for tests and for
// running without a database.
type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[int64]*models.User
	chats    map[int64]*models.Chat
	messages map[msgKey]*models.Message
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[int64]*models.User),
		chats:    make(map[int64]*models.Chat),
		messages: make(map[msgKey]*models.Message),
	}
}

func (s *MemoryStorage) UpsertUser(ctx context.Context, user *models.User) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		u := *user
		s.users[user.ID] = &u
		return ResultInserted, nil
	}

	updated := *existing
	if user.Username != "" {
		updated.Username = user.Username
	}
	if user.FirstName != "" {
		updated.FirstName = user.FirstName
	}
	if user.LastName != "" {
		updated.LastName = user.LastName
	}
	if updated == *existing {
		return ResultUnchanged, nil
	}
	s.users[user.ID] = &updated
	return ResultUpdated, nil
}

func (s *MemoryStorage) UpsertChat(ctx context.Context, chat *models.Chat) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.chats[chat.ID]
	if !ok {
		c := *chat
		s.chats[chat.ID] = &c
		return ResultInserted, nil
	}

	updated := *existing
	if chat.Type != "" {
		updated.Type = chat.Type
	}
	if chat.Title != "" {
		updated.Title = chat.Title
	}
	if chat.Username != "" {
		updated.Username = chat.Username
	}
	if chat.FirstName != "" {
		updated.FirstName = chat.FirstName
	}
	if chat.LastName != "" {
		updated.LastName = chat.LastName
	}
	if updated == *existing {
		return ResultUnchanged, nil
	}
	s.chats[chat.ID] = &updated
	return ResultUpdated, nil
}

func (s *MemoryStorage) UpsertMessage(ctx context.Context, msg *models.Message) (UpsertResult, error) {
	if msg.ChatID == 0 {
		return ResultUnchanged, ErrInvalidScope
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := msgKey{chatID: msg.ChatID, msgID: msg.MsgID}
	existing, ok := s.messages[key]
	if !ok {
		s.messages[key] = msg.Clone()
		return ResultInserted, nil
	}
	if existing.FieldsEqual(msg) {
		return ResultUnchanged, nil
	}
	s.messages[key] = msg.Clone()
	return ResultUpdated, nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.users[id]; ok {
		u := *user
		return &u, nil
	}
	return nil, nil
}

func (s *MemoryStorage) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if chat, ok := s.chats[id]; ok {
		c := *chat
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStorage) History(ctx context.Context, scope models.Scope, includeDeleted bool) ([]*models.Message, error) {
	if !scope.IsValid() {
		return nil, ErrInvalidScope
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Message
	for _, msg := range s.messages {
		if !scope.Contains(msg) {
			continue
		}
		if msg.Deleted && !includeDeleted {
			continue
		}
		result = append(result, msg.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date.Equal(result[j].Date) {
			return result[i].MsgID < result[j].MsgID
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (s *MemoryStorage) Search(ctx context.Context, scope models.Scope, pattern string, includeDeleted bool) ([]*models.Message, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern %q: %w", pattern, err)
	}

	messages, err := s.History(ctx, scope, includeDeleted)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{})
	var matches []*models.Message
	for _, msg := range messages {
		if msg.Text == "" || !regex.MatchString(msg.Text) {
			continue
		}
		if _, dup := seen[msg.MsgID]; dup {
			continue
		}
		seen[msg.MsgID] = struct{}{}
		matches = append(matches, msg)
	}
	return matches, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
