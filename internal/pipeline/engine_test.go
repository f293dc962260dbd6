package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/models"
)

// recordingExecutor captures the resolved actions it receives and can be told
// to fail a given kind.
type recordingExecutor struct {
	mu        sync.Mutex
	sent      []SendMessage
	forwarded []ForwardMessage
	groups    []CreateSupergroup
	topics    []CreateForumTopic
	invoked   []InvokeFunction
	failKinds map[ActionKind]error
}

func (r *recordingExecutor) failure(kind ActionKind) error {
	if r.failKinds == nil {
		return nil
	}
	return r.failKinds[kind]
}

func (r *recordingExecutor) SendMessage(_ context.Context, action SendMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(KindSendMessage); err != nil {
		return err
	}
	r.sent = append(r.sent, action)
	return nil
}

func (r *recordingExecutor) ForwardMessage(_ context.Context, action ForwardMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(KindForwardMessage); err != nil {
		return err
	}
	r.forwarded = append(r.forwarded, action)
	return nil
}

func (r *recordingExecutor) CreateSupergroup(_ context.Context, action CreateSupergroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(KindCreateSupergroup); err != nil {
		return err
	}
	r.groups = append(r.groups, action)
	return nil
}

func (r *recordingExecutor) CreateForumTopic(_ context.Context, action CreateForumTopic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(KindCreateForumTopic); err != nil {
		return err
	}
	r.topics = append(r.topics, action)
	return nil
}

func (r *recordingExecutor) Invoke(_ context.Context, action InvokeFunction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure(KindInvokeFunction); err != nil {
		return err
	}
	r.invoked = append(r.invoked, action)
	return nil
}

func privateContext(chatID int64, text string) models.MessageContext {
	return models.MessageContext{
		MsgID:    10,
		UserID:   7,
		ChatID:   chatID,
		ChatType: models.ChatTypePrivate,
		Text:     text,
	}
}

func supergroupContext(chatID int64, text string) models.MessageContext {
	return models.MessageContext{
		MsgID:     11,
		UserID:    7,
		ChatID:    chatID,
		ChatType:  models.ChatTypeSupergroup,
		ChatTitle: "Project",
		Text:      text,
	}
}

func TestEvaluateStepsAreIndependent(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{}
	engine := NewEngine(exec, zap.NewNop(),
		Step{
			Name:    "greeting",
			Filters: []Filter{ChatTypeIs(models.ChatTypePrivate), TextContains("hello")},
			Actions: []Action{SendMessage{Text: "Hi there"}},
		},
		Step{
			Name:    "notify-admin",
			Filters: []Filter{ChatTypeIs(models.ChatTypeSupergroup)},
			Actions: []Action{ForwardMessage{ToChatID: 999}},
		},
	)

	t.Run("private hello fires only the greeting step", func(t *testing.T) {
		engine.Evaluate(context.Background(), privateContext(100, "Hello!"))
		require.Len(t, exec.sent, 1)
		assert.Equal(t, int64(100), exec.sent[0].ChatID)
		assert.Equal(t, "Hi there", exec.sent[0].Text)
		assert.Empty(t, exec.forwarded)
	})

	t.Run("supergroup message fires only the forward step", func(t *testing.T) {
		exec.sent, exec.forwarded = nil, nil
		engine.Evaluate(context.Background(), supergroupContext(200, "hello"))
		assert.Empty(t, exec.sent)
		require.Len(t, exec.forwarded, 1)
		assert.Equal(t, int64(200), exec.forwarded[0].FromChatID)
		assert.Equal(t, int64(999), exec.forwarded[0].ToChatID)
		assert.Equal(t, 11, exec.forwarded[0].MsgID)
	})

	t.Run("private non-hello fires nothing", func(t *testing.T) {
		exec.sent, exec.forwarded = nil, nil
		engine.Evaluate(context.Background(), privateContext(100, "goodbye"))
		assert.Empty(t, exec.sent)
		assert.Empty(t, exec.forwarded)
	})
}

func TestEvaluateBindsPerInvocation(t *testing.T) {
	t.Parallel()

	// One shared action template, two different triggering contexts. Each
	// invocation must resolve its own copy.
	exec := &recordingExecutor{}
	engine := NewEngine(exec, zap.NewNop(), Step{
		Name:    "echo",
		Filters: []Filter{HasText()},
		Actions: []Action{SendMessage{}},
	})

	engine.Evaluate(context.Background(), privateContext(111, "one"))
	engine.Evaluate(context.Background(), privateContext(222, "two"))

	require.Len(t, exec.sent, 2)
	assert.Equal(t, int64(111), exec.sent[0].ChatID)
	assert.Equal(t, "Message from 7: one", exec.sent[0].Text)
	assert.Equal(t, int64(222), exec.sent[1].ChatID)
	assert.Equal(t, "Message from 7: two", exec.sent[1].Text)
}

func TestEvaluateActionFailureAbortsOnlyItsStep(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{
		failKinds: map[ActionKind]error{KindForwardMessage: errors.New("forward rejected")},
	}
	engine := NewEngine(exec, zap.NewNop(),
		Step{
			Name:    "forward-then-ack",
			Filters: []Filter{HasText()},
			Actions: []Action{
				ForwardMessage{ToChatID: 999},
				SendMessage{Text: "forwarded"},
			},
		},
		Step{
			Name:    "audit",
			Filters: []Filter{HasText()},
			Actions: []Action{SendMessage{ChatID: 500, Text: "audit"}},
		},
	)

	engine.Evaluate(context.Background(), privateContext(100, "payload"))

	// The failed forward suppressed its step's ack, not the later step.
	require.Len(t, exec.sent, 1)
	assert.Equal(t, "audit", exec.sent[0].Text)
	assert.Equal(t, int64(500), exec.sent[0].ChatID)
}

func TestEvaluateFilterPanicIsolated(t *testing.T) {
	t.Parallel()

	exec := &recordingExecutor{}
	engine := NewEngine(exec, zap.NewNop(),
		Step{
			Name: "broken",
			Filters: []Filter{NewMessageFilter("explodes", func(models.MessageContext) bool {
				panic("boom")
			})},
			Actions: []Action{SendMessage{Text: "never"}},
		},
		Step{
			Name:    "survivor",
			Filters: []Filter{HasText()},
			Actions: []Action{SendMessage{Text: "still here"}},
		},
	)

	engine.Evaluate(context.Background(), privateContext(100, "hi"))

	require.Len(t, exec.sent, 1)
	assert.Equal(t, "still here", exec.sent[0].Text)
}

func TestEvaluateFilterConjunctionShortCircuits(t *testing.T) {
	t.Parallel()

	evaluated := false
	exec := &recordingExecutor{}
	engine := NewEngine(exec, zap.NewNop(), Step{
		Name: "conjunction",
		Filters: []Filter{
			ChatTypeIs(models.ChatTypeChannel),
			NewMessageFilter("second", func(models.MessageContext) bool {
				evaluated = true
				return true
			}),
		},
		Actions: []Action{SendMessage{Text: "never"}},
	})

	engine.Evaluate(context.Background(), privateContext(100, "hi"))

	assert.False(t, evaluated)
	assert.Empty(t, exec.sent)
}
