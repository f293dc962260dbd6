package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/models"
)

// Step pairs a filter conjunction with an ordered action list. The actions
// run only when every filter passes.
type Step struct {
	Name    string
	Filters []Filter
	Actions []Action
}

// Engine evaluates a fixed, ordered sequence of steps against incoming
// message contexts. The step list is built once at configuration time and
// never mutated; per-context state lives entirely in resolved action copies,
// so Evaluate is safe to call concurrently.
type Engine struct {
	steps  []Step
	exec   Executor
	logger *zap.Logger
}

func NewEngine(exec Executor, logger *zap.Logger, steps ...Step) *Engine {
	return &Engine{
		steps:  steps,
		exec:   exec,
		logger: logger,
	}
}

// Evaluate runs every step, in order, against the context. Steps are
// independent: a step whose filters fail, whose action errors, or which
// panics never prevents later steps from being attempted.
func (e *Engine) Evaluate(ctx context.Context, msgCtx models.MessageContext) {
	for i := range e.steps {
		e.runStep(ctx, &e.steps[i], msgCtx)
	}
}

func (e *Engine) runStep(ctx context.Context, step *Step, msgCtx models.MessageContext) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Pipeline step panicked",
				zap.String("step", step.Name),
				zap.Any("panic", r))
		}
	}()

	for _, f := range step.Filters {
		if !f.Matches(msgCtx) {
			e.logger.Debug("Pipeline step filtered out",
				zap.String("step", step.Name),
				zap.String("filter", f.Name),
				zap.Int64("chat_id", msgCtx.ChatID))
			return
		}
	}

	for i, action := range step.Actions {
		if err := action.Execute(ctx, e.exec, msgCtx); err != nil {
			// An action failure aborts the remainder of this step's action
			// list but not the following steps.
			e.logger.Error("Pipeline action failed",
				zap.String("step", step.Name),
				zap.String("action", string(action.Kind())),
				zap.Int("action_index", i),
				zap.Int64("chat_id", msgCtx.ChatID),
				zap.Error(err))
			return
		}
	}
}

// Describe returns a short human-readable summary of the configured steps,
// used at startup logging.
func (e *Engine) Describe() string {
	return fmt.Sprintf("%d steps", len(e.steps))
}
