// Package actions executes a trigger's ordered action list. Executors are
// registered per action type; collaborators (workflow engine, notification
// sender, HTTP layer, integration invoker) are injected through narrow
// interfaces so the dispatcher never reaches outside its ports.
package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// Executor runs one action type against an execution context
type Executor interface {
	Execute(ctx context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error)

func (f ExecutorFunc) Execute(ctx context.Context, action triggers.Action, execCtx *triggers.ExecutionContext) (interface{}, error) {
	return f(ctx, action, execCtx)
}

// Dispatcher routes actions to their registered executors and runs a
// trigger's action list sequentially, fail-soft per action
type Dispatcher struct {
	mu        sync.RWMutex
	executors map[string]Executor
	logger    logging.Logger
}

// NewDispatcher creates an empty dispatcher; call RegisterBuiltins or
// RegisterExecutor to populate it
func NewDispatcher(logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Dispatcher{
		executors: make(map[string]Executor),
		logger:    logger.WithFields(logging.String("component", "action_dispatcher")),
	}
}

// RegisterExecutor binds an action type to its executor, replacing any
// previous binding
func (d *Dispatcher) RegisterExecutor(actionType string, executor Executor) {
	d.mu.Lock()
	d.executors[actionType] = executor
	d.mu.Unlock()
}

func (d *Dispatcher) executorFor(actionType string) (Executor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	executor, ok := d.executors[actionType]
	return executor, ok
}

// ExecuteTrigger builds a fresh execution context and runs the trigger's
// actions in order. Each action's failure is captured in its result entry and
// the remaining actions still run; the overall result is successful only when
// every action succeeded.
func (d *Dispatcher) ExecuteTrigger(ctx context.Context, trigger *triggers.Trigger, eventType string, eventData map[string]interface{}) *triggers.ExecutionResult {
	start := time.Now()
	executionID := utils.NewUUID()
	execCtx := &triggers.ExecutionContext{
		ExecutionID: executionID,
		TriggerID:   trigger.ID,
		EventType:   eventType,
		EventData:   eventData,
		Timestamp:   start,
	}

	result := &triggers.ExecutionResult{
		ExecutionID: executionID,
		TriggerID:   trigger.ID,
		Success:     true,
		Results:     make([]triggers.ActionResult, 0, len(trigger.Actions)),
		Timestamp:   start,
	}

	for _, action := range trigger.Actions {
		entry := triggers.ActionResult{Action: action.Type}

		executor, ok := d.executorFor(action.Type)
		if !ok {
			entry.Success = false
			entry.Error = fmt.Sprintf("no executor registered for action type %q", action.Type)
		} else if output, err := executor.Execute(ctx, action, execCtx); err != nil {
			entry.Success = false
			entry.Error = err.Error()
			d.logger.Warn("Action failed",
				logging.String("trigger_id", trigger.ID),
				logging.String("action", action.Type),
				logging.String("error", err.Error()),
			)
		} else {
			entry.Success = true
			entry.Output = output
		}

		if !entry.Success {
			result.Success = false
		}
		result.Results = append(result.Results, entry)
	}

	result.ExecutionTime = time.Since(start)
	return result
}
