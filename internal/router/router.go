// Package router orchestrates event handling: it claims eligible triggers
// from the registry, filters them through the condition engine, launches the
// survivors concurrently in priority order, and records metrics and history.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeffkos/form-ease-sub004/internal/actions"
	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
	"github.com/jeffkos/form-ease-sub004/internal/registry"
	"github.com/jeffkos/form-ease-sub004/internal/rules"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

const (
	// DefaultHistoryCap bounds the in-memory history; when reached, the
	// oldest half is dropped
	DefaultHistoryCap = 1000

	// DefaultHistoryRetention is how long history entries are kept
	DefaultHistoryRetention = 30 * 24 * time.Hour

	// DefaultPruneInterval is how often the retention sweep runs
	DefaultPruneInterval = time.Hour

	// responseTimeAlpha is the exponential smoothing factor for the global
	// average response time
	responseTimeAlpha = 0.1
)

// sourceEvents maps host-page event names to logical event names
var sourceEvents = map[string]string{
	"formSubmitted":  "form.submitted",
	"formUpdated":    "form.updated",
	"formApproved":   "form.approved",
	"userLogin":      "user.login",
	"userRegistered": "user.registered",
	"error":          "system.error",
}

// Metrics is the global counter snapshot of the router
type Metrics struct {
	EventsHandled       int64         `json:"eventsHandled"`
	TriggersExecuted    int64         `json:"triggersExecuted"`
	TriggersSuccessful  int64         `json:"triggersSuccessful"`
	TriggersFailed      int64         `json:"triggersFailed"`
	LastExecution       time.Time     `json:"lastExecution,omitempty"`
	AverageResponseTime time.Duration `json:"averageResponseTime"`
}

// Options tunes history bounds and the prune loop
type Options struct {
	HistoryCap       int
	HistoryRetention time.Duration
	PruneInterval    time.Duration
}

// Router dispatches events to matching triggers
type Router struct {
	registry   *registry.Registry
	engine     *rules.Engine
	dispatcher *actions.Dispatcher
	options    Options
	logger     logging.Logger

	mu      sync.Mutex
	metrics Metrics
	history []triggers.HistoryEntry

	stop chan struct{}
	done chan struct{}
}

// NewRouter wires the router to its collaborators. Zero option fields take
// the package defaults.
func NewRouter(reg *registry.Registry, engine *rules.Engine, dispatcher *actions.Dispatcher, options Options, logger logging.Logger) *Router {
	if options.HistoryCap <= 0 {
		options.HistoryCap = DefaultHistoryCap
	}
	if options.HistoryRetention <= 0 {
		options.HistoryRetention = DefaultHistoryRetention
	}
	if options.PruneInterval <= 0 {
		options.PruneInterval = DefaultPruneInterval
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Router{
		registry:   reg,
		engine:     engine,
		dispatcher: dispatcher,
		options:    options,
		logger:     logger.WithFields(logging.String("component", "event_router")),
	}
}

// HandleEvent routes one event: eligible triggers are claimed, filtered by
// their conditions, launched concurrently in priority-rank order, and awaited
// collectively. One trigger's failure never blocks another; a failure in the
// matching phase aborts the whole batch.
func (r *Router) HandleEvent(ctx context.Context, eventType string, data map[string]interface{}) ([]triggers.ExecutionResult, error) {
	start := time.Now()

	matched, err := r.matchTriggers(eventType, data, start)
	if err != nil {
		r.mu.Lock()
		r.metrics.EventsHandled++
		r.metrics.TriggersFailed++
		r.mu.Unlock()
		r.logger.Error("Event matching failed", err, logging.String("event_type", eventType))
		return nil, err
	}

	claimed := r.registry.Claim(matched, eventType, start)
	if len(claimed) == 0 {
		r.mu.Lock()
		r.metrics.EventsHandled++
		r.mu.Unlock()
		return nil, nil
	}

	r.logger.Debug("Dispatching event",
		logging.String("event_type", eventType),
		logging.Int("trigger_count", len(claimed)),
	)

	// claimed is priority-sorted; each execution signals back as it enters the
	// dispatch path so launch order follows rank order, while completions
	// still race freely
	results := make([]triggers.ExecutionResult, len(claimed))
	var wg sync.WaitGroup
	for i, trigger := range claimed {
		wg.Add(1)
		started := make(chan struct{})
		go func(i int, trigger *triggers.Trigger) {
			defer wg.Done()
			results[i] = *r.executeOne(ctx, trigger, eventType, data, started)
		}(i, trigger)
		<-started
	}
	wg.Wait()

	duration := time.Since(start)
	successes, failures := 0, 0
	for _, result := range results {
		if result.Success {
			successes++
		} else {
			failures++
		}
	}

	r.mu.Lock()
	r.metrics.EventsHandled++
	r.metrics.TriggersExecuted += int64(len(results))
	r.metrics.TriggersSuccessful += int64(successes)
	r.metrics.TriggersFailed += int64(failures)
	r.metrics.LastExecution = start
	if r.metrics.AverageResponseTime == 0 {
		r.metrics.AverageResponseTime = duration
	} else {
		prior := float64(r.metrics.AverageResponseTime)
		r.metrics.AverageResponseTime = time.Duration(prior*(1-responseTimeAlpha) + float64(duration)*responseTimeAlpha)
	}
	r.appendHistoryLocked(triggers.HistoryEntry{
		EventID:          utils.GenerateEventID("evt", eventType),
		EventType:        eventType,
		EventData:        data,
		TriggersExecuted: len(results),
		SuccessCount:     successes,
		FailureCount:     failures,
		Timestamp:        start,
		Duration:         duration,
	})
	r.mu.Unlock()

	return results, nil
}

// HandleSourceEvent translates a host-page event name to its logical event
// name and routes it. Unmapped names are routed unchanged.
func (r *Router) HandleSourceEvent(ctx context.Context, sourceName string, data map[string]interface{}) ([]triggers.ExecutionResult, error) {
	eventType, ok := sourceEvents[sourceName]
	if !ok {
		eventType = sourceName
	}
	return r.HandleEvent(ctx, eventType, data)
}

// TriggerRegistered implements registry.Hook. Compiled conditions are built
// lazily on first evaluation, so registration needs no work here.
func (r *Router) TriggerRegistered(trigger *triggers.Trigger) {}

// TriggerUnregistered drops the trigger's cached compiled conditions, so a
// later registration reusing the id starts from its newly declared conditions
func (r *Router) TriggerUnregistered(triggerID string) {
	r.engine.Remove(triggerID)
}

// Metrics returns a snapshot of the global counters
func (r *Router) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// History returns a snapshot of the recorded entries, oldest first
func (r *Router) History() []triggers.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]triggers.HistoryEntry(nil), r.history...)
}

// StartPruning launches the periodic retention sweep
func (r *Router) StartPruning() {
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.options.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case now := <-ticker.C:
				r.pruneHistory(now)
			}
		}
	}()
}

// StopPruning terminates the retention sweep
func (r *Router) StopPruning() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	<-r.done
	r.stop = nil
}

// matchTriggers selects the candidate triggers whose conditions pass. A panic
// during evaluation aborts the batch rather than crashing the router.
func (r *Router) matchTriggers(eventType string, data map[string]interface{}, now time.Time) (ids []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ids = nil
			err = fmt.Errorf("trigger matching panicked: %v", rec)
		}
	}()

	for _, trigger := range r.registry.Candidates(eventType, now) {
		if r.engine.EvaluateFor(trigger.ID, trigger.Conditions, data) {
			ids = append(ids, trigger.ID)
		}
	}
	return ids, nil
}

func (r *Router) executeOne(ctx context.Context, trigger *triggers.Trigger, eventType string, data map[string]interface{}, started chan<- struct{}) *triggers.ExecutionResult {
	close(started)

	result := r.dispatcher.ExecuteTrigger(ctx, trigger, eventType, data)
	r.registry.Settle(trigger.ID, result.Success, result.ExecutionTime)

	if !result.Success {
		r.logger.Warn("Trigger execution completed with failures",
			logging.String("trigger_id", trigger.ID),
			logging.String("event_type", eventType),
		)
	}
	return result
}

func (r *Router) appendHistoryLocked(entry triggers.HistoryEntry) {
	if len(r.history) >= r.options.HistoryCap {
		// drop the oldest half
		keep := len(r.history) / 2
		r.history = append(r.history[:0:0], r.history[len(r.history)-keep:]...)
	}
	r.history = append(r.history, entry)
}

// pruneHistory drops entries older than the retention window
func (r *Router) pruneHistory(now time.Time) {
	cutoff := now.Add(-r.options.HistoryRetention)

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := 0
	for idx < len(r.history) && r.history[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		r.history = append(r.history[:0:0], r.history[idx:]...)
	}
}
