// Package scheduler fires scheduled triggers by synthesizing their declared
// events on a poll loop. It subscribes to registry lifecycle notifications to
// maintain its entry table, and never replays fires missed while stopped.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// DefaultPollInterval is how often the scheduler checks for due entries
const DefaultPollInterval = 60 * time.Second

// EventSink receives the events the scheduler synthesizes for due triggers
type EventSink interface {
	HandleEvent(ctx context.Context, eventType string, data map[string]interface{}) ([]triggers.ExecutionResult, error)
}

type entry struct {
	trigger *triggers.Trigger
	nextRun time.Time
}

// Scheduler tracks scheduled triggers and fires them when due
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry

	sink     EventSink
	interval time.Duration
	logger   logging.Logger

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler delivering to sink. A non-positive
// pollInterval falls back to DefaultPollInterval.
func NewScheduler(sink EventSink, pollInterval time.Duration, logger logging.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Scheduler{
		entries:  make(map[string]*entry),
		sink:     sink,
		interval: pollInterval,
		logger:   logger.WithFields(logging.String("component", "scheduler")),
	}
}

// TriggerRegistered adds an entry for scheduled triggers. Triggers whose next
// fire time cannot be computed are logged and skipped; they stay registered.
func (s *Scheduler) TriggerRegistered(trigger *triggers.Trigger) {
	if trigger.Type != triggers.TypeScheduled || trigger.Schedule == nil {
		return
	}

	next, err := NextExecution(trigger.Schedule, time.Now())
	if err != nil {
		s.logger.Warn("Cannot compute next execution, trigger will not be scheduled",
			logging.String("trigger_id", trigger.ID),
			logging.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.entries[trigger.ID] = &entry{trigger: trigger, nextRun: next}
	s.mu.Unlock()

	s.logger.Info("Trigger scheduled",
		logging.String("trigger_id", trigger.ID),
		logging.Time("next_run", next),
	)
}

// TriggerUnregistered drops the trigger's scheduling entry
func (s *Scheduler) TriggerUnregistered(triggerID string) {
	s.mu.Lock()
	delete(s.entries, triggerID)
	s.mu.Unlock()
}

// NextRun returns the pending fire time for a trigger, if it has an entry
func (s *Scheduler) NextRun(triggerID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[triggerID]
	if !ok {
		return time.Time{}, false
	}
	return e.nextRun, true
}

// Start launches the poll loop. It returns immediately; Stop shuts the loop
// down and waits for it to exit.
func (s *Scheduler) Start(ctx context.Context) {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Scheduler started",
		logging.Duration("poll_interval", s.interval),
	)
}

// Stop terminates the poll loop
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.checkDue(ctx, now)
		}
	}
}

// checkDue fires every entry whose time has come and recomputes its next run
// from now, so fires missed while the loop was not running are skipped rather
// than replayed
func (s *Scheduler) checkDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.nextRun.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fire(ctx, e.trigger, now)

		next, err := NextExecution(e.trigger.Schedule, now)
		if err != nil {
			s.logger.Warn("Cannot compute next execution, dropping schedule entry",
				logging.String("trigger_id", e.trigger.ID),
				logging.String("error", err.Error()),
			)
			s.mu.Lock()
			delete(s.entries, e.trigger.ID)
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if current, ok := s.entries[e.trigger.ID]; ok {
			current.nextRun = next
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) fire(ctx context.Context, trigger *triggers.Trigger, now time.Time) {
	s.logger.Debug("Firing scheduled trigger",
		logging.String("trigger_id", trigger.ID),
		logging.String("event", trigger.Event),
	)

	data := map[string]interface{}{
		"scheduled":     true,
		"triggerId":     trigger.ID,
		"executionTime": now.Format(time.RFC3339),
	}
	if _, err := s.sink.HandleEvent(ctx, trigger.Event, data); err != nil {
		s.logger.Error("Scheduled event delivery failed", err,
			logging.String("trigger_id", trigger.ID),
			logging.String("event", trigger.Event),
		)
	}
}
