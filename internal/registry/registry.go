// Package registry owns the in-memory trigger set: registration, lifecycle,
// firing-eligibility bookkeeping, and mirroring to the persistence port.
//
// Eligibility (enabled, event match, throttle window, execution cap) is
// checked and claimed atomically under the registry lock, so concurrent event
// batches cannot double-spend a throttle window or exceed maxExecutions.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
	"github.com/jeffkos/form-ease-sub004/internal/storage"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// Hook receives trigger lifecycle notifications for type-specific setup
// (scheduling entries, webhook bindings). Hooks run inside the registry's
// mutation path and must not call back into the registry.
type Hook interface {
	TriggerRegistered(trigger *triggers.Trigger)
	TriggerUnregistered(triggerID string)
}

// Registry is the owned store of trigger definitions
type Registry struct {
	mu       sync.RWMutex
	triggers map[string]*triggers.Trigger
	order    []string // registration order, for stable List output
	store    storage.Store
	hooks    []Hook
	logger   logging.Logger
}

// NewRegistry creates a registry backed by store. A nil store keeps the
// registry purely in-memory.
func NewRegistry(store storage.Store, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Registry{
		triggers: make(map[string]*triggers.Trigger),
		store:    store,
		logger:   logger.WithFields(logging.String("component", "trigger_registry")),
	}
}

// AddHook attaches a lifecycle hook. Hooks added after triggers exist are
// replayed for the current set so late-wired components catch up.
func (r *Registry) AddHook(hook Hook) {
	r.mu.Lock()
	existing := make([]*triggers.Trigger, 0, len(r.order))
	for _, id := range r.order {
		existing = append(existing, r.triggers[id].Clone())
	}
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()

	for _, trigger := range existing {
		hook.TriggerRegistered(trigger)
	}
}

// LoadPersisted re-registers every persisted trigger, redoing type-specific
// setup through the hooks. Load failures leave the registry empty and
// in-memory only.
func (r *Registry) LoadPersisted() error {
	if r.store == nil {
		return nil
	}

	persisted, err := r.store.Load()
	if err != nil {
		r.logger.Error("Failed to load persisted triggers, continuing in-memory", err)
		return err
	}

	for _, trigger := range persisted {
		clone := trigger.Clone()

		r.mu.Lock()
		if _, exists := r.triggers[clone.ID]; exists {
			r.mu.Unlock()
			continue
		}
		r.triggers[clone.ID] = clone
		r.order = append(r.order, clone.ID)
		hooks := r.hooks
		r.mu.Unlock()

		for _, hook := range hooks {
			hook.TriggerRegistered(clone.Clone())
		}
	}

	r.logger.Info("Triggers loaded from store",
		logging.Int("trigger_count", len(persisted)),
	)
	return nil
}

// Register merges config over defaults, stores the trigger, performs
// type-specific setup, persists the registry, and returns the stored trigger
func (r *Registry) Register(config triggers.Config) (*triggers.Trigger, error) {
	if config.Event == "" {
		return nil, errors.ValidationError("trigger event is required")
	}
	if config.Type == triggers.TypeScheduled && config.Schedule == nil {
		return nil, errors.ValidationError("scheduled trigger requires a schedule")
	}

	trigger := applyDefaults(config)

	r.mu.Lock()
	if _, exists := r.triggers[trigger.ID]; exists {
		r.mu.Unlock()
		return nil, errors.ValidationError("trigger id already registered").
			WithContext("trigger_id", trigger.ID)
	}
	r.triggers[trigger.ID] = trigger
	r.order = append(r.order, trigger.ID)
	hooks := r.hooks
	r.mu.Unlock()

	for _, hook := range hooks {
		hook.TriggerRegistered(trigger.Clone())
	}

	r.persist()

	r.logger.Info("Trigger registered",
		logging.String("trigger_id", trigger.ID),
		logging.String("event", trigger.Event),
		logging.String("type", string(trigger.Type)),
	)
	return trigger.Clone(), nil
}

// Unregister removes a trigger, clearing any scheduling entry or webhook
// binding through the hooks
func (r *Registry) Unregister(triggerID string) error {
	r.mu.Lock()
	if _, exists := r.triggers[triggerID]; !exists {
		r.mu.Unlock()
		return errors.NotFoundError("trigger").WithContext("trigger_id", triggerID)
	}
	delete(r.triggers, triggerID)
	for i, id := range r.order {
		if id == triggerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	hooks := r.hooks
	r.mu.Unlock()

	for _, hook := range hooks {
		hook.TriggerUnregistered(triggerID)
	}

	r.persist()

	r.logger.Info("Trigger unregistered", logging.String("trigger_id", triggerID))
	return nil
}

// Toggle enables or disables a trigger
func (r *Registry) Toggle(triggerID string, enabled bool) error {
	r.mu.Lock()
	trigger, exists := r.triggers[triggerID]
	if !exists {
		r.mu.Unlock()
		return errors.NotFoundError("trigger").WithContext("trigger_id", triggerID)
	}
	trigger.Enabled = enabled
	r.mu.Unlock()

	r.persist()

	r.logger.Info("Trigger toggled",
		logging.String("trigger_id", triggerID),
		logging.Bool("enabled", enabled),
	)
	return nil
}

// Get returns a snapshot of one trigger
func (r *Registry) Get(triggerID string) (*triggers.Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trigger, exists := r.triggers[triggerID]
	if !exists {
		return nil, errors.NotFoundError("trigger").WithContext("trigger_id", triggerID)
	}
	return trigger.Clone(), nil
}

// List returns a snapshot of all registered triggers in registration order
func (r *Registry) List() []*triggers.Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*triggers.Trigger, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, r.triggers[id].Clone())
	}
	return snapshot
}

// Count returns the number of registered triggers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.triggers)
}

// Candidates returns snapshots of enabled triggers declared for eventType
// that currently look eligible (throttle elapsed, cap not reached). The
// caller evaluates conditions against these snapshots and then claims the
// survivors; eligibility is re-checked atomically at claim time.
func (r *Registry) Candidates(eventType string, now time.Time) []*triggers.Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*triggers.Trigger
	for _, id := range r.order {
		trigger := r.triggers[id]
		if eligibleLocked(trigger, eventType, now) {
			candidates = append(candidates, trigger.Clone())
		}
	}
	return candidates
}

// Claim atomically re-checks eligibility for the given trigger ids and
// reserves a firing for each one that still qualifies: lastTriggered moves to
// now and executionCount is incremented at claim time, making throttle and
// maxExecutions hard guarantees under concurrent batches. Returns snapshots
// of the claimed triggers sorted by priority rank (stable within a rank).
func (r *Registry) Claim(triggerIDs []string, eventType string, now time.Time) []*triggers.Trigger {
	r.mu.Lock()

	var claimed []*triggers.Trigger
	for _, id := range triggerIDs {
		trigger, exists := r.triggers[id]
		if !exists || !eligibleLocked(trigger, eventType, now) {
			continue
		}
		trigger.Metadata.LastTriggered = now
		trigger.Metadata.ExecutionCount++
		claimed = append(claimed, trigger.Clone())
	}
	r.mu.Unlock()

	sort.SliceStable(claimed, func(i, j int) bool {
		return claimed[i].Priority.Rank() < claimed[j].Priority.Rank()
	})
	return claimed
}

// Settle records the outcome of a claimed firing: success/failure counter and
// the running-average execution time, then re-persists the registry
func (r *Registry) Settle(triggerID string, success bool, executionTime time.Duration) {
	r.mu.Lock()
	trigger, exists := r.triggers[triggerID]
	if exists {
		if success {
			trigger.Metadata.SuccessCount++
		} else {
			trigger.Metadata.FailureCount++
		}

		count := trigger.Metadata.ExecutionCount
		if count <= 1 {
			trigger.Metadata.AverageExecutionTime = executionTime
		} else {
			prior := trigger.Metadata.AverageExecutionTime
			trigger.Metadata.AverageExecutionTime = (prior*time.Duration(count-1) + executionTime) / time.Duration(count)
		}
	}
	r.mu.Unlock()

	if exists {
		r.persist()
	}
}

func eligibleLocked(trigger *triggers.Trigger, eventType string, now time.Time) bool {
	if !trigger.Enabled || trigger.Event != eventType {
		return false
	}
	if trigger.Throttle > 0 && !trigger.Metadata.LastTriggered.IsZero() &&
		now.Sub(trigger.Metadata.LastTriggered) < trigger.Throttle {
		return false
	}
	if trigger.MaxExecutions > 0 && trigger.Metadata.ExecutionCount >= trigger.MaxExecutions {
		return false
	}
	return true
}

// persist mirrors the full trigger set to the store. Failures are logged and
// the registry keeps operating in-memory.
func (r *Registry) persist() {
	if r.store == nil {
		return
	}

	r.mu.RLock()
	snapshot := make([]*triggers.Trigger, 0, len(r.order))
	for _, id := range r.order {
		snapshot = append(snapshot, r.triggers[id].Clone())
	}
	r.mu.RUnlock()

	if err := r.store.Save(snapshot); err != nil {
		r.logger.Error("Failed to persist trigger registry", err)
	}
}

func applyDefaults(config triggers.Config) *triggers.Trigger {
	trigger := &triggers.Trigger{
		ID:            config.ID,
		Name:          config.Name,
		Type:          config.Type,
		Event:         config.Event,
		Priority:      config.Priority,
		Conditions:    config.Conditions,
		Actions:       config.Actions,
		Throttle:      config.Throttle,
		MaxExecutions: config.MaxExecutions,
		Schedule:      config.Schedule,
		Webhook:       config.Webhook,
		Metadata: triggers.Metadata{
			Created: time.Now(),
		},
	}

	if trigger.ID == "" {
		trigger.ID = utils.NewID()
	}
	if trigger.Type == "" {
		trigger.Type = triggers.TypeImmediate
	}
	if trigger.Priority == "" {
		trigger.Priority = triggers.PriorityNormal
	}
	trigger.Enabled = true
	if config.Enabled != nil {
		trigger.Enabled = *config.Enabled
	}

	return trigger
}
