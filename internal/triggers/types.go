// Package triggers defines the data model of the automation core: trigger
// definitions, their schedules and webhook bindings, events, actions, and the
// execution records produced when triggers fire.
package triggers

import (
	"time"
)

// TriggerType classifies how a trigger is activated
type TriggerType string

const (
	// TypeImmediate fires on matching application events
	TypeImmediate TriggerType = "immediate"
	// TypeScheduled fires on a time schedule
	TypeScheduled TriggerType = "scheduled"
	// TypeWebhook fires on an inbound HTTP call
	TypeWebhook TriggerType = "webhook"
	// TypeDataThreshold fires when a monitored value crosses a threshold
	TypeDataThreshold TriggerType = "data-threshold"
)

// Priority orders trigger execution; lower rank launches first
type Priority string

const (
	PriorityCritical   Priority = "critical"
	PriorityHigh       Priority = "high"
	PriorityNormal     Priority = "normal"
	PriorityLow        Priority = "low"
	PriorityBackground Priority = "background"
)

// Rank returns the numeric rank of the priority (critical=1 .. background=5).
// Unknown priorities rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 4
	case PriorityBackground:
		return 5
	default:
		return 3
	}
}

// ScheduleType selects how a scheduled trigger computes its next fire time
type ScheduleType string

const (
	ScheduleInterval ScheduleType = "interval"
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekly   ScheduleType = "weekly"
	ScheduleMonthly  ScheduleType = "monthly"
	// ScheduleCron evaluates a standard cron expression
	ScheduleCron ScheduleType = "cron"
)

// Schedule describes when a scheduled trigger fires
type Schedule struct {
	Type ScheduleType `json:"type"`

	// Interval between fires, for type=interval
	Interval time.Duration `json:"interval,omitempty"`

	// Time of day "HH:MM", for daily, weekly, and monthly schedules
	Time string `json:"time,omitempty"`

	// Day is the weekday name for weekly schedules. French day names
	// (lundi..dimanche) are accepted alongside English ones.
	Day string `json:"day,omitempty"`

	// Date is the day of month (1-31) for monthly schedules
	Date int `json:"date,omitempty"`

	// Expression is a cron expression for type=cron
	Expression string `json:"expression,omitempty"`
}

// WebhookBinding describes an inbound HTTP endpoint bound to a trigger
type WebhookBinding struct {
	Path   string `json:"path"`
	Method string `json:"method,omitempty"`
	// Secret, when set, must match the X-Webhook-Secret request header
	Secret string `json:"secret,omitempty"`
}

// Metadata holds per-trigger runtime statistics
type Metadata struct {
	Created              time.Time     `json:"created"`
	LastTriggered        time.Time     `json:"lastTriggered,omitempty"`
	ExecutionCount       int           `json:"executionCount"`
	SuccessCount         int           `json:"successCount"`
	FailureCount         int           `json:"failureCount"`
	AverageExecutionTime time.Duration `json:"averageExecutionTime"`
}

// Action is one unit of work attached to a trigger
type Action struct {
	Type string `json:"type"`
	// Params carries the type-specific fields of the action descriptor
	Params map[string]interface{} `json:"params,omitempty"`
}

// Param returns a string parameter of the action, or def when absent
func (a Action) Param(key, def string) string {
	if v, ok := a.Params[key].(string); ok {
		return v
	}
	return def
}

// Trigger is a declarative automation rule binding an event name, conditions,
// and an ordered action list
type Trigger struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Type     TriggerType `json:"type"`
	Event    string      `json:"event"`
	Priority Priority    `json:"priority"`
	Enabled  bool        `json:"enabled"`

	// Conditions maps field paths to either a literal (strict equality), an
	// operator condition {operator, value}, or the special "script" key
	// holding an expression source.
	Conditions map[string]interface{} `json:"conditions,omitempty"`

	Actions []Action `json:"actions"`

	// Throttle is the minimum interval between two firings (0 = unthrottled)
	Throttle time.Duration `json:"throttle,omitempty"`

	// MaxExecutions caps lifetime firings (0 = unlimited)
	MaxExecutions int `json:"maxExecutions,omitempty"`

	Schedule *Schedule       `json:"schedule,omitempty"`
	Webhook  *WebhookBinding `json:"webhook,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Config is the caller-supplied trigger definition; zero fields are filled
// with defaults on registration
type Config struct {
	ID            string                 `json:"id,omitempty"`
	Name          string                 `json:"name,omitempty"`
	Type          TriggerType            `json:"type,omitempty"`
	Event         string                 `json:"event"`
	Priority      Priority               `json:"priority,omitempty"`
	Enabled       *bool                  `json:"enabled,omitempty"`
	Conditions    map[string]interface{} `json:"conditions,omitempty"`
	Actions       []Action               `json:"actions,omitempty"`
	Throttle      time.Duration          `json:"throttle,omitempty"`
	MaxExecutions int                    `json:"maxExecutions,omitempty"`
	Schedule      *Schedule              `json:"schedule,omitempty"`
	Webhook       *WebhookBinding        `json:"webhook,omitempty"`
}

// Event is a named occurrence with an associated data payload
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// ExecutionContext is the bundle passed to action executors for one firing
type ExecutionContext struct {
	ExecutionID string                 `json:"executionId"`
	TriggerID   string                 `json:"triggerId"`
	EventType   string                 `json:"eventType"`
	EventData   map[string]interface{} `json:"eventData"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ActionResult records the outcome of one action within a firing
type ActionResult struct {
	Action  string      `json:"action"`
	Success bool        `json:"success"`
	Output  interface{} `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ExecutionResult summarizes one trigger firing
type ExecutionResult struct {
	ExecutionID   string         `json:"executionId"`
	TriggerID     string         `json:"triggerId"`
	Success       bool           `json:"success"`
	Results       []ActionResult `json:"results"`
	ExecutionTime time.Duration  `json:"executionTime"`
	Timestamp     time.Time      `json:"timestamp"`
}

// HistoryEntry is the immutable record appended after each event batch
type HistoryEntry struct {
	EventID          string                 `json:"eventId"`
	EventType        string                 `json:"eventType"`
	EventData        map[string]interface{} `json:"eventData"`
	TriggersExecuted int                    `json:"triggersExecuted"`
	SuccessCount     int                    `json:"successCount"`
	FailureCount     int                    `json:"failureCount"`
	Timestamp        time.Time              `json:"timestamp"`
	Duration         time.Duration          `json:"duration"`
}

// Clone returns a deep-enough copy of the trigger for snapshot reads: scalar
// fields are copied, the actions slice is duplicated, and sub-objects are
// re-allocated. Condition and param maps are shared; callers must not mutate
// them.
func (t *Trigger) Clone() *Trigger {
	clone := *t

	if t.Actions != nil {
		clone.Actions = make([]Action, len(t.Actions))
		copy(clone.Actions, t.Actions)
	}
	if t.Schedule != nil {
		s := *t.Schedule
		clone.Schedule = &s
	}
	if t.Webhook != nil {
		w := *t.Webhook
		clone.Webhook = &w
	}

	return &clone
}
