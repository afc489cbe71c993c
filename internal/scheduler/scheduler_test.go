package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestNextExecutionInterval(t *testing.T) {
	from := mustParse(t, "2026-03-02T10:00:00Z")

	next, err := NextExecution(&triggers.Schedule{
		Type:     triggers.ScheduleInterval,
		Interval: 30 * time.Minute,
	}, from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(30*time.Minute), next)

	_, err = NextExecution(&triggers.Schedule{Type: triggers.ScheduleInterval}, from)
	assert.Error(t, err)
}

func TestNextExecutionDaily(t *testing.T) {
	schedule := &triggers.Schedule{Type: triggers.ScheduleDaily, Time: "09:30"}

	// before today's slot
	next, err := NextExecution(schedule, mustParse(t, "2026-03-02T08:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, mustParse(t, "2026-03-02T09:30:00Z"), next)

	// past today's slot rolls to tomorrow
	next, err = NextExecution(schedule, mustParse(t, "2026-03-02T10:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, mustParse(t, "2026-03-03T09:30:00Z"), next)

	// exactly at the slot rolls forward
	next, err = NextExecution(schedule, mustParse(t, "2026-03-02T09:30:00Z"))
	require.NoError(t, err)
	assert.Equal(t, mustParse(t, "2026-03-03T09:30:00Z"), next)
}

func TestNextExecutionWeekly(t *testing.T) {
	// 2026-03-02 is a Monday
	from := mustParse(t, "2026-03-02T12:00:00Z")

	tests := []struct {
		day  string
		want string
	}{
		{"friday", "2026-03-06T08:00:00Z"},
		{"vendredi", "2026-03-06T08:00:00Z"},
		{"Lundi", "2026-03-09T08:00:00Z"}, // past today's slot, next week
		{"monday", "2026-03-09T08:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			next, err := NextExecution(&triggers.Schedule{
				Type: triggers.ScheduleWeekly,
				Day:  tt.day,
				Time: "08:00",
			}, from)
			require.NoError(t, err)
			assert.Equal(t, mustParse(t, tt.want), next)
		})
	}

	_, err := NextExecution(&triggers.Schedule{
		Type: triggers.ScheduleWeekly,
		Day:  "someday",
		Time: "08:00",
	}, from)
	assert.Error(t, err)
}

func TestNextExecutionMonthly(t *testing.T) {
	next, err := NextExecution(&triggers.Schedule{
		Type: triggers.ScheduleMonthly,
		Date: 15,
		Time: "07:00",
	}, mustParse(t, "2026-03-20T00:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, mustParse(t, "2026-04-15T07:00:00Z"), next)

	// the 31st skips short months
	next, err = NextExecution(&triggers.Schedule{
		Type: triggers.ScheduleMonthly,
		Date: 31,
		Time: "07:00",
	}, mustParse(t, "2026-04-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, mustParse(t, "2026-05-31T07:00:00Z"), next)

	_, err = NextExecution(&triggers.Schedule{
		Type: triggers.ScheduleMonthly,
		Date: 0,
		Time: "07:00",
	}, mustParse(t, "2026-04-01T00:00:00Z"))
	assert.Error(t, err)
}

func TestNextExecutionCron(t *testing.T) {
	next, err := NextExecution(&triggers.Schedule{
		Type:       triggers.ScheduleCron,
		Expression: "0 6 * * *",
	}, mustParse(t, "2026-03-02T07:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, mustParse(t, "2026-03-03T06:00:00Z"), next)

	_, err = NextExecution(&triggers.Schedule{
		Type:       triggers.ScheduleCron,
		Expression: "not a cron",
	}, time.Now())
	assert.Error(t, err)
}

func TestNextExecutionInvalidClock(t *testing.T) {
	for _, value := range []string{"", "25:00", "10:75", "noon"} {
		_, err := NextExecution(&triggers.Schedule{
			Type: triggers.ScheduleDaily,
			Time: value,
		}, time.Now())
		assert.Error(t, err, "time %q", value)
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []triggers.Event
}

func (c *captureSink) HandleEvent(_ context.Context, eventType string, data map[string]interface{}) ([]triggers.ExecutionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, triggers.Event{Type: eventType, Data: data})
	return nil, nil
}

func (c *captureSink) snapshot() []triggers.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]triggers.Event(nil), c.events...)
}

func scheduledTrigger(id string, schedule *triggers.Schedule) *triggers.Trigger {
	return &triggers.Trigger{
		ID:       id,
		Type:     triggers.TypeScheduled,
		Event:    "report.generate",
		Schedule: schedule,
	}
}

func TestCheckDueFiresAndReschedules(t *testing.T) {
	sink := &captureSink{}
	sched := NewScheduler(sink, time.Second, nil)

	sched.TriggerRegistered(scheduledTrigger("t1", &triggers.Schedule{
		Type:     triggers.ScheduleInterval,
		Interval: time.Minute,
	}))

	first, ok := sched.NextRun("t1")
	require.True(t, ok)

	// not yet due
	sched.checkDue(context.Background(), first.Add(-time.Second))
	assert.Empty(t, sink.snapshot())

	// due: fires once and reschedules from now
	now := first.Add(time.Second)
	sched.checkDue(context.Background(), now)

	events := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "report.generate", events[0].Type)
	assert.Equal(t, true, events[0].Data["scheduled"])
	assert.Equal(t, "t1", events[0].Data["triggerId"])
	assert.Equal(t, now.Format(time.RFC3339), events[0].Data["executionTime"])

	next, ok := sched.NextRun("t1")
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), next)
}

func TestCheckDueSkipsMissedFires(t *testing.T) {
	sink := &captureSink{}
	sched := NewScheduler(sink, time.Second, nil)

	sched.TriggerRegistered(scheduledTrigger("t1", &triggers.Schedule{
		Type:     triggers.ScheduleInterval,
		Interval: time.Minute,
	}))

	first, _ := sched.NextRun("t1")

	// the poll wakes up long after several intervals were missed: one fire,
	// not a replay per missed interval
	sched.checkDue(context.Background(), first.Add(10*time.Minute))
	assert.Len(t, sink.snapshot(), 1)
}

func TestNonScheduledTriggersIgnored(t *testing.T) {
	sched := NewScheduler(&captureSink{}, time.Second, nil)

	sched.TriggerRegistered(&triggers.Trigger{ID: "t1", Type: triggers.TypeImmediate, Event: "e"})
	_, ok := sched.NextRun("t1")
	assert.False(t, ok)
}

func TestUnregisterDropsEntry(t *testing.T) {
	sink := &captureSink{}
	sched := NewScheduler(sink, time.Second, nil)

	sched.TriggerRegistered(scheduledTrigger("t1", &triggers.Schedule{
		Type:     triggers.ScheduleInterval,
		Interval: time.Minute,
	}))
	sched.TriggerUnregistered("t1")

	_, ok := sched.NextRun("t1")
	assert.False(t, ok)

	sched.checkDue(context.Background(), time.Now().Add(time.Hour))
	assert.Empty(t, sink.snapshot())
}

func TestInvalidScheduleNeverRegistered(t *testing.T) {
	sched := NewScheduler(&captureSink{}, time.Second, nil)

	sched.TriggerRegistered(scheduledTrigger("t1", &triggers.Schedule{
		Type: triggers.ScheduleWeekly,
		Day:  "someday",
		Time: "08:00",
	}))
	_, ok := sched.NextRun("t1")
	assert.False(t, ok)
}

func TestStartStop(t *testing.T) {
	sink := &captureSink{}
	sched := NewScheduler(sink, 10*time.Millisecond, nil)

	sched.TriggerRegistered(scheduledTrigger("t1", &triggers.Schedule{
		Type:     triggers.ScheduleInterval,
		Interval: 20 * time.Millisecond,
	}))

	sched.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	sched.Stop()

	assert.NotEmpty(t, sink.snapshot())
}
