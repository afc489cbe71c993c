package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// weekdays maps day names to time.Weekday. French names are accepted
// alongside English ones.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"dimanche":  time.Sunday,
	"lundi":     time.Monday,
	"mardi":     time.Tuesday,
	"mercredi":  time.Wednesday,
	"jeudi":     time.Thursday,
	"vendredi":  time.Friday,
	"samedi":    time.Saturday,
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NextExecution computes the first fire time strictly after from for the
// given schedule
func NextExecution(schedule *triggers.Schedule, from time.Time) (time.Time, error) {
	if schedule == nil {
		return time.Time{}, errors.ValidationError("schedule is nil")
	}

	switch schedule.Type {
	case triggers.ScheduleInterval:
		if schedule.Interval <= 0 {
			return time.Time{}, errors.ValidationError("interval schedule requires a positive interval")
		}
		return from.Add(schedule.Interval), nil

	case triggers.ScheduleDaily:
		hour, minute, err := parseClock(schedule.Time)
		if err != nil {
			return time.Time{}, err
		}
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case triggers.ScheduleWeekly:
		hour, minute, err := parseClock(schedule.Time)
		if err != nil {
			return time.Time{}, err
		}
		weekday, ok := weekdays[strings.ToLower(strings.TrimSpace(schedule.Day))]
		if !ok {
			return time.Time{}, errors.ValidationError(fmt.Sprintf("unknown weekday %q", schedule.Day))
		}
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		for next.Weekday() != weekday || !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case triggers.ScheduleMonthly:
		hour, minute, err := parseClock(schedule.Time)
		if err != nil {
			return time.Time{}, err
		}
		if schedule.Date < 1 || schedule.Date > 31 {
			return time.Time{}, errors.ValidationError(fmt.Sprintf("invalid day of month %d", schedule.Date))
		}
		// months lacking the requested date are skipped
		year, month := from.Year(), from.Month()
		for i := 0; i < 48; i++ {
			next := time.Date(year, month, schedule.Date, hour, minute, 0, 0, from.Location())
			if next.Day() == schedule.Date && next.After(from) {
				return next, nil
			}
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
		return time.Time{}, errors.ValidationError(fmt.Sprintf("day of month %d never occurs", schedule.Date))

	case triggers.ScheduleCron:
		spec, err := cronParser.Parse(schedule.Expression)
		if err != nil {
			return time.Time{}, errors.ValidationError(fmt.Sprintf("invalid cron expression %q", schedule.Expression)).
				WithContext("cause", err.Error())
		}
		return spec.Next(from), nil

	default:
		return time.Time{}, errors.ValidationError(fmt.Sprintf("unknown schedule type %q", schedule.Type))
	}
}

// parseClock parses a "HH:MM" time-of-day string
func parseClock(value string) (hour, minute int, err error) {
	if value == "" {
		return 0, 0, errors.ValidationError("schedule time is required")
	}
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, errors.ValidationError(fmt.Sprintf("invalid time %q, expected HH:MM", value))
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, errors.ValidationError(fmt.Sprintf("time %q out of range", value))
	}
	return hour, minute, nil
}
