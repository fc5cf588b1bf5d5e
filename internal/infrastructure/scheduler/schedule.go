package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// Стандартные 5 полей плюс дескрипторы (@hourly, @weekly, ...).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronSchedule is a parsed cron expression. Next is computed in the location
// of its argument; the scheduler passes times in its configured zone.
type CronSchedule struct {
	expr  string
	sched cron.Schedule
}

// ParseCron parses a 5-field cron expression or a descriptor such as
// "@weekly". Examples:
//   - "0 9 * * 1-5"  - workdays at 09:00
//   - "*/30 * * * *" - every 30 minutes
func ParseCron(expr string) (*CronSchedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronSchedule{expr: expr, sched: sched}, nil
}

// Next returns the first matching minute strictly after t.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.sched.Next(t)
}

func (s *CronSchedule) String() string {
	return s.expr
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule runs a job at a fixed interval from the previous run.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ParseSchedule accepts a cron expression, a cron descriptor,
// "@every <duration>", "@daily HH" or "@workdays HH".
// "@daily HH" and "@workdays HH" are shorthands for "0 HH * * *" and
// "0 HH * * 1-5".
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid interval %q", spec)
		}
		return NewIntervalSchedule(d), nil

	case strings.HasPrefix(spec, "@daily "), strings.HasPrefix(spec, "@workdays "):
		kind, hourStr, _ := strings.Cut(spec, " ")
		hourStr, _, _ = strings.Cut(strings.TrimSpace(hourStr), ":")
		hour, err := strconv.Atoi(hourStr)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid hour in %q", spec)
		}
		dow := "*"
		if kind == "@workdays" {
			dow = "1-5"
		}
		s, err := ParseCron(fmt.Sprintf("0 %d * * %s", hour, dow))
		if err != nil {
			return nil, err
		}
		s.expr = spec
		return s, nil
	}
	return ParseCron(spec)
}
