package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is the set of permitted values for one of the five standard
// cron fields, expanded from "*", "a,b,c", "a-b", and "*/n" syntax.
type cronField map[int]struct{}

func (f cronField) has(v int) bool {
	_, ok := f[v]
	return ok
}

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

// parseCron accepts standard 5-field cron ("minute hour dom month dow").
// No seconds field, no named months/weekdays -- the teacher's own config
// parsing (config.go) favors plain numeric/env-driven settings over a
// richer DSL, so this mirrors that preference rather than reaching for a
// full cron grammar.
func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("scheduler: cron expression must have 5 fields, got %d", len(fields))
	}

	ranges := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	parsed := make([]cronField, 5)
	for i, f := range fields {
		cf, err := parseCronField(f, ranges[i][0], ranges[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("scheduler: field %d: %w", i, err)
		}
		parsed[i] = cf
	}

	return cronSchedule{minute: parsed[0], hour: parsed[1], dom: parsed[2], month: parsed[3], dow: parsed[4]}, nil
}

func parseCronField(f string, min, max int) (cronField, error) {
	out := make(cronField)

	for _, part := range strings.Split(f, ",") {
		base := part
		step := 1
		if idx := strings.Index(part, "/"); idx >= 0 {
			base = part[:idx]
			n, err := strconv.Atoi(part[idx+1:])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step in %q", part)
			}
			step = n
		}

		lo, hi := min, max
		if base != "*" {
			if idx := strings.Index(base, "-"); idx >= 0 {
				a, err1 := strconv.Atoi(base[:idx])
				b, err2 := strconv.Atoi(base[idx+1:])
				if err1 != nil || err2 != nil {
					return nil, fmt.Errorf("invalid range %q", base)
				}
				lo, hi = a, b
			} else {
				v, err := strconv.Atoi(base)
				if err != nil {
					return nil, fmt.Errorf("invalid value %q", base)
				}
				lo, hi = v, v
			}
		}

		for v := lo; v <= hi; v += step {
			if v < min || v > max {
				return nil, fmt.Errorf("value %d out of range [%d,%d]", v, min, max)
			}
			out[v] = struct{}{}
		}
	}

	return out, nil
}

func (c cronSchedule) matches(t time.Time) bool {
	return c.minute.has(t.Minute()) &&
		c.hour.has(t.Hour()) &&
		c.dom.has(t.Day()) &&
		c.month.has(int(t.Month())) &&
		c.dow.has(int(t.Weekday()))
}

// maxCronSearch bounds how far into the future nextCron will scan before
// giving up, so a self-contradictory expression (e.g. dom=31, month=Feb)
// fails fast instead of looping for years.
const maxCronSearch = 4 * 366 * 24 * 60

func nextCron(expr string, after time.Time, loc *time.Location) (time.Time, error) {
	sched, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute).In(loc)
	for i := 0; i < maxCronSearch; i++ {
		if sched.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("scheduler: no match for cron expression %q within search horizon", expr)
}
