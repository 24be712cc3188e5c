// Package sla computes response deadlines and enforces them. The monitor in
// this package is the only component that escalates disputes automatically;
// everything it does is idempotent under concurrent or retried execution.
package sla

import (
	"time"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
)

// Deadline converts a priority's hour budget into calendar time. With
// business hours enabled the budget is consumed only inside the configured
// window on weekdays; otherwise it is a flat wall-clock offset.
//
// The deadline is computed once on SUBMIT and never recomputed: escalation
// changes routing, not the original obligation.
func Deadline(from time.Time, priority domain.DisputePriority, cfg config.SLAConfig) time.Time {
	budget := time.Duration(cfg.HoursFor(string(priority))) * time.Hour
	if !cfg.BusinessHoursEnabled {
		return from.Add(budget)
	}

	windowStart := cfg.BusinessStartHour
	windowEnd := cfg.BusinessEndHour
	cursor := from

	for budget > 0 {
		cursor = clipToWindow(cursor, windowStart, windowEnd)

		dayEnd := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), windowEnd, 0, 0, 0, cursor.Location())
		available := dayEnd.Sub(cursor)
		if available >= budget {
			return cursor.Add(budget)
		}
		budget -= available
		cursor = dayEnd
	}
	return cursor
}

// clipToWindow advances cursor to the next instant inside a weekday business
// window.
func clipToWindow(cursor time.Time, startHour, endHour int) time.Time {
	for {
		switch cursor.Weekday() {
		case time.Saturday:
			cursor = startOfDay(cursor.AddDate(0, 0, 2), startHour)
			continue
		case time.Sunday:
			cursor = startOfDay(cursor.AddDate(0, 0, 1), startHour)
			continue
		}

		dayStart := startOfDay(cursor, startHour)
		dayEnd := startOfDay(cursor, endHour)
		if cursor.Before(dayStart) {
			return dayStart
		}
		if !cursor.Before(dayEnd) {
			cursor = startOfDay(cursor.AddDate(0, 0, 1), startHour)
			continue
		}
		return cursor
	}
}

func startOfDay(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}
