package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/dispute-service/internal/config"
	"github.com/spec-kit/dispute-service/internal/domain"
)

func slaConfig(businessHours bool) config.SLAConfig {
	return config.SLAConfig{
		CriticalHours:          4,
		HighHours:              12,
		MediumHours:            24,
		LowHours:               72,
		BusinessHoursEnabled:   businessHours,
		BusinessStartHour:      9,
		BusinessEndHour:        17,
		ApproachingWindowHours: 2,
		StaleAfterDays:         7,
		EscalationCap:          3,
	}
}

func TestDeadline_WallClock(t *testing.T) {
	from := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC) // Tuesday
	cfg := slaConfig(false)

	assert.Equal(t, from.Add(4*time.Hour), Deadline(from, domain.PriorityCritical, cfg))
	assert.Equal(t, from.Add(24*time.Hour), Deadline(from, domain.PriorityMedium, cfg))
	assert.Equal(t, from.Add(72*time.Hour), Deadline(from, domain.PriorityLow, cfg))
}

func TestDeadline_BusinessHoursSameDay(t *testing.T) {
	// Tuesday 09:00 with a 4 hour budget fits entirely in the window.
	from := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	got := Deadline(from, domain.PriorityCritical, slaConfig(true))
	assert.Equal(t, time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC), got)
}

func TestDeadline_BusinessHoursSpillsToNextDay(t *testing.T) {
	// Tuesday 15:00, 4 hour budget: 2 hours today, 2 tomorrow morning.
	from := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	got := Deadline(from, domain.PriorityCritical, slaConfig(true))
	assert.Equal(t, time.Date(2025, 6, 11, 11, 0, 0, 0, time.UTC), got)
}

func TestDeadline_BusinessHoursSkipsWeekend(t *testing.T) {
	// Friday 16:00, 4 hour budget: 1 hour Friday, 3 hours Monday morning.
	from := time.Date(2025, 6, 13, 16, 0, 0, 0, time.UTC)
	got := Deadline(from, domain.PriorityCritical, slaConfig(true))
	assert.Equal(t, time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC), got)
}

func TestDeadline_FiledOutsideWindow(t *testing.T) {
	// Saturday filing starts consuming budget Monday 09:00.
	from := time.Date(2025, 6, 14, 11, 0, 0, 0, time.UTC)
	got := Deadline(from, domain.PriorityCritical, slaConfig(true))
	assert.Equal(t, time.Date(2025, 6, 16, 13, 0, 0, 0, time.UTC), got)

	// Weekday filing before the window opens.
	from = time.Date(2025, 6, 10, 6, 0, 0, 0, time.UTC)
	got = Deadline(from, domain.PriorityCritical, slaConfig(true))
	assert.Equal(t, time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC), got)
}

func TestDeadline_MediumIs24BusinessHours(t *testing.T) {
	// Tuesday 09:00, 24 hour budget over 8-hour days: 8h Tue + 8h Wed + 8h
	// Thu lands exactly on Thursday 17:00.
	from := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	got := Deadline(from, domain.PriorityMedium, slaConfig(true))
	assert.Equal(t, time.Date(2025, 6, 12, 17, 0, 0, 0, time.UTC), got)
}
