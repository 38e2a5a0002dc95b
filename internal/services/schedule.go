// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurrence schedules. Each
// frequency (daily, weekly, monthly, yearly) has its own strategy that decides
// whether a calendar day matches a rule and which day matches next.
package services

import (
	"fmt"
	"time"

	"ricorrenti/internal/core"
)

// Schedule is the strategy interface for a recurrence frequency. All dates
// are calendar days; callers truncate instants with core.Day first.
type Schedule interface {
	// Matches reports whether day is an occurrence of a series anchored at
	// start. Days before start never match.
	Matches(start, day core.Date) bool

	// Next returns the first occurrence strictly after `after`, which must
	// not be before start.
	Next(start, after core.Date) core.Date
}

// DailySchedule matches every day from the start date on.
type DailySchedule struct{}

func (DailySchedule) Matches(start, day core.Date) bool {
	return !day.Before(start)
}

func (DailySchedule) Next(_, after core.Date) core.Date {
	return after.AddDays(1)
}

// WeeklySchedule matches days that are a whole number of weeks after start.
type WeeklySchedule struct{}

func (WeeklySchedule) Matches(start, day core.Date) bool {
	if day.Before(start) {
		return false
	}
	return core.DaysBetween(start, day)%7 == 0
}

func (WeeklySchedule) Next(start, after core.Date) core.Date {
	weeks := core.DaysBetween(start, after)/7 + 1
	return start.AddDays(7 * weeks)
}

// MonthlySchedule matches the start day of every month. When a month is too
// short for it (a rule started on the 31st in April) the month's last day
// matches instead.
type MonthlySchedule struct{}

func (MonthlySchedule) Matches(start, day core.Date) bool {
	if day.Before(start) {
		return false
	}
	return day.Day() == clampDay(day.Year(), day.Month(), start.Day())
}

func (MonthlySchedule) Next(start, after core.Date) core.Date {
	candidate := monthDay(after.Year(), int(after.Month()), start.Day())
	if candidate.After(after) {
		return candidate
	}
	return monthDay(after.Year(), int(after.Month())+1, start.Day())
}

// YearlySchedule matches the anniversary of the start date. A Feb 29 start
// falls back to Feb 28 in non-leap years.
type YearlySchedule struct{}

func (YearlySchedule) Matches(start, day core.Date) bool {
	if day.Before(start) {
		return false
	}
	if day.Month() != start.Month() {
		return false
	}
	return day.Day() == clampDay(day.Year(), day.Month(), start.Day())
}

func (YearlySchedule) Next(start, after core.Date) core.Date {
	candidate := monthDay(after.Year(), int(start.Month()), start.Day())
	if candidate.After(after) {
		return candidate
	}
	return monthDay(after.Year()+1, int(start.Month()), start.Day())
}

// clampDay caps day at the length of the given month.
func clampDay(year int, month time.Month, day int) int {
	if last := core.LastDayOfMonth(year, month); day > last {
		return last
	}
	return day
}

// monthDay builds the clamped date for day in the given month. month may
// overflow 12; it is normalized into the following year.
func monthDay(year, month, day int) core.Date {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return core.NewDate(first.Year(), first.Month(), clampDay(first.Year(), first.Month(), day))
}

// schedules maps frequencies to their strategies.
var schedules = map[core.Frequency]Schedule{
	core.Daily:   DailySchedule{},
	core.Weekly:  WeeklySchedule{},
	core.Monthly: MonthlySchedule{},
	core.Yearly:  YearlySchedule{},
}

// GetSchedule returns the schedule for a frequency.
// Returns an error if the frequency is not supported.
func GetSchedule(frequency core.Frequency) (Schedule, error) {
	schedule, ok := schedules[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidFrequency, frequency)
	}
	return schedule, nil
}

// Matches reports whether the rule is due on day. Unknown frequencies never
// match. The end date is not consulted; see ShouldGenerate.
func Matches(rule core.RecurrenceRule, day core.Date) bool {
	schedule, err := GetSchedule(rule.Frequency)
	if err != nil {
		return false
	}
	return schedule.Matches(rule.StartDate, core.Day(day.Time))
}

// NextOccurrence returns the next day the rule matches, for previews. A from
// on or before the start date yields the start date itself. ok is false when
// the next occurrence would fall after the rule's end date or the frequency
// is unknown.
func NextOccurrence(rule core.RecurrenceRule, from core.Date) (next core.Date, ok bool) {
	schedule, err := GetSchedule(rule.Frequency)
	if err != nil {
		return core.Date{}, false
	}
	from = core.Day(from.Time)
	if from.After(rule.StartDate) {
		next = schedule.Next(rule.StartDate, from)
	} else {
		next = rule.StartDate
	}
	if !rule.EndDate.IsZero() && next.After(rule.EndDate) {
		return core.Date{}, false
	}
	return next, true
}

// ExpectedDates lists every day from the start date through until (capped at
// the end date) on which the rule matches. It walks the window one day at a
// time, so cost grows with the window length.
func ExpectedDates(rule core.RecurrenceRule, until core.Date) []core.Date {
	last := core.Day(until.Time)
	if !rule.EndDate.IsZero() && rule.EndDate.Before(last) {
		last = rule.EndDate
	}
	var out []core.Date
	for day := rule.StartDate; !day.After(last); day = day.AddDays(1) {
		if Matches(rule, day) {
			out = append(out, day)
		}
	}
	return out
}
