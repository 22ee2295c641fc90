// services/streak.go
package services

import (
	"sort"
	"time"

	"ad-reward-system/models"
)

// Streak math operates on UTC calendar days. Contiguity is defined in
// calendar days, not elapsed hours: acting at 23:59 and again at 00:01
// keeps the streak alive.

const daysPerLevel = 7

// milestoneBonuses are one-time grants at exact streak lengths. The ledger
// fires them only on the transition to the milestone value, never again.
var milestoneBonuses = map[int]int64{
	7:   5000,
	14:  10000,
	30:  25000,
	60:  50000,
	90:  100000,
	180: 250000,
	365: 1000000,
}

// utcDay truncates a timestamp to its UTC calendar day.
func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// calendarDaysBetween is the number of UTC day boundaries crossed between
// the two timestamps.
func calendarDaysBetween(from, to time.Time) int {
	return int(utcDay(to).Sub(utcDay(from)).Hours() / 24)
}

// CurrentStreakFromHistory derives the streak from the activity history
// alone. Walking back from today, a day counts only if an entry exists for
// that exact date with at least one completed action; the first gap stops
// the walk. A missing entry for today does not break the run — the user may
// simply not have acted yet — so the walk is allowed to start at yesterday.
func CurrentStreakFromHistory(history models.ActivityHistory, now time.Time) int {
	if len(history) == 0 {
		return 0
	}

	active := make(map[string]bool, len(history))
	for _, entry := range history {
		if entry.ActionsCompleted > 0 || entry.Protected {
			active[entry.Date] = true
		}
	}

	day := utcDay(now)
	if !active[day.Format(models.DayFormat)] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for active[day.Format(models.DayFormat)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// IsStreakBroken reports whether at least one full calendar day with zero
// actions has elapsed. Exactly one day of difference (yesterday) is the
// expected gap between consecutive active days and does NOT break.
func IsStreakBroken(lastActionAt *time.Time, now time.Time) bool {
	if lastActionAt == nil {
		return false // nothing to break yet
	}
	return calendarDaysBetween(*lastActionAt, now) > 1
}

// HasActedToday reports whether the last action falls on the same UTC
// calendar day as now.
func HasActedToday(lastActionAt *time.Time, now time.Time) bool {
	if lastActionAt == nil {
		return false
	}
	return calendarDaysBetween(*lastActionAt, now) == 0
}

// StreakLevel grows by one for every full week of streak.
func StreakLevel(streakDays int) int {
	if streakDays < 0 {
		return 0
	}
	return streakDays / daysPerLevel
}

// NextLevelThreshold is the streak length at which the given level ends.
func NextLevelThreshold(level int) int {
	return (level + 1) * daysPerLevel
}

// DaysUntilNextLevel counts the remaining days to the next level boundary.
func DaysUntilNextLevel(streakDays int) int {
	return NextLevelThreshold(StreakLevel(streakDays)) - streakDays
}

// StreakProgressPercent interpolates the position inside the current level,
// clamped to [0,100].
func StreakProgressPercent(streakDays int) float64 {
	if streakDays < 0 {
		return 0
	}
	level := StreakLevel(streakDays)
	start := level * daysPerLevel
	end := NextLevelThreshold(level)

	progress := float64(streakDays-start) / float64(end-start) * 100
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// MilestoneBonus returns the one-time bonus when the streak exactly equals
// a milestone day, else 0.
func MilestoneBonus(streakDays int) int64 {
	return milestoneBonuses[streakDays]
}

// IsMilestone reports whether the streak length is a milestone day.
func IsMilestone(streakDays int) bool {
	_, ok := milestoneBonuses[streakDays]
	return ok
}

// NeedsExpiryWarning is true when fewer than hoursThreshold hours remain in
// the UTC day and the user has not acted yet — the streak is about to break.
func NeedsExpiryWarning(lastActionAt *time.Time, now time.Time, hoursThreshold int) bool {
	if lastActionAt == nil {
		return false // nothing to lose yet
	}
	if HasActedToday(lastActionAt, now) {
		return false
	}
	endOfDay := utcDay(now).AddDate(0, 0, 1)
	return endOfDay.Sub(now) < time.Duration(hoursThreshold)*time.Hour
}

// CalendarDay is one rendered day of the streak calendar.
type CalendarDay struct {
	Date             string `json:"date"`
	ActionsCompleted int    `json:"actions_completed"`
	WasActive        bool   `json:"was_active"`
	IsToday          bool   `json:"is_today"`
}

// BuildCalendar projects the trailing windowDays onto a dense calendar,
// oldest first. Days with no history entry render as zero-activity. Pure:
// same inputs, same calendar.
func BuildCalendar(history models.ActivityHistory, windowDays int, now time.Time) []CalendarDay {
	byDate := make(map[string]int, len(history))
	for _, entry := range history {
		byDate[entry.Date] = entry.ActionsCompleted
	}

	today := utcDay(now)
	calendar := make([]CalendarDay, 0, windowDays)
	for i := windowDays - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(models.DayFormat)
		actions := byDate[date]
		calendar = append(calendar, CalendarDay{
			Date:             date,
			ActionsCompleted: actions,
			WasActive:        actions > 0,
			IsToday:          i == 0,
		})
	}
	return calendar
}

// pruneHistory drops entries older than the retention window and returns
// the remainder sorted oldest first.
func pruneHistory(history models.ActivityHistory, retentionDays int, now time.Time) models.ActivityHistory {
	cutoff := utcDay(now).AddDate(0, 0, -(retentionDays - 1)).Format(models.DayFormat)

	kept := make(models.ActivityHistory, 0, len(history))
	for _, entry := range history {
		if entry.Date >= cutoff {
			kept = append(kept, entry)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Date < kept[j].Date })
	return kept
}
