package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ad-reward-system/models"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// historyDays builds an activity history with one action on each of the
// given offsets relative to testNow (0 = today, -1 = yesterday, ...).
func historyDays(offsets ...int) models.ActivityHistory {
	h := make(models.ActivityHistory, 0, len(offsets))
	for _, off := range offsets {
		h = append(h, models.ActivityDay{
			Date:             utcDay(testNow).AddDate(0, 0, off).Format(models.DayFormat),
			ActionsCompleted: 1,
		})
	}
	return h
}

func timeAt(dayOffset, hour int) *time.Time {
	t := utcDay(testNow).AddDate(0, 0, dayOffset).Add(time.Duration(hour) * time.Hour)
	return &t
}

func TestCurrentStreakFromHistory(t *testing.T) {
	tests := []struct {
		name    string
		history models.ActivityHistory
		want    int
	}{
		{"empty history", models.ActivityHistory{}, 0},
		{"today only", historyDays(0), 1},
		{"five consecutive days ending today", historyDays(-4, -3, -2, -1, 0), 5},
		{"today not yet active", historyDays(-4, -3, -2, -1), 4},
		{"gap two days ago stops the walk", historyDays(-4, -3, -1, 0), 2},
		{"stale run disconnected from today", historyDays(-10, -9, -8), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreakFromHistory(tt.history, testNow))
		})
	}
}

func TestCurrentStreakIgnoresEmptyEntries(t *testing.T) {
	history := historyDays(-1, 0)
	history = append(history, models.ActivityDay{
		Date: utcDay(testNow).AddDate(0, 0, -2).Format(models.DayFormat),
	})

	// The zero-action entry at -2 is not active, so the run is 2.
	assert.Equal(t, 2, CurrentStreakFromHistory(history, testNow))
}

func TestCurrentStreakCountsProtectedDays(t *testing.T) {
	history := historyDays(-3, -2, 0)
	history = append(history, models.ActivityDay{
		Date:      utcDay(testNow).AddDate(0, 0, -1).Format(models.DayFormat),
		Protected: true,
	})

	assert.Equal(t, 4, CurrentStreakFromHistory(history, testNow))
}

func TestIsStreakBroken(t *testing.T) {
	assert.False(t, IsStreakBroken(nil, testNow))
	assert.False(t, IsStreakBroken(timeAt(0, 9), testNow))
	assert.False(t, IsStreakBroken(timeAt(-1, 23), testNow))
	assert.True(t, IsStreakBroken(timeAt(-2, 23), testNow))
	assert.True(t, IsStreakBroken(timeAt(-30, 0), testNow))
}

func TestHasActedToday(t *testing.T) {
	assert.False(t, HasActedToday(nil, testNow))
	assert.True(t, HasActedToday(timeAt(0, 0), testNow))
	assert.True(t, HasActedToday(timeAt(0, 23), testNow))
	assert.False(t, HasActedToday(timeAt(-1, 23), testNow))
}

func TestStreakLevels(t *testing.T) {
	assert.Equal(t, 0, StreakLevel(0))
	assert.Equal(t, 0, StreakLevel(6))
	assert.Equal(t, 1, StreakLevel(7))
	assert.Equal(t, 1, StreakLevel(13))
	assert.Equal(t, 4, StreakLevel(30))
	assert.Equal(t, 0, StreakLevel(-3))

	assert.Equal(t, 7, NextLevelThreshold(0))
	assert.Equal(t, 14, NextLevelThreshold(1))

	assert.Equal(t, 7, DaysUntilNextLevel(0))
	assert.Equal(t, 2, DaysUntilNextLevel(5))
	assert.Equal(t, 7, DaysUntilNextLevel(7))
}

func TestStreakProgressPercent(t *testing.T) {
	assert.Zero(t, StreakProgressPercent(0))
	assert.Zero(t, StreakProgressPercent(7))
	assert.Zero(t, StreakProgressPercent(-1))
	assert.InDelta(t, 100.0/7*3, StreakProgressPercent(10), 1e-9)
	assert.InDelta(t, 100.0/7*6, StreakProgressPercent(6), 1e-9)
}

func TestMilestones(t *testing.T) {
	assert.True(t, IsMilestone(7))
	assert.True(t, IsMilestone(365))
	assert.False(t, IsMilestone(8))
	assert.False(t, IsMilestone(0))

	assert.Equal(t, int64(5000), MilestoneBonus(7))
	assert.Equal(t, int64(25000), MilestoneBonus(30))
	assert.Zero(t, MilestoneBonus(13))
}

func TestNeedsExpiryWarning(t *testing.T) {
	lateEvening := utcDay(testNow).Add(23 * time.Hour)
	afternoon := utcDay(testNow).Add(15 * time.Hour)

	// One hour left in the day, nothing done yet.
	assert.True(t, NeedsExpiryWarning(timeAt(-1, 20), lateEvening, 2))

	// Plenty of day left.
	assert.False(t, NeedsExpiryWarning(timeAt(-1, 20), afternoon, 2))

	// Already acted today, no warning even at the wire.
	assert.True(t, HasActedToday(timeAt(0, 8), lateEvening))
	assert.False(t, NeedsExpiryWarning(timeAt(0, 8), lateEvening, 2))

	// Brand-new user has nothing to lose yet.
	assert.False(t, NeedsExpiryWarning(nil, lateEvening, 2))
}

func TestBuildCalendar(t *testing.T) {
	history := models.ActivityHistory{
		{Date: utcDay(testNow).AddDate(0, 0, -2).Format(models.DayFormat), ActionsCompleted: 1},
		{Date: utcDay(testNow).Format(models.DayFormat), ActionsCompleted: 3},
	}

	calendar := BuildCalendar(history, 7, testNow)
	require.Len(t, calendar, 7)

	// Oldest first, today last.
	assert.Equal(t, utcDay(testNow).AddDate(0, 0, -6).Format(models.DayFormat), calendar[0].Date)
	assert.True(t, calendar[6].IsToday)
	assert.Equal(t, 3, calendar[6].ActionsCompleted)
	assert.True(t, calendar[6].WasActive)

	assert.True(t, calendar[4].WasActive)
	assert.Equal(t, 1, calendar[4].ActionsCompleted)

	// Days without an entry render as zero activity.
	assert.False(t, calendar[5].WasActive)
	assert.Zero(t, calendar[5].ActionsCompleted)
}

func TestPruneHistory(t *testing.T) {
	history := models.ActivityHistory{
		{Date: utcDay(testNow).Format(models.DayFormat), ActionsCompleted: 2},
		{Date: utcDay(testNow).AddDate(0, 0, -100).Format(models.DayFormat), ActionsCompleted: 1},
		{Date: utcDay(testNow).AddDate(0, 0, -89).Format(models.DayFormat), ActionsCompleted: 1},
	}

	kept := pruneHistory(history, 90, testNow)
	require.Len(t, kept, 2)

	// Sorted oldest first, 100-day-old entry dropped.
	assert.Equal(t, utcDay(testNow).AddDate(0, 0, -89).Format(models.DayFormat), kept[0].Date)
	assert.Equal(t, utcDay(testNow).Format(models.DayFormat), kept[1].Date)
}
