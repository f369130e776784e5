package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestWeeklyExpansion(t *testing.T) {
	rule := Rule{
		Type:       Weekly,
		DaysOfWeek: []int{1, 3}, // Monday, Wednesday
		StartTime:  TimeOfDay{Hour: 19},
	}

	// 2025-04-01 is a Tuesday, 2025-04-14 a Monday.
	occurrences := Expand(rule, date(2025, time.April, 1), date(2025, time.April, 14))

	require.Len(t, occurrences, 4)
	require.Equal(t, date(2025, time.April, 2), occurrences[0].Date)
	require.Equal(t, date(2025, time.April, 7), occurrences[1].Date)
	require.Equal(t, date(2025, time.April, 9), occurrences[2].Date)
	require.Equal(t, date(2025, time.April, 14), occurrences[3].Date)

	for _, occ := range occurrences {
		require.Equal(t, 19, occ.Start.Hour())
		require.Equal(t, occ.Date.Day(), occ.Start.Day())
		require.Nil(t, occ.End)
	}
}

func TestMonthlyDay31SkipsShortMonths(t *testing.T) {
	rule := Rule{
		Type:        Monthly,
		DaysOfMonth: []int{31},
		StartTime:   TimeOfDay{Hour: 18, Minute: 30},
	}

	// April has 30 days, so only May matches.
	occurrences := Expand(rule, date(2025, time.April, 1), date(2025, time.May, 31))

	require.Len(t, occurrences, 1)
	require.Equal(t, date(2025, time.May, 31), occurrences[0].Date)
	require.Equal(t, 18, occurrences[0].Start.Hour())
	require.Equal(t, 30, occurrences[0].Start.Minute())
}

func TestNoneYieldsSingleOccurrence(t *testing.T) {
	rule := Rule{Type: None, StartTime: TimeOfDay{Hour: 20}}

	occurrences := Expand(rule, date(2025, time.April, 1), date(2025, time.April, 14))

	require.Len(t, occurrences, 1)
	require.Equal(t, date(2025, time.April, 1), occurrences[0].Date)
}

func TestRuleBoundsIntersectWindow(t *testing.T) {
	start := date(2025, time.April, 8)
	end := date(2025, time.April, 20)
	rule := Rule{
		Type:       Weekly,
		DaysOfWeek: []int{1}, // Monday
		StartTime:  TimeOfDay{Hour: 19},
		StartDate:  &start,
		EndDate:    &end,
	}

	// The caller's window is wider than the rule's own bounds; only the
	// Monday inside the intersection survives.
	occurrences := Expand(rule, date(2025, time.April, 1), date(2025, time.April, 30))

	require.Len(t, occurrences, 1)
	require.Equal(t, date(2025, time.April, 14), occurrences[0].Date)
}

func TestEmptyIntersectionYieldsNothing(t *testing.T) {
	end := date(2025, time.March, 31)
	rule := Rule{
		Type:       Weekly,
		DaysOfWeek: []int{1},
		StartTime:  TimeOfDay{Hour: 19},
		EndDate:    &end,
	}

	require.Empty(t, Expand(rule, date(2025, time.April, 1), date(2025, time.April, 30)))
	require.Empty(t, Expand(rule, date(2025, time.April, 14), date(2025, time.April, 1)))
}

func TestEmptyDaySetsAreDefensive(t *testing.T) {
	weekly := Rule{Type: Weekly, StartTime: TimeOfDay{Hour: 19}}
	monthly := Rule{Type: Monthly, StartTime: TimeOfDay{Hour: 19}}

	require.Empty(t, Expand(weekly, date(2025, time.April, 1), date(2025, time.April, 30)))
	require.Empty(t, Expand(monthly, date(2025, time.April, 1), date(2025, time.April, 30)))
}

func TestOutOfRangeDaysAreIgnored(t *testing.T) {
	rule := Rule{
		Type:       Weekly,
		DaysOfWeek: []int{-1, 7, 12},
		StartTime:  TimeOfDay{Hour: 19},
	}

	require.Empty(t, Expand(rule, date(2025, time.April, 1), date(2025, time.April, 30)))
}

func TestEndTimeCombination(t *testing.T) {
	end := TimeOfDay{Hour: 22, Minute: 30}
	rule := Rule{
		Type:       Weekly,
		DaysOfWeek: []int{5}, // Friday
		StartTime:  TimeOfDay{Hour: 19},
		EndTime:    &end,
	}

	occurrences := Expand(rule, date(2025, time.April, 1), date(2025, time.April, 7))

	require.Len(t, occurrences, 1)
	require.Equal(t, date(2025, time.April, 4), occurrences[0].Date)
	require.NotNil(t, occurrences[0].End)
	require.Equal(t, 22, occurrences[0].End.Hour())
	require.Equal(t, 30, occurrences[0].End.Minute())
}

func TestParseDaySet(t *testing.T) {
	require.Equal(t, []int{1, 3}, ParseDaySet([]byte(`[1, 3]`)))
	require.Equal(t, []int{1, 3}, ParseDaySet([]byte(`["1", "3"]`)))
	require.Equal(t, []int{1, 3}, ParseDaySet([]byte(`{"0": 1, "1": 3}`)))
	require.Nil(t, ParseDaySet(nil))
	require.Nil(t, ParseDaySet([]byte(`not json`)))
	require.Nil(t, ParseDaySet([]byte(`[true]`)))
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("19:00")
	require.NoError(t, err)
	require.Equal(t, TimeOfDay{Hour: 19}, tod)

	tod, err = ParseTimeOfDay("7:05")
	require.NoError(t, err)
	require.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, tod)

	for _, bad := range []string{"", "19", "25:00", "12:61", "aa:bb"} {
		_, err := ParseTimeOfDay(bad)
		require.Error(t, err, "expected %q to be rejected", bad)
	}
}
