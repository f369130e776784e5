package recurrence

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeOfDay is a wall-clock time stripped of any date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// On combines the time of day with a calendar date in the date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, date.Location())
}

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, errors.Errorf("malformed time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, errors.Errorf("malformed hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, errors.Errorf("malformed minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ParseDaySet normalizes a loosely shaped JSON day set into a sorted int
// slice. Older template rows store days as a JSON array of numbers, some as
// numeric strings, and a few legacy rows as an index-keyed object; all are
// accepted. Anything unreadable yields nil, never an error — range checks
// happen in the calculator.
func ParseDaySet(raw []byte) []int {
	if len(raw) == 0 {
		return nil
	}

	var values []interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		var keyed map[string]interface{}
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil
		}
		for _, v := range keyed {
			values = append(values, v)
		}
	}

	var days []int
	for _, v := range values {
		switch n := v.(type) {
		case float64:
			days = append(days, int(n))
		case string:
			if d, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				days = append(days, d)
			}
		}
	}
	sort.Ints(days)
	return days
}
