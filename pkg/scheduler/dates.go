package scheduler

import (
	"fmt"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/models"
)

// maxRangeDays bounds the length of any range, read-only or writable
const maxRangeDays = 366

// ParseDate parses a YYYY-MM-DD date in UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(models.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidRange, s)
	}
	return t, nil
}

// ISOWeekday returns 1 for Monday through 7 for Sunday
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// Days lists every date from start to end inclusive
func Days(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end, start)
	}
	return s, e, nil
}

// checkLength rejects ranges longer than maxRangeDays
func checkLength(s, e time.Time, start, end string) error {
	if e.Sub(s) >= maxRangeDays*24*time.Hour {
		return &RangeError{Start: start, End: end, Limit: s.AddDate(0, 0, maxRangeDays-1).Format(models.DateLayout)}
	}
	return nil
}

// checkHorizon validates a writable range: well formed, at most maxRangeDays
// long and ending no later than horizonMonths after today.
func checkHorizon(start, end string, today time.Time, horizonMonths int) ([]time.Time, error) {
	s, e, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	limit := today.AddDate(0, horizonMonths, 0)
	if e.After(limit) {
		return nil, &RangeError{Start: start, End: end, Limit: limit.Format(models.DateLayout)}
	}
	if err := checkLength(s, e, start, end); err != nil {
		return nil, err
	}
	return Days(s, e), nil
}

// checkReport validates a read-only range
func checkReport(start, end string) ([]time.Time, error) {
	s, e, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	if err := checkLength(s, e, start, end); err != nil {
		return nil, err
	}
	return Days(s, e), nil
}
