package core

import (
	"fmt"
	"time"

	"sampleflow/pkg/domain"
)

// Week is an ISO 8601 week.
type Week struct {
	Year   int
	Number int
}

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) Week {
	year, week := t.ISOWeek()
	return Week{Year: year, Number: week}
}

// Prefix is the two-digit year and week that start every primary key of the
// week, e.g. "22_47".
func (w Week) Prefix() string {
	return fmt.Sprintf("%02d_%02d", w.Year%100, w.Number)
}

// BasePath is the unpadded "{year}/{week}" directory holding the week's files.
func (w Week) BasePath() string {
	return fmt.Sprintf("%d/%d", w.Year, w.Number)
}

func (w Week) String() string { return w.Prefix() }

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Weekday returns the ISO weekday of t, Monday=1 through Sunday=7.
func Weekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// StartOfWeek returns midnight on the Monday of t's ISO week.
func StartOfWeek(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, 1-Weekday(t))
}

// WeekRangeOf returns the half-open [Monday, next Monday) range containing t.
func WeekRangeOf(t time.Time) domain.WeekRange {
	start := StartOfWeek(t)
	return domain.WeekRange{Start: start, End: start.AddDate(0, 0, 7)}
}
