package core

import (
	"fmt"
	"path"
	"strings"
	"time"

	"sampleflow/pkg/domain"
)

const rowLabels = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// AllocatePrimaryKey maps the ordinal-th submission of an ISO week onto its
// plate slot in row-major order. It reports false once the grid is exhausted.
func AllocatePrimaryKey(year, week, ordinal, rows, cols int) (string, bool) {
	if ordinal < 0 || rows <= 0 || cols <= 0 || ordinal >= rows*cols {
		return "", false
	}
	row := ordinal / cols
	col := ordinal % cols
	if row >= len(rowLabels) {
		return "", false
	}
	return fmt.Sprintf("%02d_%02d_%c%d", year%100, week, rowLabels[row], col+1), true
}

// PrimaryKeyOfFilename returns the first three underscore separated segments
// of filename's base name, the primary key a results archive claims to carry.
func PrimaryKeyOfFilename(filename string) (string, bool) {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	segments := strings.Split(base, "_")
	if len(segments) < 3 {
		return "", false
	}
	return strings.Join(segments[:3], "_"), true
}

// allocateSlot hands out the next key for the week of today. It must run
// inside the transaction that inserts the sample so the ordinal cannot go
// stale.
func allocateSlot(tx Transaction, settings domain.Settings, today time.Time) (string, error) {
	week := WeekOf(today)
	span := WeekRangeOf(today)
	count := len(tx.Snapshot().SamplesBetween(span.Start, span.End))
	remaining := ComputeRemaining(settings, count, Weekday(today))
	if remaining.Remaining == 0 {
		kind := domain.CapacityExhausted
		if remaining.Message == domain.MessageSubmissionClosed {
			kind = domain.CapacityWindowClosed
		}
		return "", domain.CapacityError{Kind: kind, Message: remaining.Message}
	}
	key, ok := AllocatePrimaryKey(week.Year, week.Number, count, settings.PlateRows, settings.PlateCols)
	if !ok {
		return "", domain.CapacityError{Kind: domain.CapacityExhausted, Message: domain.MessageNoSamplesLeft}
	}
	return key, nil
}
