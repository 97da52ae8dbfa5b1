package features

import (
	"sort"
	"time"

	"PriceFeatures/internal/domain/models"
)

// AlignToMinute truncates ts to its UTC minute.
func AlignToMinute(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Minute)
}

// AlignRange rounds a query range down to minute boundaries.
func AlignRange(from, to time.Time) (time.Time, time.Time) {
	if !from.IsZero() {
		from = AlignToMinute(from)
	}
	if !to.IsZero() {
		to = AlignToMinute(to)
	}
	return from, to
}

// SortPoints returns a copy of points ordered by timestamp. Duplicates are
// kept so the engine can reject them.
func SortPoints(points []models.PricePoint) []models.PricePoint {
	out := make([]models.PricePoint, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
