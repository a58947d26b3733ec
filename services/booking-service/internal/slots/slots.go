package slots

import (
	"sort"
	"time"

	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Anchor projects a recurring window onto a concrete calendar date. The date's
// clock components are ignored; only year/month/day matter.
func Anchor(w model.AvailabilityWindow, date time.Time) Interval {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return Interval{
		Start: day.Add(time.Duration(w.StartMinute) * time.Minute),
		End:   day.Add(time.Duration(w.EndMinute) * time.Minute),
	}
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where
// a booking of length duration would not overlap any of the busy intervals.
// A trailing partial slot that would overflow the window is dropped, and slots
// starting before now are never offered.
//
// All times are expected to be in the same location (timezone).
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var starts []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			starts = append(starts, t)
		}
	}
	return starts
}

// Merge combines candidate slots from several windows of the same day into a
// single ascending, non-overlapping list.
func Merge(candidates []Interval) []Interval {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Start.Before(candidates[j].Start)
	})
	out := candidates[:0]
	var lastEnd time.Time
	for _, c := range candidates {
		if c.Start.Before(lastEnd) {
			continue
		}
		out = append(out, c)
		lastEnd = c.End
	}
	return out
}

// Overlaps reports whether two half-open intervals [a0,a1) and [b0,b1)
// intersect. An interval ending exactly when the other starts does not count.
func Overlaps(a0, a1, b0, b1 time.Time) bool {
	return a0.Before(b1) && b0.Before(a1)
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// ContainedInWindows reports whether [start,end) lies entirely inside at least
// one of the recurring windows. Windows are weekly templates, so the candidate
// is compared by minute-of-day on the candidate's own date, never by the raw
// datetime of any stored window.
func ContainedInWindows(start, end time.Time, windows []model.AvailabilityWindow) bool {
	if !end.After(start) {
		return false
	}
	startMin := start.Hour()*60 + start.Minute()
	endMin := startMin + int(end.Sub(start)/time.Minute)
	if endMin > 24*60 {
		// Crosses midnight; recurring day windows cannot contain it.
		return false
	}
	for _, w := range windows {
		if startMin >= w.StartMinute && endMin <= w.EndMinute {
			return true
		}
	}
	return false
}
