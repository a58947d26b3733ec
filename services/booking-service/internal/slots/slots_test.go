package slots

import (
	"testing"
	"time"

	"github.com/mkleinsma/boekmij/services/booking-service/internal/model"
)

// 2026-01-05 is a Monday.
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func TestAvailableSlots_MorningWindow(t *testing.T) {
	windowStart := monday.Add(9 * time.Hour)
	windowEnd := monday.Add(12 * time.Hour)

	starts := AvailableSlots(windowStart, windowEnd, 30*time.Minute, 30*time.Minute, nil, monday)
	if len(starts) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(starts))
	}
	for i, s := range starts {
		want := windowStart.Add(time.Duration(i) * 30 * time.Minute)
		if !s.Equal(want) {
			t.Fatalf("slot %d: expected %s, got %s", i, want.Format(time.RFC3339), s.Format(time.RFC3339))
		}
	}
}

func TestAvailableSlots_BusyBlocksOverlappingCandidates(t *testing.T) {
	windowStart := monday.Add(9 * time.Hour)
	windowEnd := monday.Add(10 * time.Hour)

	// A booking at 09:15-09:45 straddles both the 09:00 and 09:30 candidates.
	busy := []Interval{
		{Start: monday.Add(9*time.Hour + 15*time.Minute), End: monday.Add(9*time.Hour + 45*time.Minute)},
	}

	starts := AvailableSlots(windowStart, windowEnd, 30*time.Minute, 30*time.Minute, busy, monday)
	if len(starts) != 0 {
		t.Fatalf("expected no slots, got %d", len(starts))
	}
}

func TestAvailableSlots_TouchingBoundaryIsFree(t *testing.T) {
	windowStart := monday.Add(9 * time.Hour)
	windowEnd := monday.Add(11 * time.Hour)

	busy := []Interval{
		{Start: monday.Add(10 * time.Hour), End: monday.Add(10*time.Hour + 30*time.Minute)},
	}

	starts := AvailableSlots(windowStart, windowEnd, 30*time.Minute, 30*time.Minute, busy, monday)
	// 09:00, 09:30 end at or before 10:00 and stay free; 10:30 starts where
	// the booking ends. Only 10:00 itself is blocked.
	if len(starts) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(starts))
	}
	if !starts[1].Equal(monday.Add(9*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected 09:30 offered, got %s", starts[1].Format(time.RFC3339))
	}
	if !starts[2].Equal(monday.Add(10*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected 10:30 offered, got %s", starts[2].Format(time.RFC3339))
	}
}

func TestAvailableSlots_DropsPartialTrailingSlot(t *testing.T) {
	windowStart := monday.Add(9 * time.Hour)
	windowEnd := monday.Add(10*time.Hour + 15*time.Minute)

	starts := AvailableSlots(windowStart, windowEnd, 30*time.Minute, 30*time.Minute, nil, monday)
	// 10:00 would end at 10:30, past the window. Only 09:00 and 09:30 fit.
	if len(starts) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(starts))
	}
}

func TestAvailableSlots_SkipsPast(t *testing.T) {
	windowStart := monday.Add(9 * time.Hour)
	windowEnd := monday.Add(11 * time.Hour)

	now := monday.Add(9*time.Hour + 31*time.Minute)
	starts := AvailableSlots(windowStart, windowEnd, 30*time.Minute, 30*time.Minute, nil, now)
	if len(starts) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(starts))
	}
	if !starts[0].Equal(monday.Add(10 * time.Hour)) {
		t.Fatalf("expected first slot 10:00, got %s", starts[0].Format(time.RFC3339))
	}
}

func TestAvailableSlots_WindowShorterThanDuration(t *testing.T) {
	windowStart := monday.Add(9 * time.Hour)
	windowEnd := monday.Add(9*time.Hour + 20*time.Minute)

	starts := AvailableSlots(windowStart, windowEnd, 30*time.Minute, 30*time.Minute, nil, monday)
	if starts != nil {
		t.Fatalf("expected nil, got %v", starts)
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	a0 := monday.Add(9 * time.Hour)
	a1 := monday.Add(10 * time.Hour)

	if Overlaps(a0, a1, a1, a1.Add(time.Hour)) {
		t.Fatal("touching intervals must not overlap")
	}
	if Overlaps(a0, a1, a0.Add(-time.Hour), a0) {
		t.Fatal("touching intervals must not overlap")
	}
	if !Overlaps(a0, a1, a1.Add(-time.Minute), a1.Add(time.Hour)) {
		t.Fatal("one-minute intersection must overlap")
	}
	if !Overlaps(a0, a1, a0.Add(time.Minute), a1.Add(-time.Minute)) {
		t.Fatal("contained interval must overlap")
	}
}

func TestAnchor(t *testing.T) {
	w := model.AvailabilityWindow{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60}
	iv := Anchor(w, monday.Add(13*time.Hour+37*time.Minute))
	if !iv.Start.Equal(monday.Add(9 * time.Hour)) {
		t.Fatalf("expected start 09:00, got %s", iv.Start.Format(time.RFC3339))
	}
	if !iv.End.Equal(monday.Add(12 * time.Hour)) {
		t.Fatalf("expected end 12:00, got %s", iv.End.Format(time.RFC3339))
	}
}

func TestMerge(t *testing.T) {
	a := Interval{Start: monday.Add(9 * time.Hour), End: monday.Add(9*time.Hour + 30*time.Minute)}
	b := Interval{Start: monday.Add(9*time.Hour + 15*time.Minute), End: monday.Add(9*time.Hour + 45*time.Minute)}
	c := Interval{Start: monday.Add(10 * time.Hour), End: monday.Add(10*time.Hour + 30*time.Minute)}

	merged := Merge([]Interval{c, a, b})
	if len(merged) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(merged))
	}
	if !merged[0].Start.Equal(a.Start) || !merged[1].Start.Equal(c.Start) {
		t.Fatalf("unexpected merge order: %v", merged)
	}
}

func TestContainedInWindows(t *testing.T) {
	windows := []model.AvailabilityWindow{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
		{Weekday: time.Monday, StartMinute: 14 * 60, EndMinute: 17 * 60},
	}

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"inside morning", monday.Add(9 * time.Hour), monday.Add(9*time.Hour + 30*time.Minute), true},
		{"flush with window end", monday.Add(11*time.Hour + 30*time.Minute), monday.Add(12 * time.Hour), true},
		{"spills past window", monday.Add(11*time.Hour + 45*time.Minute), monday.Add(12*time.Hour + 15*time.Minute), false},
		{"in the gap", monday.Add(12*time.Hour + 30*time.Minute), monday.Add(13 * time.Hour), false},
		{"inside afternoon", monday.Add(15 * time.Hour), monday.Add(16 * time.Hour), true},
		{"spans both windows", monday.Add(11 * time.Hour), monday.Add(15 * time.Hour), false},
		{"zero length", monday.Add(9 * time.Hour), monday.Add(9 * time.Hour), false},
		{"crosses midnight", monday.Add(23*time.Hour + 30*time.Minute), monday.Add(24*time.Hour + 30*time.Minute), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContainedInWindows(tc.start, tc.end, windows); got != tc.want {
				t.Fatalf("ContainedInWindows(%s, %s) = %v, want %v",
					tc.start.Format("15:04"), tc.end.Format("15:04"), got, tc.want)
			}
		})
	}
}

func TestContainedInWindows_NoWindows(t *testing.T) {
	if ContainedInWindows(monday.Add(9*time.Hour), monday.Add(10*time.Hour), nil) {
		t.Fatal("no windows must not contain anything")
	}
}
