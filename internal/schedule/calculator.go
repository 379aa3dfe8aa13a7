package schedule

import (
	"time"

	"github.com/lyrebird-dev/chime/internal/lunar"
)

// ForwardPad is added to the previous trigger instant before computing the
// next occurrence. It guarantees forward progress even when a schedule
// resolves back to the instant that just fired.
const ForwardPad = 60

// NextTrigger computes the first trigger instant of the schedule seen from
// the given instant. ok is false when the schedule has no further
// occurrence (past end date, or an unreachable lunar date).
func NextTrigger(spec Spec, timezone string, from int64) (int64, bool) {
	return spec.next(from, OffsetSeconds(timezone))
}

// NextOccurrence advances a schedule after a successful trigger. One-shot
// schedules never recur.
func NextOccurrence(spec Spec, timezone string, last int64) (int64, bool) {
	if spec.OneShot() {
		return 0, false
	}
	return NextTrigger(spec, timezone, last+ForwardPad)
}

// localAt shifts a unix instant into the timezone's wall-clock frame. The
// returned time carries local date fields but a UTC location, so date
// arithmetic stays offset-free until the final shift back.
func localAt(unix int64, offset int) time.Time {
	return time.Unix(unix+int64(offset), 0).UTC()
}

func withClock(day time.Time, c Clock) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, time.UTC)
}

// lastDay returns the number of days in the month.
func lastDay(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// clampDay pins a requested day of month to the month's actual length, so
// day 31 resolves to Feb 28/29, Apr 30 and so on.
func clampDay(year int, month time.Month, day int) int {
	if ld := lastDay(year, month); day > ld {
		return ld
	}
	return day
}

// finish shifts a local-frame candidate back to UTC and applies the end
// date cutoff.
func finish(cand time.Time, offset int, endDate int64) (int64, bool) {
	t := cand.Unix() - int64(offset)
	if endDate != 0 && t > endDate {
		return 0, false
	}
	return t, true
}

func (s Once) next(from int64, offset int) (int64, bool) {
	return s.At, true
}

func (s Daily) next(from int64, offset int) (int64, bool) {
	local := localAt(from, offset)
	cand := withClock(local, s.Clock)
	if !cand.After(local) {
		cand = cand.AddDate(0, 0, s.EveryNDays)
	}
	return finish(cand, offset, s.EndDate)
}

func (s Weekly) next(from int64, offset int) (int64, bool) {
	local := localAt(from, offset)
	set := make(map[int]bool, len(s.Weekdays))
	for _, d := range s.Weekdays {
		set[d] = true
	}
	// Eight days covers the wrap-around when today's slot already passed.
	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		if !set[int(day.Weekday())] {
			continue
		}
		if cand := withClock(day, s.Clock); cand.After(local) {
			return finish(cand, offset, s.EndDate)
		}
	}
	return 0, false
}

func (s Monthly) next(from int64, offset int) (int64, bool) {
	local := localAt(from, offset)
	year, month := local.Year(), local.Month()
	cand := time.Date(year, month, clampDay(year, month, s.DayOfMonth), s.Clock.Hour, s.Clock.Minute, 0, 0, time.UTC)
	if !cand.After(local) {
		cand = addMonths(year, month, s.EveryNMonths, s.DayOfMonth, s.Clock)
	}
	return finish(cand, offset, s.EndDate)
}

func (s Yearly) next(from int64, offset int) (int64, bool) {
	local := localAt(from, offset)
	year := local.Year()
	month := time.Month(s.Month)
	cand := time.Date(year, month, clampDay(year, month, s.Day), s.Clock.Hour, s.Clock.Minute, 0, 0, time.UTC)
	if !cand.After(local) {
		year += s.EveryNYears
		cand = time.Date(year, month, clampDay(year, month, s.Day), s.Clock.Hour, s.Clock.Minute, 0, 0, time.UTC)
	}
	return finish(cand, offset, s.EndDate)
}

func (s Lunar) next(from int64, offset int) (int64, bool) {
	local := localAt(from, offset)
	// Start one day back so the lunar date falling on the current local day
	// still qualifies when its clock time is ahead of us.
	probe := withClock(local, Clock{}).AddDate(0, 0, -1)
	for i := 0; i < 2; i++ {
		sol, ok := lunar.NextOccurrence(s.Month, s.Day, s.Leap, probe)
		if !ok {
			return 0, false
		}
		if cand := withClock(sol, s.Clock); cand.After(local) {
			return finish(cand, offset, 0)
		}
		probe = sol
	}
	return 0, false
}

// addMonths advances (year, month) by n months and clamps the day to the
// destination month.
func addMonths(year int, month time.Month, n, day int, c Clock) time.Time {
	total := int(month) - 1 + n
	year += total / 12
	month = time.Month(total%12 + 1)
	return time.Date(year, month, clampDay(year, month, day), c.Hour, c.Minute, 0, 0, time.UTC)
}
