// Package lunar converts between the Chinese lunisolar calendar and solar
// (Gregorian) dates for the years 1900-2100.
//
// Each entry of the year table packs one lunar year:
//
//	bits 16..4  big-month flags for months 1..12 (bit 16-n, 1 = 30 days)
//	bit  16     the leap month, when present, has 30 days
//	bits 3..0   number of the leap month (0 = no leap month)
//
// Day counting is anchored at 1900-01-31, the first day of lunar year 1900.
package lunar

import "time"

const (
	firstYear = 1900
	lastYear  = 2100

	// searchYears bounds NextOccurrence. Leap months recur only every few
	// years, so five candidate years are always enough to find the next
	// match of any lunar date that can occur at all.
	searchYears = 5
)

var baseDate = time.Date(1900, time.January, 31, 0, 0, 0, 0, time.UTC)

var yearTable = [lastYear - firstYear + 1]uint32{
	0x04bd8, 0x04ae0, 0x0a570, 0x054d5, 0x0d260, 0x0d950, 0x16554, 0x056a0, 0x09ad0, 0x055d2, // 1900-1909
	0x04ae0, 0x0a5b6, 0x0a4d0, 0x0d250, 0x1d255, 0x0b540, 0x0d6a0, 0x0ada2, 0x095b0, 0x14977, // 1910-1919
	0x04970, 0x0a4b0, 0x0b4b5, 0x06a50, 0x06d40, 0x1ab54, 0x02b60, 0x09570, 0x052f2, 0x04970, // 1920-1929
	0x06566, 0x0d4a0, 0x0ea50, 0x06e95, 0x05ad0, 0x02b60, 0x186e3, 0x092e0, 0x1c8d7, 0x0c950, // 1930-1939
	0x0d4a0, 0x1d8a6, 0x0b550, 0x056a0, 0x1a5b4, 0x025d0, 0x092d0, 0x0d2b2, 0x0a950, 0x0b557, // 1940-1949
	0x06ca0, 0x0b550, 0x15355, 0x04da0, 0x0a5b0, 0x14573, 0x052b0, 0x0a9a8, 0x0e950, 0x06aa0, // 1950-1959
	0x0aea6, 0x0ab50, 0x04b60, 0x0aae4, 0x0a570, 0x05260, 0x0f263, 0x0d950, 0x05b57, 0x056a0, // 1960-1969
	0x096d0, 0x04dd5, 0x04ad0, 0x0a4d0, 0x0d4d4, 0x0d250, 0x0d558, 0x0b540, 0x0b6a0, 0x195a6, // 1970-1979
	0x095b0, 0x049b0, 0x0a974, 0x0a4b0, 0x0b27a, 0x06a50, 0x06d40, 0x0af46, 0x0ab60, 0x09570, // 1980-1989
	0x04af5, 0x04970, 0x064b0, 0x074a3, 0x0ea50, 0x06b58, 0x055c0, 0x0ab60, 0x096d5, 0x092e0, // 1990-1999
	0x0c960, 0x0d954, 0x0d4a0, 0x0da50, 0x07552, 0x056a0, 0x0abb7, 0x025d0, 0x092d0, 0x0cab5, // 2000-2009
	0x0a950, 0x0b4a0, 0x0baa4, 0x0ad50, 0x055d9, 0x04ba0, 0x0a5b0, 0x15176, 0x052b0, 0x0a930, // 2010-2019
	0x07954, 0x06aa0, 0x0ad50, 0x05b52, 0x04b60, 0x0a6e6, 0x0a4e0, 0x0d260, 0x0ea65, 0x0d530, // 2020-2029
	0x05aa0, 0x076a3, 0x096d0, 0x04afb, 0x04ad0, 0x0a4d0, 0x1d0b6, 0x0d250, 0x0d520, 0x0dd45, // 2030-2039
	0x0b5a0, 0x056d0, 0x055b2, 0x049b0, 0x0a577, 0x0a4b0, 0x0aa50, 0x1b255, 0x06d20, 0x0ada0, // 2040-2049
	0x14b63, 0x09370, 0x049f8, 0x04970, 0x064b0, 0x168a6, 0x0ea50, 0x06b20, 0x1a6c4, 0x0aae0, // 2050-2059
	0x0a2e0, 0x0d2e3, 0x0c960, 0x0d557, 0x0d4a0, 0x0da50, 0x05d55, 0x056a0, 0x0a6d0, 0x055d4, // 2060-2069
	0x052d0, 0x0a9b8, 0x0a950, 0x0b4a0, 0x0b6a6, 0x0ad50, 0x055a0, 0x0aba4, 0x0a5b0, 0x052b0, // 2070-2079
	0x0b273, 0x06930, 0x07337, 0x06aa0, 0x0ad50, 0x14b55, 0x04b60, 0x0a570, 0x054e4, 0x0d160, // 2080-2089
	0x0e968, 0x0d520, 0x0daa0, 0x16aa6, 0x056d0, 0x04ae0, 0x0a9d4, 0x0a2d0, 0x0d150, 0x0f252, // 2090-2099
	0x0d520, // 2100
}

// Date is a date on the lunisolar calendar. Leap marks the intercalary
// repetition of Month in years that have one.
type Date struct {
	Year  int
	Month int
	Day   int
	Leap  bool
}

func info(year int) uint32 {
	return yearTable[year-firstYear]
}

// LeapMonth returns the leap month of the given lunar year, or 0 if the
// year has none.
func LeapMonth(year int) int {
	if year < firstYear || year > lastYear {
		return 0
	}
	return int(info(year) & 0xf)
}

func leapDays(year int) int {
	if LeapMonth(year) == 0 {
		return 0
	}
	if info(year)&0x10000 != 0 {
		return 30
	}
	return 29
}

// MonthDays returns the number of days in the given regular lunar month.
func MonthDays(year, month int) int {
	if year < firstYear || year > lastYear || month < 1 || month > 12 {
		return 0
	}
	if info(year)&(0x10000>>uint(month)) != 0 {
		return 30
	}
	return 29
}

func yearDays(year int) int {
	days := 348 // twelve 29-day months
	for mask := uint32(0x8000); mask > 0x8; mask >>= 1 {
		if info(year)&mask != 0 {
			days++
		}
	}
	return days + leapDays(year)
}

// ToSolar resolves the lunar date to a solar date at UTC midnight. ok is
// false when the date does not exist: year outside the table, the year has
// no such leap month, or the day exceeds the month's length.
func (d Date) ToSolar() (time.Time, bool) {
	if d.Year < firstYear || d.Year > lastYear || d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return time.Time{}, false
	}

	length := MonthDays(d.Year, d.Month)
	if d.Leap {
		if LeapMonth(d.Year) != d.Month {
			return time.Time{}, false
		}
		length = leapDays(d.Year)
	}
	if d.Day > length {
		return time.Time{}, false
	}

	offset := 0
	for y := firstYear; y < d.Year; y++ {
		offset += yearDays(y)
	}
	for m := 1; m < d.Month; m++ {
		offset += MonthDays(d.Year, m)
	}
	// A leap month follows its regular month: the regular instance precedes
	// a leap target, and an earlier leap month precedes any later target.
	if d.Leap {
		offset += MonthDays(d.Year, d.Month)
	} else if lm := LeapMonth(d.Year); lm > 0 && lm < d.Month {
		offset += leapDays(d.Year)
	}

	return baseDate.AddDate(0, 0, offset+d.Day-1), true
}

// FromSolar converts a solar date to its lunar date. ok is false outside
// the supported range.
func FromSolar(t time.Time) (Date, bool) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := int(day.Sub(baseDate).Hours() / 24)
	if offset < 0 {
		return Date{}, false
	}

	year := firstYear
	for year <= lastYear {
		days := yearDays(year)
		if offset < days {
			break
		}
		offset -= days
		year++
	}
	if year > lastYear {
		return Date{}, false
	}

	leap := LeapMonth(year)
	isLeap := false
	month := 1
	for month <= 12 {
		days := MonthDays(year, month)
		if offset < days {
			break
		}
		offset -= days
		if month == leap {
			days = leapDays(year)
			if offset < days {
				isLeap = true
				break
			}
			offset -= days
		}
		month++
	}

	return Date{Year: year, Month: month, Day: offset + 1, Leap: isLeap}, true
}

// NextOccurrence finds the first solar date strictly after from on which
// the given lunar (month, day[, leap]) falls. Candidate years that lack
// the requested leap month or day are skipped; ok is false when nothing
// matches within the search window, which signals an impossible or
// far-future lunar date rather than an error.
func NextOccurrence(month, day int, leap bool, from time.Time) (time.Time, bool) {
	start := from.Year() - 1
	for year := start; year < start+searchYears; year++ {
		sol, ok := Date{Year: year, Month: month, Day: day, Leap: leap}.ToSolar()
		if !ok {
			continue
		}
		if sol.After(from) {
			return sol, true
		}
	}
	return time.Time{}, false
}
