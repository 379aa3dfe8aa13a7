package schedule

import (
	"fmt"
	"regexp"
	"strconv"
)

// utcOffsets maps the supported IANA zone names to a constant UTC offset
// in seconds. DST transitions are not modeled; swapping in a real tz
// database only requires replacing OffsetSeconds.
var utcOffsets = map[string]int{
	"UTC":                 0,
	"Asia/Singapore":      8 * 3600,
	"Asia/Shanghai":       8 * 3600,
	"Asia/Hong_Kong":      8 * 3600,
	"Asia/Taipei":         8 * 3600,
	"Asia/Tokyo":          9 * 3600,
	"Asia/Seoul":          9 * 3600,
	"America/New_York":    -5 * 3600,
	"America/Chicago":     -6 * 3600,
	"America/Los_Angeles": -8 * 3600,
	"Europe/London":       0,
	"Europe/Paris":        1 * 3600,
	"Europe/Berlin":       1 * 3600,
	"Australia/Sydney":    10 * 3600,
}

// OffsetSeconds returns the UTC offset for a timezone name. Unknown names
// fall back to UTC.
func OffsetSeconds(timezone string) int {
	return utcOffsets[timezone]
}

// KnownTimezone reports whether the timezone name is in the offset table.
func KnownTimezone(timezone string) bool {
	_, ok := utcOffsets[timezone]
	return ok
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an HH:MM string.
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, fmt.Errorf("invalid time format: %q, expected HH:MM", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid time value: %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}
