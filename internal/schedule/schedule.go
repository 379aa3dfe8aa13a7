// Package schedule turns a schedule description into concrete trigger
// instants. All instants are unix seconds; wall-clock arithmetic shifts
// the instant by the timezone's fixed offset, manipulates date fields in
// that frame, and shifts back.
package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Type identifies a schedule variant.
type Type string

const (
	TypeOnce    Type = "once"
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeMonthly Type = "monthly"
	TypeYearly  Type = "yearly"
	TypeLunar   Type = "lunar"
)

// Valid reports whether t is a known schedule type.
func (t Type) Valid() bool {
	switch t {
	case TypeOnce, TypeDaily, TypeWeekly, TypeMonthly, TypeYearly, TypeLunar:
		return true
	}
	return false
}

// ConfigError reports a structurally invalid schedule configuration. It is
// the only error the calculator raises; "no further occurrence" is a
// normal not-ok result, never an error.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Spec is a parsed, validated schedule configuration. The set of
// implementations is closed: one per Type, all in this package.
type Spec interface {
	// Type returns the schedule variant.
	Type() Type
	// OneShot reports whether the schedule fires at most once.
	OneShot() bool

	next(from int64, offset int) (int64, bool)
}

// Once fires at a fixed instant.
type Once struct {
	At int64
}

// Daily fires at a wall-clock time every N days.
type Daily struct {
	Clock      Clock
	EveryNDays int
	EndDate    int64 // unix midnight UTC of the exclusive end date, 0 = none
}

// Weekly fires at a wall-clock time on a set of weekdays (0=Sunday).
type Weekly struct {
	Clock       Clock
	Weekdays    []int // sorted, unique
	EveryNWeeks int
	EndDate     int64
}

// Monthly fires at a wall-clock time on a day of the month, clamped to
// the month's last day when the month is shorter.
type Monthly struct {
	Clock        Clock
	DayOfMonth   int
	EveryNMonths int
	EndDate      int64
}

// Yearly fires at a wall-clock time on a (month, day), clamped to the
// month's length.
type Yearly struct {
	Clock       Clock
	Month       int
	Day         int
	EveryNYears int
	EndDate     int64
}

// Lunar fires on a lunisolar calendar date, optionally a leap month, at a
// wall-clock time. Repeat=false makes it one-shot.
type Lunar struct {
	Month  int
	Day    int
	Clock  Clock
	Leap   bool
	Repeat bool
}

func (Once) Type() Type    { return TypeOnce }
func (Daily) Type() Type   { return TypeDaily }
func (Weekly) Type() Type  { return TypeWeekly }
func (Monthly) Type() Type { return TypeMonthly }
func (Yearly) Type() Type  { return TypeYearly }
func (Lunar) Type() Type   { return TypeLunar }

func (Once) OneShot() bool    { return true }
func (Daily) OneShot() bool   { return false }
func (Weekly) OneShot() bool  { return false }
func (Monthly) OneShot() bool { return false }
func (Yearly) OneShot() bool  { return false }
func (s Lunar) OneShot() bool { return !s.Repeat }

// rawConfig is the union of all per-type JSON payloads. Pointers
// distinguish absent optional fields from zero values.
type rawConfig struct {
	At     string `json:"at"`
	AtUnix int64  `json:"at_unix"`

	Time    string `json:"time"`
	EndDate string `json:"end_date"`

	EveryNDays   *int `json:"every_n_days"`
	EveryNWeeks  *int `json:"every_n_weeks"`
	EveryNMonths *int `json:"every_n_months"`
	EveryNYears  *int `json:"every_n_years"`

	Weekdays   []int `json:"weekdays"`
	DayOfMonth int   `json:"day_of_month"`
	Month      int   `json:"month"`
	Day        int   `json:"day"`

	LunarMonth int   `json:"lunarMonth"`
	LunarDay   int   `json:"lunarDay"`
	LeapMonth  bool  `json:"leapMonth"`
	Repeat     *bool `json:"repeat"`
}

// ParseConfig validates raw against the rules of the given schedule type
// and returns the typed Spec. All validation failures are *ConfigError.
func ParseConfig(t Type, raw json.RawMessage) (Spec, error) {
	if !t.Valid() {
		return nil, configErrorf("unknown schedule type: %q", t)
	}
	if len(raw) == 0 {
		return nil, configErrorf("%s schedule requires a schedule_config object", t)
	}

	var c rawConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, configErrorf("invalid schedule_config: %v", err)
	}

	switch t {
	case TypeOnce:
		return parseOnce(c)
	case TypeDaily:
		return parseDaily(c)
	case TypeWeekly:
		return parseWeekly(c)
	case TypeMonthly:
		return parseMonthly(c)
	case TypeYearly:
		return parseYearly(c)
	default:
		return parseLunar(c)
	}
}

func parseOnce(c rawConfig) (Spec, error) {
	if c.At == "" && c.AtUnix == 0 {
		return nil, configErrorf(`once schedule requires "at" (ISO 8601) or "at_unix" (unix timestamp)`)
	}
	if c.At != "" {
		ts, err := time.Parse(time.RFC3339, c.At)
		if err != nil {
			return nil, configErrorf(`"at" must be a valid ISO 8601 datetime`)
		}
		return Once{At: ts.Unix()}, nil
	}
	return Once{At: c.AtUnix}, nil
}

func parseDaily(c rawConfig) (Spec, error) {
	clock, err := requireClock(c.Time, TypeDaily)
	if err != nil {
		return nil, err
	}
	every, err := interval(c.EveryNDays, "every_n_days")
	if err != nil {
		return nil, err
	}
	end, err := parseEndDate(c.EndDate)
	if err != nil {
		return nil, err
	}
	return Daily{Clock: clock, EveryNDays: every, EndDate: end}, nil
}

func parseWeekly(c rawConfig) (Spec, error) {
	clock, err := requireClock(c.Time, TypeWeekly)
	if err != nil {
		return nil, err
	}
	if len(c.Weekdays) == 0 {
		return nil, configErrorf(`weekly schedule requires "weekdays" array (0=Sunday..6=Saturday)`)
	}
	seen := make(map[int]bool, len(c.Weekdays))
	var days []int
	for _, d := range c.Weekdays {
		if d < 0 || d > 6 {
			return nil, configErrorf("weekdays must contain integers from 0 to 6")
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)
	every, err := interval(c.EveryNWeeks, "every_n_weeks")
	if err != nil {
		return nil, err
	}
	end, err := parseEndDate(c.EndDate)
	if err != nil {
		return nil, err
	}
	return Weekly{Clock: clock, Weekdays: days, EveryNWeeks: every, EndDate: end}, nil
}

func parseMonthly(c rawConfig) (Spec, error) {
	clock, err := requireClock(c.Time, TypeMonthly)
	if err != nil {
		return nil, err
	}
	if c.DayOfMonth < 1 || c.DayOfMonth > 31 {
		return nil, configErrorf(`monthly schedule requires "day_of_month" (1-31)`)
	}
	every, err := interval(c.EveryNMonths, "every_n_months")
	if err != nil {
		return nil, err
	}
	end, err := parseEndDate(c.EndDate)
	if err != nil {
		return nil, err
	}
	return Monthly{Clock: clock, DayOfMonth: c.DayOfMonth, EveryNMonths: every, EndDate: end}, nil
}

func parseYearly(c rawConfig) (Spec, error) {
	clock, err := requireClock(c.Time, TypeYearly)
	if err != nil {
		return nil, err
	}
	if c.Month < 1 || c.Month > 12 {
		return nil, configErrorf(`yearly schedule requires "month" (1-12)`)
	}
	if c.Day < 1 || c.Day > 31 {
		return nil, configErrorf(`yearly schedule requires "day" (1-31)`)
	}
	every, err := interval(c.EveryNYears, "every_n_years")
	if err != nil {
		return nil, err
	}
	end, err := parseEndDate(c.EndDate)
	if err != nil {
		return nil, err
	}
	return Yearly{Clock: clock, Month: c.Month, Day: c.Day, EveryNYears: every, EndDate: end}, nil
}

func parseLunar(c rawConfig) (Spec, error) {
	if c.LunarMonth < 1 || c.LunarMonth > 12 {
		return nil, configErrorf(`lunar schedule requires "lunarMonth" (1-12)`)
	}
	if c.LunarDay < 1 || c.LunarDay > 30 {
		return nil, configErrorf(`lunar schedule requires "lunarDay" (1-30)`)
	}
	clock, err := requireClock(c.Time, TypeLunar)
	if err != nil {
		return nil, err
	}
	repeat := true
	if c.Repeat != nil {
		repeat = *c.Repeat
	}
	return Lunar{Month: c.LunarMonth, Day: c.LunarDay, Clock: clock, Leap: c.LeapMonth, Repeat: repeat}, nil
}

func requireClock(s string, t Type) (Clock, error) {
	if s == "" {
		return Clock{}, configErrorf(`%s schedule requires "time" in HH:MM format`, t)
	}
	clock, err := ParseClock(s)
	if err != nil {
		return Clock{}, configErrorf(`%s schedule requires "time" in HH:MM format`, t)
	}
	return clock, nil
}

func interval(v *int, field string) (int, error) {
	if v == nil {
		return 1, nil
	}
	if *v < 1 {
		return 0, configErrorf("%s must be a positive integer", field)
	}
	return *v, nil
}

// parseEndDate parses an optional YYYY-MM-DD end date to its UTC midnight
// unix timestamp. Zero means no end date.
func parseEndDate(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, configErrorf("end_date must be a valid ISO date (YYYY-MM-DD)")
	}
	return ts.Unix(), nil
}
