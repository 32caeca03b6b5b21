package leaderboard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Interval is the window a partition ranks over: Current or a Skyblock month
// key "yyyy-MM".
type Interval string

// Current is the live, never-closing interval.
const Current Interval = "current"

// Skyblock calendar: 20 minute days, 31 day months, 12 month years, counted
// from the first Skyblock day.
const (
	SkyblockEpoch = 1560275700
	DayDuration   = 20 * time.Minute
	MonthDuration = 31 * DayDuration
	YearDuration  = 12 * MonthDuration
)

var monthKeyPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// ParseInterval parses a query parameter. Empty means Current.
func ParseInterval(s string) (Interval, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(Current) {
		return Current, nil
	}
	m := monthKeyPattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if year < 1 || month < 1 || month > 12 {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return Interval(s), nil
}

// IsCurrent reports whether i is the live interval.
func (i Interval) IsCurrent() bool { return i == Current }

// Date returns the first day of a month interval.
func (i Interval) Date() (SkyblockDate, error) {
	if i.IsCurrent() {
		return SkyblockDate{}, fmt.Errorf("%w: current has no month", ErrInvalidInterval)
	}
	if _, err := ParseInterval(string(i)); err != nil {
		return SkyblockDate{}, err
	}
	year, _ := strconv.Atoi(string(i[:4]))
	month, _ := strconv.Atoi(string(i[5:]))
	return SkyblockDate{Year: year, Month: month, Day: 1}, nil
}

// Next returns the month interval following i.
func (i Interval) Next() (Interval, error) {
	d, err := i.Date()
	if err != nil {
		return "", err
	}
	d.Month++
	if d.Month > 12 {
		d.Month = 1
		d.Year++
	}
	return d.MonthKey(), nil
}

// Before reports whether month interval i is earlier than o. Keys are zero
// padded so string order is calendar order.
func (i Interval) Before(o Interval) bool { return string(i) < string(o) }

func (i Interval) String() string { return string(i) }

// SkyblockDate is a date in the game's calendar. Fields are 1-based.
type SkyblockDate struct {
	Year  int
	Month int
	Day   int
}

// DateOf converts a real time to a Skyblock date. Times before the epoch map
// to the first day.
func DateOf(t time.Time) SkyblockDate {
	elapsed := t.Unix() - SkyblockEpoch
	if elapsed < 0 {
		elapsed = 0
	}
	year := int64(YearDuration / time.Second)
	month := int64(MonthDuration / time.Second)
	day := int64(DayDuration / time.Second)

	y := elapsed / year
	rem := elapsed % year
	m := rem / month
	rem %= month
	return SkyblockDate{Year: int(y) + 1, Month: int(m) + 1, Day: int(rem/day) + 1}
}

// MonthKey returns the interval key of the month d falls in.
func (d SkyblockDate) MonthKey() Interval {
	return Interval(fmt.Sprintf("%04d-%02d", d.Year, d.Month))
}

// Time returns the real time at which d begins.
func (d SkyblockDate) Time() time.Time {
	offset := time.Duration(d.Year-1)*YearDuration +
		time.Duration(d.Month-1)*MonthDuration +
		time.Duration(d.Day-1)*DayDuration
	return time.Unix(SkyblockEpoch, 0).UTC().Add(offset)
}

// Calendar maps wall-clock time onto Skyblock months.
type Calendar struct {
	now func() time.Time
}

// NewCalendar returns a calendar reading time from now; nil uses time.Now.
func NewCalendar(now func() time.Time) *Calendar {
	if now == nil {
		now = time.Now
	}
	return &Calendar{now: now}
}

// CurrentMonth returns the month interval open right now.
func (c *Calendar) CurrentMonth() Interval {
	return DateOf(c.now()).MonthKey()
}

// Now returns the calendar's current time.
func (c *Calendar) Now() time.Time { return c.now() }
