package regime

import (
	"fmt"
	"time"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

// DayKind classifies a calendar day for the exchange.
type DayKind int

const (
	TradingDay DayKind = iota
	Weekend
	Holiday
)

// Calendar resolves wall-clock time to the exchange session. Construction
// validates the timezone; classification afterwards is total and never
// errors, with anything unclassifiable landing in OFF_HOURS.
type Calendar struct {
	loc  *time.Location
	cuts strategyconfig.CutPoints
}

// NewCalendar builds a calendar for the configured session.
func NewCalendar(session strategyconfig.Session) (*Calendar, error) {
	loc, err := time.LoadLocation(session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", session.Timezone, err)
	}
	return &Calendar{loc: loc, cuts: session.CutPoints()}, nil
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// DayKind reports whether now falls on a trading day, weekend, or holiday.
func (c *Calendar) DayKind(now time.Time) DayKind {
	local := now.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Weekend
	}
	if isMarketHoliday(local) {
		return Holiday
	}
	return TradingDay
}

// Window returns the session band for now. Non-trading days are OFF_HOURS.
func (c *Calendar) Window(now time.Time) contracts.TimeWindow {
	if c.DayKind(now) != TradingDay {
		return contracts.WindowOffHours
	}
	local := now.In(c.loc)
	return classifyWindow(local.Hour()*60+local.Minute(), c.cuts)
}

// === US Market Holidays ===

// isMarketHoliday reports whether local's date is a full-closure exchange
// holiday. local must already be in the exchange timezone.
func isMarketHoliday(local time.Time) bool {
	y, m, d := local.Date()
	for _, h := range marketHolidays(y) {
		if h.month == m && h.day == d {
			return true
		}
	}
	return false
}

type monthDay struct {
	month time.Month
	day   int
}

// marketHolidays returns the full-closure days for a year: New Year's, MLK
// Day, Washington's Birthday, Good Friday, Memorial Day, Juneteenth (2022+),
// Independence Day, Labor Day, Thanksgiving, Christmas. Fixed dates shift
// Saturday to Friday and Sunday to Monday, except New Year's on a Saturday,
// which the exchange does not observe early.
func marketHolidays(year int) []monthDay {
	hs := make([]monthDay, 0, 10)

	if wd := weekdayOf(year, time.January, 1); wd == time.Sunday {
		hs = append(hs, monthDay{time.January, 2})
	} else if wd != time.Saturday {
		hs = append(hs, monthDay{time.January, 1})
	}

	hs = append(hs, nthWeekday(year, time.January, time.Monday, 3))
	hs = append(hs, nthWeekday(year, time.February, time.Monday, 3))
	hs = append(hs, goodFriday(year))
	hs = append(hs, lastWeekday(year, time.May, time.Monday))
	if year >= 2022 {
		hs = append(hs, observedFixed(year, time.June, 19))
	}
	hs = append(hs, observedFixed(year, time.July, 4))
	hs = append(hs, nthWeekday(year, time.September, time.Monday, 1))
	hs = append(hs, nthWeekday(year, time.November, time.Thursday, 4))
	hs = append(hs, observedFixed(year, time.December, 25))

	return hs
}

func weekdayOf(year int, month time.Month, day int) time.Weekday {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday()
}

// observedFixed shifts a fixed-date holiday off the weekend.
func observedFixed(year int, month time.Month, day int) monthDay {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	switch t.Weekday() {
	case time.Saturday:
		t = t.AddDate(0, 0, -1)
	case time.Sunday:
		t = t.AddDate(0, 0, 1)
	}
	return monthDay{t.Month(), t.Day()}
}

// nthWeekday returns the n-th weekday of a month.
func nthWeekday(year int, month time.Month, wd time.Weekday, n int) monthDay {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return monthDay{month, 1 + offset + (n-1)*7}
}

// lastWeekday returns the last weekday of a month.
func lastWeekday(year int, month time.Month, wd time.Weekday) monthDay {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return monthDay{month, last.Day() - offset}
}

// goodFriday returns the Friday before Easter (Gregorian computus).
func goodFriday(year int) monthDay {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := time.Month((h + l - 7*m + 114) / 31)
	day := (h+l-7*m+114)%31 + 1

	easter := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	gf := easter.AddDate(0, 0, -2)
	return monthDay{gf.Month(), gf.Day()}
}
