package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of every calendar date.
const DateLayout = "2006-01-02"

// Date is a calendar day at UTC midnight. Its String form is the grouping key.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day. Out of range values
// normalize the way time.Date does (day 0 is the last day of the previous month).
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a strict YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDate
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Today returns the current UTC date.
func Today() Date {
	return DateOf(time.Now())
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// String returns the YYYY-MM-DD form, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || b[0] != '"' {
		return ErrInvalidDate
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthRange returns the first and last day of month (1-12) in year.
// The last day comes from the calendar, so February follows leap years.
func MonthRange(year, month int) (Date, Date) {
	return NewDate(year, month, 1), NewDate(year, month+1, 0)
}

// YearRange returns January 1st and December 31st of year.
func YearRange(year int) (Date, Date) {
	return NewDate(year, 1, 1), NewDate(year, 12, 31)
}

// DaysIn returns the number of days in month of year.
func DaysIn(year, month int) int {
	_, last := MonthRange(year, month)
	return last.Day()
}

// ValidateYearMonth checks query style year/month values. Month 0 skips the month check.
func ValidateYearMonth(year, month int) error {
	if year < 1 || year > 9999 {
		return Invalid("year", ErrInvalidYear)
	}
	if month != 0 && (month < 1 || month > 12) {
		return Invalid("month", ErrInvalidMonth)
	}
	return nil
}

var nullJSON = []byte("null")

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), nullJSON)
}
