package core

import (
	"errors"
	"time"
)

// DayKeyLayout is the persisted day format (yyyy-MM-dd).
const DayKeyLayout = "2006-01-02"

var ErrInvalidDayKey = errors.New("invalid day key")

// DayKey identifies a calendar day, e.g. "2025-03-14".
type DayKey string

// Clock supplies wall-clock time. Tests swap it for a fixed clock.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// DayKeyOf formats t as a DayKey in loc. A nil loc means UTC.
func DayKeyOf(t time.Time, loc *time.Location) DayKey {
	if loc == nil {
		loc = time.UTC
	}
	return DayKey(t.In(loc).Format(DayKeyLayout))
}

// ParseDayKey validates s and returns it as a DayKey.
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(DayKeyLayout, s)
	if err != nil {
		return "", ErrInvalidDayKey
	}
	// time.Parse accepts some non-canonical forms; require a round trip.
	if t.Format(DayKeyLayout) != s {
		return "", ErrInvalidDayKey
	}
	return DayKey(s), nil
}

func (d DayKey) String() string { return string(d) }

// Time returns midnight UTC of the day.
func (d DayKey) Time() (time.Time, error) {
	t, err := time.Parse(DayKeyLayout, string(d))
	if err != nil {
		return time.Time{}, ErrInvalidDayKey
	}
	return t, nil
}

// AddDays shifts the key by n calendar days.
func (d DayKey) AddDays(n int) (DayKey, error) {
	t, err := d.Time()
	if err != nil {
		return "", err
	}
	return DayKey(t.AddDate(0, 0, n).Format(DayKeyLayout)), nil
}

func (d DayKey) Validate() error {
	_, err := ParseDayKey(string(d))
	return err
}
