// Package rtc holds wall-clock date handling shared by the log store and the
// feeding engine: calendar stamps, day keys and minute-of-day windows.
package rtc

import "time"

// MinutesPerDay is the length of a day in minutes.
const MinutesPerDay = 1440

// DateTime is a calendar stamp as read from the real-time clock. Year counts
// from 2000. The zero value means "no date".
type DateTime struct {
	Year   uint8 `json:"year"`
	Month  uint8 `json:"month"`
	Day    uint8 `json:"day"`
	Hour   uint8 `json:"hour"`
	Minute uint8 `json:"minute"`
}

var daysInMonth = [12]uint8{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isLeapYear(year uint8) bool {
	return year%4 == 0
}

// FromTime converts t to a DateTime. Years outside 2000..2099 are clamped.
func FromTime(t time.Time) DateTime {
	y := t.Year() - 2000
	if y < 0 {
		y = 0
	}
	if y > 99 {
		y = 99
	}
	return DateTime{
		Year:   uint8(y),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
	}
}

// Time returns d in loc, or the zero time if d is not valid.
func (d DateTime) Time(loc *time.Location) time.Time {
	if !d.Valid() {
		return time.Time{}
	}
	return time.Date(2000+int(d.Year), time.Month(d.Month), int(d.Day), int(d.Hour), int(d.Minute), 0, 0, loc)
}

// Valid reports whether d names a real calendar minute.
func (d DateTime) Valid() bool {
	if d.Year > 99 || d.Month == 0 || d.Month > 12 || d.Day == 0 {
		return false
	}
	if d.Hour > 23 || d.Minute > 59 {
		return false
	}
	dim := daysInMonth[d.Month-1]
	if d.Month == 2 && isLeapYear(d.Year) {
		dim = 29
	}
	return d.Day <= dim
}

// MinuteOfDay returns hour*60+minute.
func (d DateTime) MinuteOfDay() uint16 {
	return uint16(d.Hour)*60 + uint16(d.Minute)
}

// Minutes returns the number of minutes since 2000-01-01 00:00.
func (d DateTime) Minutes() (uint32, bool) {
	if !d.Valid() {
		return 0, false
	}
	days := uint32(d.Year)*365 + (uint32(d.Year)+3)/4
	for m := uint8(1); m < d.Month; m++ {
		days += uint32(daysInMonth[m-1])
		if m == 2 && isLeapYear(d.Year) {
			days++
		}
	}
	days += uint32(d.Day - 1)
	return days*MinutesPerDay + uint32(d.MinuteOfDay()), true
}

// DayKey returns a monotonically increasing key for a calendar day.
func DayKey(year, month, day uint8) uint16 {
	return uint16(year)*372 + uint16(month)*31 + uint16(day)
}

// LightDayKey returns the day key of the grow-light day containing d: the
// calendar day key, minus one when d falls before lights-on. Invalid dates
// yield 0.
func LightDayKey(d DateTime, lightsOn uint16) uint16 {
	if !d.Valid() {
		return 0
	}
	if lightsOn >= MinutesPerDay {
		lightsOn = 0
	}
	key := DayKey(d.Year, d.Month, d.Day)
	if d.MinuteOfDay() < lightsOn && key > 0 {
		key--
	}
	return key
}

// IsWithinWindow reports whether minute-of-day now lies in the window that
// starts at start and lasts dur minutes, wrapping past midnight.
func IsWithinWindow(now, start, dur uint16) bool {
	if dur == 0 {
		return false
	}
	if dur > MinutesPerDay-1 {
		dur = MinutesPerDay - 1
	}
	if start > MinutesPerDay-1 {
		start = MinutesPerDay - 1
	}
	end := (start + dur) % MinutesPerDay
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// MinutesSince returns how many minutes of the day have passed since from,
// wrapping past midnight.
func MinutesSince(from, now uint16) uint16 {
	if from >= MinutesPerDay {
		from = 0
	}
	if now >= from {
		return now - from
	}
	return now + MinutesPerDay - from
}

// LightsDuration returns the length of the lights-on period.
func LightsDuration(on, off uint16) uint16 {
	if off >= on {
		return off - on
	}
	return MinutesPerDay - on + off
}
