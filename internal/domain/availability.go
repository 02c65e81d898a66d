package domain

import "time"

// Period is a part of the day a player can play in
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

// Periods lists the day periods in chronological order
var Periods = []Period{PeriodMorning, PeriodAfternoon, PeriodEvening}

// Valid reports whether p is a known period
func (p Period) Valid() bool {
	switch p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening:
		return true
	}
	return false
}

// Availability maps a weekday to the periods a player is free on that day.
// A weekday with no periods is equivalent to an absent weekday.
type Availability map[time.Weekday][]Period

// Has reports whether the period is available on the given weekday
func (a Availability) Has(day time.Weekday, period Period) bool {
	for _, p := range a[day] {
		if p == period {
			return true
		}
	}
	return false
}

// Empty reports whether no slot is available at all
func (a Availability) Empty() bool {
	for _, periods := range a {
		if len(periods) > 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy
func (a Availability) Clone() Availability {
	if a == nil {
		return nil
	}
	out := make(Availability, len(a))
	for day, periods := range a {
		out[day] = append([]Period(nil), periods...)
	}
	return out
}
