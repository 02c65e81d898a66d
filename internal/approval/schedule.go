package approval

import (
	"time"

	"github.com/match-lifecycle/internal/domain"
)

// Policy controls how candidate times are generated once a match is approved
type Policy struct {
	Location          *time.Location
	MinLeadDays       int
	Proposals         int
	DefaultHour       int
	NegotiationWindow time.Duration
	PeriodHours       map[domain.Period]int
}

// DefaultPolicy returns the production scheduling policy in the given location
func DefaultPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{
		Location:          loc,
		MinLeadDays:       2,
		Proposals:         3,
		DefaultHour:       19,
		NegotiationWindow: 72 * time.Hour,
		PeriodHours: map[domain.Period]int{
			domain.PeriodMorning:   9,
			domain.PeriodAfternoon: 15,
			domain.PeriodEvening:   19,
		},
	}
}

// ProposeTimes returns the earliest slots of the common availability starting
// MinLeadDays after now. Without usable availability it proposes the following
// calendar days at the default hour.
func (p Policy) ProposeTimes(common domain.Availability, now time.Time) []time.Time {
	local := now.In(p.Location)
	year, month, day := local.Date()

	out := make([]time.Time, 0, p.Proposals)
	if !common.Empty() {
		// every weekday recurs within a week, so this horizon fits Proposals slots of a single-slot availability
		horizon := 7 * p.Proposals
		for offset := p.MinLeadDays; offset < p.MinLeadDays+horizon && len(out) < p.Proposals; offset++ {
			date := time.Date(year, month, day+offset, 0, 0, 0, 0, p.Location)
			for _, period := range domain.Periods {
				if len(out) == p.Proposals {
					break
				}
				if !common.Has(date.Weekday(), period) {
					continue
				}
				slot := time.Date(year, month, day+offset, p.hour(period), 0, 0, 0, p.Location)
				if !slot.After(now) {
					continue
				}
				out = append(out, slot)
			}
		}
		if len(out) == p.Proposals {
			return out
		}
		out = out[:0]
	}

	for offset := 1; offset <= p.Proposals; offset++ {
		out = append(out, time.Date(year, month, day+offset, p.DefaultHour, 0, 0, 0, p.Location))
	}
	return out
}

func (p Policy) hour(period domain.Period) int {
	if h, ok := p.PeriodHours[period]; ok {
		return h
	}
	return p.DefaultHour
}
