package matchmaking

import (
	"time"

	"github.com/match-lifecycle/internal/domain"
)

// MergeAvailability returns the slots every given availability has in common.
// Days whose intersection is empty are omitted. The result lists periods in
// chronological order, so merging is commutative, associative and idempotent.
func MergeAvailability(sets ...domain.Availability) domain.Availability {
	out := domain.Availability{}
	if len(sets) == 0 {
		return out
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		var common []domain.Period
		for _, period := range domain.Periods {
			inAll := true
			for _, set := range sets {
				if !set.Has(day, period) {
					inAll = false
					break
				}
			}
			if inAll {
				common = append(common, period)
			}
		}
		if len(common) > 0 {
			out[day] = common
		}
	}
	return out
}
