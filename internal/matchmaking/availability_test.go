package matchmaking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/match-lifecycle/internal/domain"
)

func TestMergeAvailability(t *testing.T) {
	weekdays := domain.Availability{
		time.Monday:    {domain.PeriodEvening, domain.PeriodMorning},
		time.Wednesday: {domain.PeriodEvening},
		time.Saturday:  {domain.PeriodMorning, domain.PeriodAfternoon},
	}
	weekends := domain.Availability{
		time.Saturday: {domain.PeriodAfternoon, domain.PeriodEvening},
		time.Sunday:   {domain.PeriodMorning},
	}

	tests := []struct {
		name string
		sets []domain.Availability
		want domain.Availability
	}{
		{
			name: "no players",
			want: domain.Availability{},
		},
		{
			name: "single player is normalised",
			sets: []domain.Availability{weekdays},
			want: domain.Availability{
				time.Monday:    {domain.PeriodMorning, domain.PeriodEvening},
				time.Wednesday: {domain.PeriodEvening},
				time.Saturday:  {domain.PeriodMorning, domain.PeriodAfternoon},
			},
		},
		{
			name: "days with empty intersection are dropped",
			sets: []domain.Availability{weekdays, weekends},
			want: domain.Availability{
				time.Saturday: {domain.PeriodAfternoon},
			},
		},
		{
			name: "one player with nothing empties the result",
			sets: []domain.Availability{weekdays, weekends, {}},
			want: domain.Availability{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeAvailability(tt.sets...))
		})
	}
}

func TestMergeAvailability_Laws(t *testing.T) {
	a := domain.Availability{
		time.Monday:   {domain.PeriodMorning, domain.PeriodEvening},
		time.Tuesday:  {domain.PeriodAfternoon},
		time.Saturday: {domain.PeriodMorning, domain.PeriodAfternoon, domain.PeriodEvening},
	}
	b := domain.Availability{
		time.Monday:   {domain.PeriodEvening},
		time.Saturday: {domain.PeriodAfternoon, domain.PeriodMorning},
	}
	c := domain.Availability{
		time.Monday:   {domain.PeriodEvening, domain.PeriodMorning},
		time.Saturday: {domain.PeriodMorning},
		time.Sunday:   {domain.PeriodEvening},
	}

	t.Run("commutative", func(t *testing.T) {
		assert.Equal(t, MergeAvailability(a, b), MergeAvailability(b, a))
		assert.Equal(t, MergeAvailability(a, b, c), MergeAvailability(c, a, b))
	})
	t.Run("associative", func(t *testing.T) {
		left := MergeAvailability(MergeAvailability(a, b), c)
		right := MergeAvailability(a, MergeAvailability(b, c))
		assert.Equal(t, left, right)
		assert.Equal(t, MergeAvailability(a, b, c), left)
	})
	t.Run("idempotent", func(t *testing.T) {
		once := MergeAvailability(a)
		assert.Equal(t, once, MergeAvailability(a, a))
		assert.Equal(t, once, MergeAvailability(once))
	})
}
