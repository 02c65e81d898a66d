package main

import (
	"context"
	"fmt"
	"time"

	"github.com/match-lifecycle/internal/domain"
	"github.com/match-lifecycle/internal/memory"
	"github.com/match-lifecycle/internal/rating"
)

// seedDemo fills an in-memory store with a few players per region so the API
// can be tried without a database.
func seedDemo(ctx context.Context, store *memory.Store) error {
	regions := []domain.Region{
		{State: "Catalonia", City: "Barcelona"},
		{State: "Madrid", City: "Madrid"},
	}
	genders := []domain.Gender{domain.GenderMale, domain.GenderFemale}
	sides := []domain.Side{domain.SideLeft, domain.SideRight, domain.SideBoth, domain.SideNone}
	evenings := domain.Availability{
		time.Tuesday:  {domain.PeriodEvening},
		time.Thursday: {domain.PeriodEvening},
		time.Saturday: {domain.PeriodMorning, domain.PeriodAfternoon},
	}

	now := time.Now()
	for r, region := range regions {
		for i := range 8 {
			points := 900 + 40*i + 25*r
			p := &domain.Player{
				ID:                     fmt.Sprintf("demo-%d-%d", r+1, i+1),
				Name:                   fmt.Sprintf("Demo Player %d-%d", r+1, i+1),
				Region:                 region,
				Gender:                 genders[i%len(genders)],
				SidePreference:         sides[i%len(sides)],
				Rating:                 points,
				Category:               rating.Category(points),
				ProvisionalGamesPlayed: domain.ProvisionalMatches * (i % 2),
				Availability:           evenings,
				CreatedAt:              now,
				UpdatedAt:              now,
			}
			if err := store.UpsertPlayer(ctx, p); err != nil {
				return fmt.Errorf("seeding player %s: %w", p.ID, err)
			}
		}
	}
	return nil
}
