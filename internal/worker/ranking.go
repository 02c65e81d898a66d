package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// RatingSource lists graduated players' ratings grouped by region key
type RatingSource interface {
	GraduatedRatings(ctx context.Context) (map[string]map[string]int, error)
}

// RankingRebuilder replaces a region's ranking wholesale
type RankingRebuilder interface {
	Rebuild(ctx context.Context, regionKey string, ratings map[string]int) error
}

// RebuildRankings restores every regional ranking from the store. This is
// useful for recovery after the ranking cache lost its data.
func RebuildRankings(ctx context.Context, source RatingSource, index RankingRebuilder, logger *slog.Logger) error {
	logger.Info("rebuilding regional rankings from the store")

	regions, err := source.GraduatedRatings(ctx)
	if err != nil {
		return fmt.Errorf("loading graduated ratings: %w", err)
	}

	failed := 0
	for region, ratings := range regions {
		if err := index.Rebuild(ctx, region, ratings); err != nil {
			logger.Error("failed to rebuild regional ranking",
				"region", region,
				"error", err,
			)
			// Continue with other regions
			failed++
		}
	}

	logger.Info("completed rebuilding regional rankings", "regions", len(regions), "errors", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d regional rankings failed to rebuild", failed, len(regions))
	}
	return nil
}
