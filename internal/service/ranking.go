package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/domain"
)

var errRankingDisabled = errors.New("ranking feed disabled")

// RankingService serves the regional ranking and per-player rating history
type RankingService struct {
	store   Store
	ranking RankingIndex
	config  *config.RankingConfig
}

// NewRankingService creates a new ranking service
func NewRankingService(store Store, ranking RankingIndex, cfg *config.RankingConfig) *RankingService {
	return &RankingService{
		store:   store,
		ranking: ranking,
		config:  cfg,
	}
}

// GetTopN returns the top N graduated players of a region
func (s *RankingService) GetTopN(ctx context.Context, region domain.Region, n int) ([]domain.RankingEntry, error) {
	if strings.TrimSpace(region.State) == "" || strings.TrimSpace(region.City) == "" {
		return nil, fmt.Errorf("%w: region needs a state and a city", domain.ErrInvalid)
	}
	if s.ranking == nil {
		return nil, domain.Dependency("regional ranking", errRankingDisabled)
	}

	// Validate limit
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}

	entries, err := s.ranking.GetTopN(ctx, region.Key(), n)
	if err != nil {
		return nil, domain.Dependency("get top n", err)
	}
	return entries, nil
}

// History returns a player's most recent rating changes, newest first
func (s *RankingService) History(ctx context.Context, playerID string, limit int) ([]domain.RankingHistoryRecord, error) {
	if limit <= 0 || limit > s.config.MaxLimit {
		limit = s.config.DefaultLimit
	}
	if _, err := s.store.GetPlayer(ctx, playerID); err != nil {
		return nil, storeErr("get player", err)
	}
	records, err := s.store.ListRankingHistory(ctx, playerID, limit)
	if err != nil {
		return nil, storeErr("list ranking history", err)
	}
	return records, nil
}
