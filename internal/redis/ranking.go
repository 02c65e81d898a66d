package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/match-lifecycle/internal/config"
	"github.com/match-lifecycle/internal/domain"
)

// NewClient connects to Redis and verifies the connection
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// RankingIndex keeps one sorted set of graduated players' ratings per region
type RankingIndex struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRankingIndex creates a regional ranking backed by the given client
func NewRankingIndex(client *redis.Client, logger *slog.Logger) *RankingIndex {
	return &RankingIndex{
		client: client,
		logger: logger.With("component", "ranking_index"),
	}
}

// rankingKey returns the Redis key for a region's sorted set
func rankingKey(regionKey string) string {
	return fmt.Sprintf("ranking:%s", regionKey)
}

// SetRatings writes the given players' ratings into the region's ranking using pipelining
func (r *RankingIndex) SetRatings(ctx context.Context, regionKey string, ratings map[string]int) error {
	if len(ratings) == 0 {
		return nil
	}
	key := rankingKey(regionKey)
	pipe := r.client.Pipeline()
	for playerID, rating := range ratings {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(rating),
			Member: playerID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting ratings: %w", err)
	}
	return nil
}

// Rebuild replaces the region's ranking with exactly the given ratings
func (r *RankingIndex) Rebuild(ctx context.Context, regionKey string, ratings map[string]int) error {
	key := rankingKey(regionKey)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		for playerID, rating := range ratings {
			pipe.ZAdd(ctx, key, redis.Z{Score: float64(rating), Member: playerID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuilding ranking %s: %w", regionKey, err)
	}
	r.logger.Debug("regional ranking rebuilt", "region", regionKey, "players", len(ratings))
	return nil
}

// GetTopN returns the top N players of the region (descending rating)
func (r *RankingIndex) GetTopN(ctx context.Context, regionKey string, n int) ([]domain.RankingEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	results, err := r.client.ZRevRangeWithScores(ctx, rankingKey(regionKey), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.RankingEntry, len(results))
	for i, result := range results {
		entries[i] = domain.RankingEntry{
			Rank:     int64(i + 1),
			PlayerID: result.Member.(string),
			Rating:   int64(result.Score),
		}
	}
	return entries, nil
}
